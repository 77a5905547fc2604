package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"training-system/models"
)

// SessionStore caches the latest payment projection per payment id so the
// UI can poll status after navigating away mid-flow. Best-effort: the
// orchestrator treats write failures as non-fatal.
type SessionStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{Redis: client, TTL: ttl}
}

func paymentKey(paymentID string) string {
	return fmt.Sprintf("payment:%s", paymentID)
}

func (s *SessionStore) SavePayment(ctx context.Context, userID string, p *models.Payment) error {
	key := paymentKey(p.ID)

	if err := s.Redis.HSet(ctx, key,
		"payment_id", p.ID,
		"booking_id", p.BookingID,
		"user_id", userID,
		"amount_minor", p.Amount.AmountMinor,
		"currency", p.Amount.Currency,
		"status", string(p.Status),
		"provider", p.Provider,
		"created_at", time.Now().Unix(),
	).Err(); err != nil {
		return err
	}

	return s.Redis.Expire(ctx, key, s.TTL).Err()
}

func (s *SessionStore) UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error {
	return s.Redis.HSet(ctx, paymentKey(paymentID), "status", string(status)).Err()
}

func (s *SessionStore) Get(ctx context.Context, paymentID string) (map[string]string, error) {
	data, err := s.Redis.HGetAll(ctx, paymentKey(paymentID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, redis.Nil
	}
	return data, nil
}
