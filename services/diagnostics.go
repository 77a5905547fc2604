package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"training-system/models"
)

// Diagnostic event types, emitted per attempt in this order:
// request sent, provider response, action outcome.
const (
	EventRequestSent      = "request_sent"
	EventProviderResponse = "provider_response"
	EventActionOutcome    = "action_outcome"
	EventPaymentCompleted = "payment_completed"
	EventError            = "error"
)

// AttemptHandle identifies one open diagnostic attempt.
type AttemptHandle struct {
	ID        string
	Ref       string
	StartedAt time.Time
}

// Event is one diagnostic lifecycle entry.
type Event struct {
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail,omitempty"`
}

// AttemptOutcome closes an attempt.
type AttemptOutcome struct {
	Success       bool
	InvoiceStatus models.PaymentStatus
	Error         string
}

// Recorder is the diagnostic side-channel of the payment flow. It is an
// injected collaborator so tests can substitute a recording or no-op
// implementation. Every method is fire-and-forget: implementations must
// swallow their own failures, because payment correctness never depends on
// diagnostics succeeding.
type Recorder interface {
	StartAttempt(ctx context.Context, ref string) AttemptHandle
	Log(ctx context.Context, h AttemptHandle, e Event)
	EndAttempt(ctx context.Context, h AttemptHandle, outcome AttemptOutcome)
}

// RedisRecorder keeps attempts and their ordered event trail in Redis for
// post-incident correlation, mirroring everything to slog.
type RedisRecorder struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisRecorder(client *redis.Client, ttl time.Duration) *RedisRecorder {
	if ttl == 0 {
		ttl = 72 * time.Hour
	}
	return &RedisRecorder{Redis: client, TTL: ttl}
}

func attemptKey(id string) string       { return "attempt:" + id }
func attemptEventsKey(id string) string { return "attempt:" + id + ":events" }
func attemptRefKey(ref string) string   { return "attempt:last:" + ref }

func (r *RedisRecorder) StartAttempt(ctx context.Context, ref string) AttemptHandle {
	h := AttemptHandle{
		ID:        uuid.NewString(),
		Ref:       ref,
		StartedAt: time.Now(),
	}

	r.guard("StartAttempt", func() {
		key := attemptKey(h.ID)
		r.Redis.HSet(ctx, key,
			"ref", ref,
			"started_at", h.StartedAt.Format(time.RFC3339Nano),
			"outcome", "open",
		)
		r.Redis.Expire(ctx, key, r.TTL)
		r.Redis.Set(ctx, attemptRefKey(ref), h.ID, r.TTL)
	})

	slog.Info("payment attempt started", "attempt_id", h.ID, "ref", ref)
	return h
}

// Log appends one event to the attempt's trail. Appends are synchronous
// RPUSHes, so the per-attempt order is exactly the call order.
func (r *RedisRecorder) Log(ctx context.Context, h AttemptHandle, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.guard("Log", func() {
		data, err := json.Marshal(e)
		if err != nil {
			slog.Error("diagnostics: marshal event", "error", err)
			return
		}
		r.Redis.RPush(ctx, attemptEventsKey(h.ID), data)
		r.Redis.Expire(ctx, attemptEventsKey(h.ID), r.TTL)

		// A provider response names the remote payment id; index the
		// attempt under it for lookup by payment.
		if id, ok := e.Detail["payment_id"].(string); ok && id != "" {
			r.Redis.HSet(ctx, attemptKey(h.ID), "payment_id", id)
			r.Redis.Set(ctx, attemptRefKey(id), h.ID, r.TTL)
		}
	})

	slog.Info("payment attempt event", "attempt_id", h.ID, "event", e.Type)
}

func (r *RedisRecorder) EndAttempt(ctx context.Context, h AttemptHandle, outcome AttemptOutcome) {
	r.guard("EndAttempt", func() {
		result := "failure"
		if outcome.Success {
			result = "success"
		}
		r.Redis.HSet(ctx, attemptKey(h.ID),
			"ended_at", time.Now().Format(time.RFC3339Nano),
			"outcome", result,
			"invoice_status", string(outcome.InvoiceStatus),
			"error", outcome.Error,
		)
	})

	slog.Info("payment attempt ended",
		"attempt_id", h.ID, "success", outcome.Success, "error", outcome.Error)
}

// LastAttempt returns the most recent attempt recorded for a booking or
// payment reference, with its ordered events. Used by the debug endpoint.
func (r *RedisRecorder) LastAttempt(ctx context.Context, ref string) (map[string]string, []Event, error) {
	id, err := r.Redis.Get(ctx, attemptRefKey(ref)).Result()
	if err != nil {
		return nil, nil, err
	}

	fields, err := r.Redis.HGetAll(ctx, attemptKey(id)).Result()
	if err != nil {
		return nil, nil, err
	}

	raw, err := r.Redis.LRange(ctx, attemptEventsKey(id), 0, -1).Result()
	if err != nil {
		return fields, nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}

	fields["attempt_id"] = id
	return fields, events, nil
}

// guard runs a recorder write, swallowing panics. Redis write errors are
// already non-propagating with go-redis result types; this catches the rest.
func (r *RedisRecorder) guard(op string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("diagnostics: recovered", "op", op, "panic", rec)
		}
	}()
	fn()
}

// NopRecorder discards everything. Used where diagnostics are not wired.
type NopRecorder struct{}

func (NopRecorder) StartAttempt(_ context.Context, ref string) AttemptHandle {
	return AttemptHandle{ID: uuid.NewString(), Ref: ref, StartedAt: time.Now()}
}

func (NopRecorder) Log(context.Context, AttemptHandle, Event) {}

func (NopRecorder) EndAttempt(context.Context, AttemptHandle, AttemptOutcome) {}
