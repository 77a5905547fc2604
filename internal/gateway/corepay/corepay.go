package corepay

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"training-system/models"
	"training-system/utils"
)

// Config carries everything needed to talk to the corepay backend.
type Config struct {
	ClientConfig `mapstructure:",squash"`

	// Provider is the external provider identifier stamped on card entries.
	Provider string `json:"provider" mapstructure:"provider"`
}

// Gateway implements services.Gateway against the corepay booking API. A
// circuit breaker guards the submit path; an open breaker surfaces as an
// ordinary submission error, which is retry-safe under the same key.
type Gateway struct {
	client   *Client
	breaker  *utils.CircuitBreaker
	provider string
}

// New connects to the corepay backend and starts the token refresher for
// the lifetime of ctx.
func New(ctx context.Context, cfg *Config) (*Gateway, error) {
	client := newClient(ctx, &cfg.ClientConfig)

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	provider := cfg.Provider
	if provider == "" {
		provider = "corepay"
	}

	return &Gateway{
		client:   client,
		breaker:  utils.NewCircuitBreaker("corepay-submit", utils.BreakerSettings{}),
		provider: provider,
	}, nil
}

// Provider returns the provider identifier for card entries.
func (g *Gateway) Provider() string {
	return g.provider
}

// SubmitPayment submits the ordered method sequence under the idempotency
// key. Safe to call again verbatim after any error.
func (g *Gateway) SubmitPayment(ctx context.Context, req models.PaymentRequest, idempotencyKey string) (*models.Payment, error) {
	refLabel, err := utils.GenerateCode(4)
	if err != nil {
		return nil, fmt.Errorf("corepay: reference label: %w", err)
	}

	wireReq := toWireRequest(req, refLabel)

	result, err := g.breaker.Execute(ctx, func() (any, error) {
		return g.client.submitPayment(ctx, wireReq, idempotencyKey)
	})
	if err != nil {
		return nil, err
	}

	return result.(*wirePayment).toDomain()
}

// GetActiveCredits returns the user's credit snapshots. Advisory only:
// eligibility is re-validated remotely at redemption time.
func (g *Gateway) GetActiveCredits(ctx context.Context, userID string) ([]models.Credit, error) {
	wireCredits, err := g.client.getCredits(ctx, userID)
	if err != nil {
		return nil, err
	}

	credits := make([]models.Credit, 0, len(wireCredits))
	for _, wc := range wireCredits {
		credits = append(credits, wc.toDomain())
	}
	return credits, nil
}

type wireMethod struct {
	Method   string           `json:"method"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Provider string           `json:"provider,omitempty"`
}

type wirePaymentRequest struct {
	BookingID      string       `json:"bookingId"`
	UserID         string       `json:"userId"`
	ReferenceLabel string       `json:"referenceLabel"`
	Methods        []wireMethod `json:"methods"`
}

type wireNextAction struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type wirePayment struct {
	ID         string          `json:"paymentId"`
	BookingID  string          `json:"bookingId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	Provider   string          `json:"provider"`
	NextAction *wireNextAction `json:"nextAction"`
	CreatedAt  string          `json:"createdAt"`
}

type wireCredit struct {
	ID                string `json:"creditId"`
	UserID            string `json:"userId"`
	Status            string `json:"status"`
	EligibleEventType string `json:"eligibleEventType"`
	RemainingUnits    int    `json:"remainingUnits"`
	ExpiresAt         string `json:"expiresAt"`
}

// currencyExponent is the number of minor-unit digits per currency. The
// corepay wire format carries major-unit decimals; everything internal
// stays in minor units.
func currencyExponent(currency string) int32 {
	switch currency {
	case "JPY", "KRW", "VND":
		return 0
	case "BHD", "KWD", "OMR":
		return 3
	default:
		return 2
	}
}

func minorToWire(amountMinor int64, currency string) decimal.Decimal {
	return decimal.New(amountMinor, -currencyExponent(currency))
}

func wireToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(currencyExponent(currency)).IntPart()
}

func toWireRequest(req models.PaymentRequest, refLabel string) *wirePaymentRequest {
	methods := make([]wireMethod, 0, len(req.Methods))
	for _, m := range req.Methods {
		wm := wireMethod{
			Method:   string(m.Method),
			Provider: m.Provider,
		}
		if m.Amount != nil {
			amount := minorToWire(m.Amount.AmountMinor, m.Amount.Currency)
			wm.Amount = &amount
			wm.Currency = m.Amount.Currency
		}
		methods = append(methods, wm)
	}

	return &wirePaymentRequest{
		BookingID:      req.BookingID,
		UserID:         req.UserID,
		ReferenceLabel: refLabel,
		Methods:        methods,
	}
}

func (p *wirePayment) toDomain() (*models.Payment, error) {
	payment := &models.Payment{
		ID:        p.ID,
		BookingID: p.BookingID,
		Amount: models.Money{
			AmountMinor: wireToMinor(p.Amount, p.Currency),
			Currency:    p.Currency,
		},
		Status:   models.PaymentStatus(p.Status),
		Provider: p.Provider,
	}

	if p.NextAction != nil {
		payment.NextAction = &models.NextAction{
			Type:    p.NextAction.Type,
			Payload: p.NextAction.Payload,
		}
	}

	if p.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("corepay: created at: %w", err)
		}
		payment.CreatedAt = createdAt
	}

	return payment, nil
}

func (c wireCredit) toDomain() models.Credit {
	credit := models.Credit{
		ID:                c.ID,
		UserID:            c.UserID,
		Status:            models.CreditStatus(c.Status),
		EligibleEventType: c.EligibleEventType,
		RemainingUnits:    c.RemainingUnits,
	}
	if c.ExpiresAt != "" {
		if expiresAt, err := time.Parse(time.RFC3339, c.ExpiresAt); err == nil {
			credit.ExpiresAt = expiresAt
		}
	}
	return credit
}
