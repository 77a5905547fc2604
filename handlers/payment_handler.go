package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"training-system/internal/status"
	"training-system/models"
	"training-system/services"
	"training-system/utils"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	sessions       *services.SessionStore
	recorder       *services.RedisRecorder
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, sessions *services.SessionStore, recorder *services.RedisRecorder) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		sessions:       sessions,
		recorder:       recorder,
	}
}

// SubmitPayment - the single payment entry point for the UI
func (h *PaymentHandler) SubmitPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		BookingID         string `json:"booking_id"`
		Category          string `json:"category"`
		UseCredit         bool   `json:"use_credit"`
		CreditAmountMinor int64  `json:"credit_amount_minor"`
		Currency          string `json:"currency"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Currency == "" {
		req.Currency = "RUB"
	}

	// A booking id doubles as the idempotency prefix: stable across
	// retries of the same intent. Certificates are bought without a
	// server-side id, so they get a one-shot key instead.
	intentPrefix := req.BookingID
	category := models.PurchaseCategory(req.Category)
	if intentPrefix == "" {
		if category != models.CategoryCertificate {
			return apis.NewBadRequestError("booking_id is required", nil)
		}
		intentPrefix = utils.OneShotKey("purchase")
	}

	ctx := e.Request.Context()

	result := h.paymentService.Submit(ctx, services.SubmitParams{
		UserID:            e.Auth.Id,
		IntentPrefix:      intentPrefix,
		BookingID:         req.BookingID,
		Category:          category,
		UseCredit:         req.UseCredit,
		CreditAmountMinor: req.CreditAmountMinor,
		Currency:          req.Currency,
	})

	if result.Failure != nil && errors.Is(result.Failure, status.ErrInvalidAmount) {
		return apis.NewBadRequestError(result.Message, nil)
	}

	if result.Payment != nil {
		h.persistPayment(e, result)
	}

	body := map[string]any{"state": string(result.State)}
	if result.Payment != nil {
		body["payment_id"] = result.Payment.ID
	}

	switch result.State {
	case services.FlowSucceeded:
		body["route"] = result.Route
		return e.JSON(http.StatusOK, body)

	case services.FlowPending:
		return e.JSON(http.StatusAccepted, body)

	default:
		body["message"] = result.Message
		return e.JSON(http.StatusOK, body)
	}
}

// persistPayment stores the final projection in the payments collection so
// support can look incidents up later. Best-effort.
func (h *PaymentHandler) persistPayment(e *core.RequestEvent, result *services.SubmitResult) {
	collection, err := h.app.FindCollectionByNameOrId("payments")
	if err != nil {
		slog.Error("payments collection missing", "error", err)
		return
	}

	payment := result.Payment
	record := core.NewRecord(collection)
	record.Set("payment_id", payment.ID)
	record.Set("booking_id", payment.BookingID)
	record.Set("user_id", e.Auth.Id)
	record.Set("amount_minor", payment.Amount.AmountMinor)
	record.Set("currency", payment.Amount.Currency)
	record.Set("flow_state", string(result.State))
	record.Set("provider", payment.Provider)

	if err := h.app.Save(record); err != nil {
		slog.Error("persist payment record", "payment_id", payment.ID, "error", err)
	}
}

// GetPaymentStatus - poll a payment after navigating away mid-flow
func (h *PaymentHandler) GetPaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	paymentID := e.Request.PathValue("paymentId")
	ctx := e.Request.Context()

	data, err := h.sessions.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apis.NewNotFoundError("Payment not found", nil)
		}
		return apis.NewBadRequestError("Failed to load payment", err)
	}

	if data["user_id"] != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"payment_id": paymentID,
		"booking_id": data["booking_id"],
		"status":     data["status"],
		"amount":     data["amount_minor"],
		"currency":   data["currency"],
	})
}

// GetPaymentAttempt - last diagnostic attempt for a booking or payment id
func (h *PaymentHandler) GetPaymentAttempt(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ref := e.Request.PathValue("ref")
	ctx := e.Request.Context()

	fields, events, err := h.recorder.LastAttempt(ctx, ref)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apis.NewNotFoundError("No attempt recorded", nil)
		}
		return apis.NewBadRequestError("Failed to load attempt", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"attempt": fields,
		"events":  events,
	})
}
