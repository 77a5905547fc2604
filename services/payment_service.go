package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"training-system/internal/status"
	"training-system/models"
	"training-system/monitoring"
	"training-system/utils"
)

// Gateway is the remote booking/catalog API this service submits payments
// to. SubmitPayment must be safe to retry verbatim with the same
// idempotency key.
type Gateway interface {
	SubmitPayment(ctx context.Context, req models.PaymentRequest, idempotencyKey string) (*models.Payment, error)
	GetActiveCredits(ctx context.Context, userID string) ([]models.Credit, error)
}

// ActionHandler is the host-owned bridge that drives a payment's next
// action (confirm dialog, bank redirect) in the external surface. The call
// may suspend indefinitely on user interaction; cancellation, if any, comes
// from the host through ctx.
type ActionHandler interface {
	HandlePaymentAction(ctx context.Context, payment *models.Payment) (models.ActionResult, error)
}

// FlowState is one step of the submission state machine.
type FlowState string

const (
	FlowIdle           FlowState = "idle"
	FlowSubmitting     FlowState = "submitting"
	FlowAwaitingAction FlowState = "awaiting_action"
	FlowResolving      FlowState = "resolving"
	FlowSucceeded      FlowState = "succeeded"
	FlowPending        FlowState = "pending"
	FlowFailed         FlowState = "failed"
)

// SubmitParams describes one user-initiated purchase action. IntentPrefix
// must already uniquely identify the logical intent (booking id); it is the
// only state shared across retries and must be held by the caller, not
// regenerated.
type SubmitParams struct {
	UserID            string
	IntentPrefix      string
	BookingID         string
	Category          models.PurchaseCategory
	UseCredit         bool
	CreditAmountMinor int64
	Currency          string
}

// SubmitResult is the tagged outcome of one submission: exactly one of
// Succeeded, Pending or Failed, exhaustively matchable by the caller.
type SubmitResult struct {
	State   FlowState
	Route   string            // success destination, Succeeded only
	Message string            // user-facing text, Failed only
	Failure *status.FlowError // taxonomy, Failed only
	Payment *models.Payment
}

// PaymentService drives one payment submission from user confirmation to a
// terminal outcome. One instance serves many flows, but each Submit call is
// a single logical flow: the caller must disable its trigger while a flow
// is in flight, the service does not serialize overlapping calls for the
// same intent.
type PaymentService struct {
	gateway  Gateway
	actions  ActionHandler
	recorder Recorder
	sessions *SessionStore
	builder  *MethodBuilder
}

func NewPaymentService(gateway Gateway, actions ActionHandler, recorder Recorder, sessions *SessionStore, provider string) *PaymentService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &PaymentService{
		gateway:  gateway,
		actions:  actions,
		recorder: recorder,
		sessions: sessions,
		builder:  NewMethodBuilder(provider),
	}
}

// Submit runs the state machine Idle → Submitting → AwaitingAction →
// Resolving → {Succeeded, Pending, Failed}. No automatic retry happens on
// failure; a new user action restarts from Idle with the same intent prefix
// and therefore the same idempotency key.
func (s *PaymentService) Submit(ctx context.Context, params SubmitParams) *SubmitResult {
	methods, err := s.builder.Build(params.UseCredit, params.CreditAmountMinor, params.Currency)
	if err != nil {
		// Contract violation in request construction; never reaches the
		// network and opens no attempt.
		monitoring.ObserveAttemptOutcome("invalid", string(params.Category))
		var flowErr *status.FlowError
		if !errors.As(err, &flowErr) {
			flowErr = status.NewFlowError(status.ErrInvalidAmount, "", err)
		}
		return &SubmitResult{
			State:   FlowFailed,
			Message: flowErr.UserMessage(),
			Failure: flowErr,
		}
	}

	key := utils.StableKey(params.IntentPrefix)
	req := models.PaymentRequest{
		BookingID: params.BookingID,
		UserID:    params.UserID,
		Methods:   methods,
	}

	handle := s.recorder.StartAttempt(ctx, params.IntentPrefix)
	monitoring.AttemptOpened()

	s.recorder.Log(ctx, handle, Event{
		Type: EventRequestSent,
		Detail: map[string]any{
			"booking_id":      params.BookingID,
			"idempotency_key": key,
			"method_count":    len(methods),
		},
	})

	started := time.Now()
	payment, err := s.gateway.SubmitPayment(ctx, req, key)
	if err != nil {
		monitoring.ObserveSubmission("error", time.Since(started))

		var remote *status.RemoteError
		message := ""
		if errors.As(err, &remote) {
			message = remote.Message
		}
		return s.fail(ctx, handle, params.Category, status.ErrSubmissionFailed, message, err, nil)
	}
	monitoring.ObserveSubmission("ok", time.Since(started))

	s.recorder.Log(ctx, handle, Event{
		Type: EventProviderResponse,
		Detail: map[string]any{
			"payment_id": payment.ID,
			"status":     string(payment.Status),
			"provider":   payment.Provider,
		},
	})

	if s.sessions != nil {
		if err := s.sessions.SavePayment(ctx, params.UserID, payment); err != nil {
			slog.Error("payment session save failed", "payment_id", payment.ID, "error", err)
		}
	}

	if payment.NextAction == nil {
		// The remote side must always attach a continuation; treat its
		// absence as fatal without ever invoking the delegate.
		s.updateSession(ctx, payment.ID, models.PaymentFailed)
		return s.fail(ctx, handle, params.Category, status.ErrMissingNextAction, "", nil, payment)
	}

	result, err := s.actions.HandlePaymentAction(ctx, payment)
	if err != nil {
		s.recorder.Log(ctx, handle, Event{
			Type:   EventActionOutcome,
			Detail: map[string]any{"success": false, "error": err.Error()},
		})
		s.updateSession(ctx, payment.ID, models.PaymentFailed)
		return s.fail(ctx, handle, params.Category, status.ErrActionFailed, "", err, payment)
	}

	s.recorder.Log(ctx, handle, Event{
		Type: EventActionOutcome,
		Detail: map[string]any{
			"success": result.Success,
			"status":  string(result.Status),
			"error":   result.Error,
		},
	})

	switch {
	case result.Success && (result.Status == models.PaymentPaid || result.Status == models.PaymentNone):
		s.recorder.Log(ctx, handle, Event{Type: EventPaymentCompleted})
		s.recorder.EndAttempt(ctx, handle, AttemptOutcome{
			Success:       true,
			InvoiceStatus: result.Status,
		})
		monitoring.AttemptClosed()
		monitoring.ObserveAttemptOutcome("succeeded", string(params.Category))
		s.updateSession(ctx, payment.ID, result.Status)

		return &SubmitResult{
			State:   FlowSucceeded,
			Route:   successRoute(params.Category),
			Payment: payment,
		}

	case result.Success && result.Status == models.PaymentPending:
		// Provider needs out-of-band confirmation. The attempt stays open:
		// how a pending payment is later reconciled is an unresolved design
		// gap, see DESIGN.md. A future resumption must re-query by payment
		// id, never resubmit blindly.
		monitoring.ObserveAttemptOutcome("pending", string(params.Category))
		s.updateSession(ctx, payment.ID, models.PaymentPending)

		return &SubmitResult{
			State:   FlowPending,
			Payment: payment,
		}

	default:
		s.updateSession(ctx, payment.ID, models.PaymentFailed)
		return s.fail(ctx, handle, params.Category, status.ErrActionFailed, result.Error, nil, payment)
	}
}

// fail closes the attempt as a failure and builds the terminal result with
// the one user-facing message for this attempt.
func (s *PaymentService) fail(
	ctx context.Context,
	handle AttemptHandle,
	category models.PurchaseCategory,
	kind error,
	message string,
	cause error,
	payment *models.Payment,
) *SubmitResult {
	flowErr := status.NewFlowError(kind, message, cause)

	recorded := message
	if recorded == "" {
		if cause != nil {
			recorded = cause.Error()
		} else {
			recorded = kind.Error()
		}
	}

	s.recorder.Log(ctx, handle, Event{
		Type:   EventError,
		Detail: map[string]any{"kind": kind.Error(), "error": recorded},
	})
	s.recorder.EndAttempt(ctx, handle, AttemptOutcome{
		Success: false,
		Error:   recorded,
	})
	monitoring.AttemptClosed()
	monitoring.ObserveAttemptOutcome("failed", string(category))

	slog.Error("payment flow failed",
		"attempt_id", handle.ID, "kind", kind.Error(), "error", recorded)

	return &SubmitResult{
		State:   FlowFailed,
		Message: flowErr.UserMessage(),
		Failure: flowErr,
		Payment: payment,
	}
}

func (s *PaymentService) updateSession(ctx context.Context, paymentID string, st models.PaymentStatus) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.UpdateStatus(ctx, paymentID, st); err != nil {
		slog.Error("payment session update failed", "payment_id", paymentID, "error", err)
	}
}

// successRoute maps the purchase category to the destination the caller
// navigates to after a completed payment.
func successRoute(category models.PurchaseCategory) string {
	switch category {
	case models.CategorySession:
		return "/checkout/success/session"
	case models.CategoryActivity:
		return "/checkout/success/activity"
	case models.CategoryTour:
		return "/checkout/success/tour"
	case models.CategorySeasonTicket:
		return "/checkout/success/season-ticket"
	case models.CategoryCertificate:
		return "/checkout/success/certificate"
	default:
		return "/checkout/success"
	}
}
