package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"training-system/internal/status"
	"training-system/models"
)

// Mock Gateway for orchestrator tests
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SubmitPayment(ctx context.Context, req models.PaymentRequest, idempotencyKey string) (*models.Payment, error) {
	args := m.Called(ctx, req, idempotencyKey)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetActiveCredits(ctx context.Context, userID string) ([]models.Credit, error) {
	args := m.Called(ctx, userID)
	if c, ok := args.Get(0).([]models.Credit); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// Mock ActionHandler for orchestrator tests
type MockActionHandler struct {
	mock.Mock
}

func (m *MockActionHandler) HandlePaymentAction(ctx context.Context, payment *models.Payment) (models.ActionResult, error) {
	args := m.Called(ctx, payment)
	return args.Get(0).(models.ActionResult), args.Error(1)
}

// recordingRecorder captures the diagnostic trail in memory.
type recordingRecorder struct {
	mu      sync.Mutex
	started []string
	events  []Event
	ended   []AttemptOutcome
}

func (r *recordingRecorder) StartAttempt(_ context.Context, ref string) AttemptHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ref)
	return AttemptHandle{ID: "attempt-1", Ref: ref, StartedAt: time.Now()}
}

func (r *recordingRecorder) Log(_ context.Context, _ AttemptHandle, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRecorder) EndAttempt(_ context.Context, _ AttemptHandle, outcome AttemptOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, outcome)
}

func (r *recordingRecorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recordingRecorder) countEvents(eventType string) int {
	n := 0
	for _, typ := range r.eventTypes() {
		if typ == eventType {
			n++
		}
	}
	return n
}

func setupOrchestrator() (*PaymentService, *MockGateway, *MockActionHandler, *recordingRecorder) {
	gateway := &MockGateway{}
	actions := &MockActionHandler{}
	recorder := &recordingRecorder{}
	service := NewPaymentService(gateway, actions, recorder, nil, "corepay")
	return service, gateway, actions, recorder
}

func submitParams() SubmitParams {
	return SubmitParams{
		UserID:       "user-1",
		IntentPrefix: "booking-42",
		BookingID:    "booking-42",
		Category:     models.CategorySession,
		UseCredit:    false,
		Currency:     "RUB",
	}
}

func TestSubmit_Succeeds_ZeroDuePayment(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:         "pay-1",
		BookingID:  "booking-42",
		Amount:     models.Money{AmountMinor: 0, Currency: "RUB"},
		Status:     models.PaymentNone,
		NextAction: &models.NextAction{Type: "confirm"},
	}

	gateway.On("SubmitPayment", mock.Anything, mock.Anything, "booking-42").Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, payment).
		Return(models.ActionResult{Success: true, Status: models.PaymentNone}, nil)

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowSucceeded, result.State)
	assert.Equal(t, "/checkout/success/session", result.Route)
	assert.Empty(t, result.Message)
	assert.Nil(t, result.Failure)

	assert.Equal(t, 1, recorder.countEvents(EventPaymentCompleted),
		"exactly one payment completed event")
	require.Len(t, recorder.ended, 1, "attempt closed exactly once")
	assert.True(t, recorder.ended[0].Success)
	assert.Equal(t, models.PaymentNone, recorder.ended[0].InvoiceStatus)

	gateway.AssertExpectations(t)
	actions.AssertExpectations(t)
}

func TestSubmit_SuccessRouteFollowsCategory(t *testing.T) {
	cases := map[models.PurchaseCategory]string{
		models.CategorySession:      "/checkout/success/session",
		models.CategoryActivity:     "/checkout/success/activity",
		models.CategoryTour:         "/checkout/success/tour",
		models.CategorySeasonTicket: "/checkout/success/season-ticket",
		models.CategoryCertificate:  "/checkout/success/certificate",
	}

	for category, route := range cases {
		service, gateway, actions, _ := setupOrchestrator()

		payment := &models.Payment{
			ID:         "pay-1",
			Status:     models.PaymentPaid,
			NextAction: &models.NextAction{Type: "confirm"},
		}
		gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)
		actions.On("HandlePaymentAction", mock.Anything, mock.Anything).
			Return(models.ActionResult{Success: true, Status: models.PaymentPaid}, nil)

		params := submitParams()
		params.Category = category

		result := service.Submit(context.Background(), params)
		assert.Equal(t, route, result.Route, "category %s", category)
	}
}

func TestSubmit_Fails_MissingNextAction(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:        "pay-1",
		BookingID: "booking-42",
		Status:    models.PaymentPending,
		// NextAction deliberately absent: remote contract violation.
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowFailed, result.State)
	require.NotNil(t, result.Failure)
	assert.ErrorIs(t, result.Failure, status.ErrMissingNextAction)
	assert.Equal(t, status.GenericFailureMessage, result.Message)

	require.Len(t, recorder.ended, 1, "attempt closed as failure")
	assert.False(t, recorder.ended[0].Success)
	assert.Equal(t, 1, recorder.countEvents(EventError))

	actions.AssertNotCalled(t, "HandlePaymentAction", mock.Anything, mock.Anything)
}

func TestSubmit_MissingNextAction_MarksSessionFailed(t *testing.T) {
	gateway := &MockGateway{}
	actions := &MockActionHandler{}
	recorder := &recordingRecorder{}

	db, redisMock := redismock.NewClientMock()
	// The placeholder field args below exist only to satisfy redismock's
	// arg-count precheck, which runs before the custom matcher.
	redisMock.CustomMatch(func(expected, actual []interface{}) error {
		return nil
	}).ExpectHSet("payment:pay-1",
		"payment_id", "pay-1",
		"booking_id", "booking-42",
		"user_id", "user-1",
		"amount_minor", 0,
		"currency", "",
		"status", "pending",
		"provider", "",
		"created_at", 0,
	).SetVal(8)
	redisMock.ExpectExpire("payment:pay-1", 30*time.Minute).SetVal(true)
	redisMock.ExpectHSet("payment:pay-1", "status", "failed").SetVal(0)

	sessions := NewSessionStore(db, 30*time.Minute)
	service := NewPaymentService(gateway, actions, recorder, sessions, "corepay")

	payment := &models.Payment{
		ID:        "pay-1",
		BookingID: "booking-42",
		Status:    models.PaymentPending,
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowFailed, result.State)
	assert.ErrorIs(t, result.Failure, status.ErrMissingNextAction)
	require.NoError(t, redisMock.ExpectationsWereMet(),
		"the cached session must not stay on the remote's initial status")
}

func TestSubmit_Pending_LeavesAttemptOpen(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:         "pay-1",
		Status:     models.PaymentPending,
		NextAction: &models.NextAction{Type: "redirect"},
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, payment).
		Return(models.ActionResult{Success: true, Status: models.PaymentPending}, nil)

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowPending, result.State)
	assert.Nil(t, result.Failure)
	assert.Empty(t, recorder.ended, "pending leaves the attempt open")
	assert.Equal(t, 0, recorder.countEvents(EventPaymentCompleted))
}

func TestSubmit_Fails_DelegateReportsError(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:         "pay-1",
		Status:     models.PaymentPending,
		NextAction: &models.NextAction{Type: "confirm"},
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, payment).
		Return(models.ActionResult{Success: false, Error: "insufficient_funds"}, nil)

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowFailed, result.State)
	assert.Equal(t, "insufficient_funds", result.Message,
		"provider-supplied message surfaces to the caller")
	require.NotNil(t, result.Failure)
	assert.ErrorIs(t, result.Failure, status.ErrActionFailed)

	require.Len(t, recorder.ended, 1)
	assert.False(t, recorder.ended[0].Success)
	assert.Equal(t, "insufficient_funds", recorder.ended[0].Error)
}

func TestSubmit_Fails_DelegateRaises(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:         "pay-1",
		Status:     models.PaymentPending,
		NextAction: &models.NextAction{Type: "confirm"},
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, payment).
		Return(models.ActionResult{}, errors.New("host bridge torn down"))

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowFailed, result.State)
	assert.ErrorIs(t, result.Failure, status.ErrActionFailed)
	assert.Equal(t, status.GenericFailureMessage, result.Message,
		"raw internals never reach the user")
	require.Len(t, recorder.ended, 1)
	assert.False(t, recorder.ended[0].Success)

	assert.Equal(t,
		[]string{EventRequestSent, EventProviderResponse, EventActionOutcome, EventError},
		recorder.eventTypes(),
		"a raising delegate still leaves an action outcome in the trail")
}

func TestSubmit_Fails_SubmissionError_SurfacesRemoteMessage(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &status.RemoteError{Code: "BOOKING_CLOSED", Message: "Booking window has closed"})

	result := service.Submit(context.Background(), submitParams())

	assert.Equal(t, FlowFailed, result.State)
	assert.ErrorIs(t, result.Failure, status.ErrSubmissionFailed)
	assert.Equal(t, "Booking window has closed", result.Message)
	require.Len(t, recorder.ended, 1)
	actions.AssertNotCalled(t, "HandlePaymentAction", mock.Anything, mock.Anything)
}

func TestSubmit_ResubmissionReusesIdempotencyKey(t *testing.T) {
	service, gateway, actions, _ := setupOrchestrator()

	var keys []string
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			keys = append(keys, args.String(2))
		}).
		Return(nil, errors.New("connection reset"))

	params := submitParams()
	first := service.Submit(context.Background(), params)
	second := service.Submit(context.Background(), params)

	assert.Equal(t, FlowFailed, first.State)
	assert.Equal(t, FlowFailed, second.State)

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1],
		"retry of the same logical intent must submit under the identical key")
	assert.Equal(t, "booking-42", keys[0])

	actions.AssertNotCalled(t, "HandlePaymentAction", mock.Anything, mock.Anything)
}

func TestSubmit_InvalidAmount_NeverReachesNetwork(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	params := submitParams()
	params.UseCredit = true
	params.CreditAmountMinor = -1

	result := service.Submit(context.Background(), params)

	assert.Equal(t, FlowFailed, result.State)
	require.NotNil(t, result.Failure)
	assert.ErrorIs(t, result.Failure, status.ErrInvalidAmount)
	assert.Equal(t, status.GenericFailureMessage, result.Message)

	assert.Empty(t, recorder.started, "no attempt opens for a local contract violation")
	gateway.AssertNotCalled(t, "SubmitPayment", mock.Anything, mock.Anything, mock.Anything)
	actions.AssertNotCalled(t, "HandlePaymentAction", mock.Anything, mock.Anything)
}

func TestSubmit_CreditMixBuildsOrderedRequest(t *testing.T) {
	service, gateway, actions, _ := setupOrchestrator()

	var captured models.PaymentRequest
	payment := &models.Payment{
		ID:         "pay-1",
		Status:     models.PaymentPaid,
		NextAction: &models.NextAction{Type: "confirm"},
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(models.PaymentRequest)
		}).
		Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, mock.Anything).
		Return(models.ActionResult{Success: true, Status: models.PaymentPaid}, nil)

	params := submitParams()
	params.UseCredit = true
	params.CreditAmountMinor = 150000

	result := service.Submit(context.Background(), params)
	assert.Equal(t, FlowSucceeded, result.State)

	require.Len(t, captured.Methods, 2)
	assert.Equal(t, models.MethodCredit, captured.Methods[0].Method)
	require.NotNil(t, captured.Methods[0].Amount)
	assert.Equal(t, int64(150000), captured.Methods[0].Amount.AmountMinor)
	assert.Equal(t, models.MethodExternal, captured.Methods[1].Method)
}

func TestSubmit_DiagnosticEventOrder(t *testing.T) {
	service, gateway, actions, recorder := setupOrchestrator()

	payment := &models.Payment{
		ID:         "pay-1",
		Status:     models.PaymentPaid,
		NextAction: &models.NextAction{Type: "confirm"},
	}
	gateway.On("SubmitPayment", mock.Anything, mock.Anything, mock.Anything).Return(payment, nil)
	actions.On("HandlePaymentAction", mock.Anything, payment).
		Return(models.ActionResult{Success: true, Status: models.PaymentPaid}, nil)

	service.Submit(context.Background(), submitParams())

	types := recorder.eventTypes()
	assert.Equal(t,
		[]string{EventRequestSent, EventProviderResponse, EventActionOutcome, EventPaymentCompleted},
		types)
}
