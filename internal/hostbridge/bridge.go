// Package hostbridge connects the payment flow to the hosting app's payment
// surface over PubNub. The orchestrator hands it a payment with a next
// action; the host drives the action (confirm dialog, bank redirect) and
// reports the outcome back on a result channel.
package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pubnub "github.com/pubnub/go/v7"

	"training-system/models"
)

type Config struct {
	PublishKey   string `json:"publishKey" mapstructure:"publish_key"`
	SubscribeKey string `json:"subscribeKey" mapstructure:"subscribe_key"`
	SecretKey    string `json:"secretKey" mapstructure:"secret_key"`
	UUID         string `json:"uuid" mapstructure:"uuid"`

	// ActionChannel is where next actions are published for the host.
	ActionChannel string `json:"actionChannel" mapstructure:"action_channel"`

	// ResultChannel is where the host reports action outcomes.
	ResultChannel string `json:"resultChannel" mapstructure:"result_channel"`
}

// Bridge implements services.ActionHandler. One bridge serves all flows;
// outcomes are routed to the waiting flow by payment id.
type Bridge struct {
	pn            *pubnub.PubNub
	listener      *pubnub.Listener
	actionChannel string

	mu      sync.Mutex
	waiters map[string]chan models.ActionResult
}

// New subscribes to the host's result channel and starts dispatching for
// the lifetime of ctx.
func New(ctx context.Context, cfg *Config) *Bridge {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UUID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	b := &Bridge{
		pn:            pubnub.NewPubNub(pnCfg),
		listener:      pubnub.NewListener(),
		actionChannel: cfg.ActionChannel,
		waiters:       make(map[string]chan models.ActionResult),
	}

	b.pn.AddListener(b.listener)
	b.pn.Subscribe().
		Channels([]string{cfg.ResultChannel}).
		Execute()

	go b.dispatch(ctx)

	return b
}

// HandlePaymentAction publishes the payment's next action to the host and
// waits for its outcome. There is deliberately no local timeout: the action
// may sit on user interaction indefinitely, and cancellation belongs to the
// host via ctx.
func (b *Bridge) HandlePaymentAction(ctx context.Context, payment *models.Payment) (models.ActionResult, error) {
	ch := b.register(payment.ID)
	defer b.unregister(payment.ID)

	message := map[string]any{
		"type":       "payment_action",
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
		"action":     payment.NextAction.Type,
		"payload":    payment.NextAction.Payload,
		"amount":     payment.Amount.AmountMinor,
		"currency":   payment.Amount.Currency,
	}

	_, _, err := b.pn.Publish().
		Channel(b.actionChannel).
		Message(message).
		Execute()
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("hostbridge: publish action: %w", err)
	}

	select {
	case result := <-ch:
		return result, nil

	case <-ctx.Done():
		return models.ActionResult{}, ctx.Err()
	}
}

func (b *Bridge) register(paymentID string) chan models.ActionResult {
	ch := make(chan models.ActionResult, 1)
	b.mu.Lock()
	b.waiters[paymentID] = ch
	b.mu.Unlock()
	return ch
}

func (b *Bridge) unregister(paymentID string) {
	b.mu.Lock()
	delete(b.waiters, paymentID)
	b.mu.Unlock()
}

func (b *Bridge) dispatch(ctx context.Context) {
	for {
		select {
		case st := <-b.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("hostbridge: connected to pubnub")
			case pubnub.PNReconnectedCategory:
				slog.Info("hostbridge: reconnected to pubnub")
			case pubnub.PNDisconnectedCategory:
				slog.Warn("hostbridge: disconnected from pubnub")
			}

		case message := <-b.listener.Message:
			b.deliver(message)

		case <-ctx.Done():
			b.pn.UnsubscribeAll()
			return
		}
	}
}

func (b *Bridge) deliver(message *pubnub.PNMessage) {
	var outcome struct {
		PaymentID string `json:"payment_id"`
		Success   bool   `json:"success"`
		Status    string `json:"status"`
		Error     string `json:"error"`
	}

	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("hostbridge: marshal action outcome", "error", err)
		return
	}
	if err := json.Unmarshal(jsonData, &outcome); err != nil {
		slog.Error("hostbridge: parse action outcome", "error", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.waiters[outcome.PaymentID]
	b.mu.Unlock()
	if !ok {
		slog.Warn("hostbridge: outcome for unknown payment", "payment_id", outcome.PaymentID)
		return
	}

	// One outcome per waiter suffices. The send must never block: deliver
	// runs on the single dispatch loop, and the host may duplicate outcomes
	// or report after the waiter already left on ctx cancel.
	select {
	case ch <- models.ActionResult{
		Success: outcome.Success,
		Status:  models.PaymentStatus(outcome.Status),
		Error:   outcome.Error,
	}:
	default:
		slog.Warn("hostbridge: dropped surplus outcome", "payment_id", outcome.PaymentID)
	}
}
