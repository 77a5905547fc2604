package models

import (
	"time"
)

// Money is an amount in the smallest unit of its currency. Arithmetic on
// Money must never mix currencies.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// PaymentMethod identifies a funding source inside a payment request.
type PaymentMethod string

const (
	MethodCredit   PaymentMethod = "credit"
	MethodExternal PaymentMethod = "external"
)

// PaymentMethodEntry is one ordered entry of a wire-level payment request.
// A credit entry carries the exact amount to draw from the balance; an
// external entry names the provider and lets the remote system price the
// remainder.
type PaymentMethodEntry struct {
	Method   PaymentMethod `json:"method"`
	Amount   *Money        `json:"amount,omitempty"`
	Provider string        `json:"provider,omitempty"`
}

// PaymentRequest is what gets submitted to the remote booking API. Methods
// is ordered: at most one credit entry, always at least one entry.
type PaymentRequest struct {
	BookingID string               `json:"booking_id"`
	UserID    string               `json:"user_id"`
	Methods   []PaymentMethodEntry `json:"methods"`
}

// PaymentStatus is the remote system's view of a payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
	// PaymentNone means nothing was due, e.g. the booking was fully covered
	// by credit.
	PaymentNone PaymentStatus = "none"
)

// NextAction is the provider continuation instruction attached to a freshly
// created payment (confirm dialog, bank redirect, ...). The payload is
// opaque to this service and handed to the host surface untouched.
type NextAction struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Payment is the read-only projection of the remote payment resource held
// for one submission attempt.
type Payment struct {
	ID         string        `json:"payment_id"`
	BookingID  string        `json:"booking_id"`
	Amount     Money         `json:"amount"`
	Status     PaymentStatus `json:"status"`
	Provider   string        `json:"provider,omitempty"`
	NextAction *NextAction   `json:"next_action,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ActionResult is what the host payment surface reports back after driving
// the next action to completion.
type ActionResult struct {
	Success bool          `json:"success"`
	Status  PaymentStatus `json:"status,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// PurchaseCategory decides the success destination the caller navigates to.
type PurchaseCategory string

const (
	CategorySession      PurchaseCategory = "session"
	CategoryActivity     PurchaseCategory = "activity"
	CategoryTour         PurchaseCategory = "tour"
	CategorySeasonTicket PurchaseCategory = "season_ticket"
	CategoryCertificate  PurchaseCategory = "certificate"
)
