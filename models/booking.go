package models

import "time"

// BookingTarget is the slice of a booking the payment core needs: enough to
// match credits against and to label diagnostics. Catalog details stay with
// the remote API.
type BookingTarget struct {
	BookingID string    `json:"booking_id"`
	EventType string    `json:"event_type"`
	StartsAt  time.Time `json:"starts_at"`
}
