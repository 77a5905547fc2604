package models

import "time"

// CreditStatus is the lifecycle state of a prepaid training credit.
type CreditStatus string

const (
	CreditActive    CreditStatus = "ACTIVE"
	CreditExpired   CreditStatus = "EXPIRED"
	CreditExhausted CreditStatus = "EXHAUSTED"
	CreditFrozen    CreditStatus = "FROZEN"
)

// Credit is a prepaid allotment of training sessions (subscription or season
// ticket) that can cover a booking instead of a monetary charge. The client
// only ever holds a snapshot; the remote system re-validates eligibility at
// redemption time, so everything here is advisory.
type Credit struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id,omitempty"`
	Status            CreditStatus `json:"status"`
	EligibleEventType string       `json:"eligible_event_type"`
	RemainingUnits    int          `json:"remaining_units"`
	ExpiresAt         time.Time    `json:"expires_at"`
}

// UsableFor reports whether the credit can cover a booking of the given
// event type as of now: active, units left, not expired, matching type.
func (c Credit) UsableFor(eventType string, now time.Time) bool {
	if c.Status != CreditActive {
		return false
	}
	if c.RemainingUnits <= 0 {
		return false
	}
	if !c.ExpiresAt.After(now) {
		return false
	}
	return c.EligibleEventType == eventType
}
