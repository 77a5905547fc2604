package services

import (
	"time"

	"training-system/models"
	"training-system/monitoring"
)

// RedemptionService decides whether a booking can be covered by an existing
// credit instead of a new charge. Its answers are advisory: the remote
// system re-validates at redemption time and picks the credit it actually
// consumes.
type RedemptionService struct {
	now func() time.Time
}

func NewRedemptionService() *RedemptionService {
	return &RedemptionService{now: time.Now}
}

// CanRedeem reports whether at least one credit is usable for the booking.
func (s *RedemptionService) CanRedeem(credits []models.Credit, booking models.BookingTarget) bool {
	now := s.now()
	for _, c := range credits {
		if c.UsableFor(booking.EventType, now) {
			monitoring.ObserveRedemptionCheck(true)
			return true
		}
	}
	monitoring.ObserveRedemptionCheck(false)
	return false
}

// PickBest returns the eligible credit with the soonest expiry, so expiring
// credits get consumed first, or nil when none qualifies. Display-only:
// which credit the booking actually consumes is decided remotely.
func (s *RedemptionService) PickBest(credits []models.Credit, booking models.BookingTarget) *models.Credit {
	now := s.now()

	var best *models.Credit
	for i := range credits {
		c := &credits[i]
		if !c.UsableFor(booking.EventType, now) {
			continue
		}
		if best == nil || c.ExpiresAt.Before(best.ExpiresAt) {
			best = c
		}
	}
	return best
}
