package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-system/models"
)

func fixedRedemptionService(now time.Time) *RedemptionService {
	s := NewRedemptionService()
	s.now = func() time.Time { return now }
	return s
}

func TestRedemptionService_CanRedeem(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	service := fixedRedemptionService(now)

	booking := models.BookingTarget{
		BookingID: "book-1",
		EventType: "personal_training",
		StartsAt:  now.Add(48 * time.Hour),
	}

	eligible := models.Credit{
		ID:                "credit-1",
		Status:            models.CreditActive,
		EligibleEventType: "personal_training",
		RemainingUnits:    3,
		ExpiresAt:         now.Add(14 * 24 * time.Hour),
	}

	t.Run("single eligible credit", func(t *testing.T) {
		assert.True(t, service.CanRedeem([]models.Credit{eligible}, booking))
	})

	t.Run("no credits", func(t *testing.T) {
		assert.False(t, service.CanRedeem(nil, booking))
	})

	t.Run("zero remaining units", func(t *testing.T) {
		c := eligible
		c.RemainingUnits = 0
		assert.False(t, service.CanRedeem([]models.Credit{c}, booking))
	})

	t.Run("expired credit", func(t *testing.T) {
		c := eligible
		c.ExpiresAt = now.Add(-time.Minute)
		assert.False(t, service.CanRedeem([]models.Credit{c}, booking))
	})

	t.Run("event type mismatch", func(t *testing.T) {
		c := eligible
		c.EligibleEventType = "group_class"
		assert.False(t, service.CanRedeem([]models.Credit{c}, booking))
	})

	t.Run("one usable among duds", func(t *testing.T) {
		expired := eligible
		expired.ID = "credit-expired"
		expired.ExpiresAt = now.Add(-time.Hour)

		exhausted := eligible
		exhausted.ID = "credit-exhausted"
		exhausted.Status = models.CreditExhausted

		assert.True(t, service.CanRedeem([]models.Credit{expired, exhausted, eligible}, booking))
	})
}

func TestRedemptionService_PickBest_SoonestExpiryFirst(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	service := fixedRedemptionService(now)

	booking := models.BookingTarget{EventType: "personal_training"}

	later := models.Credit{
		ID:                "credit-later",
		Status:            models.CreditActive,
		EligibleEventType: "personal_training",
		RemainingUnits:    5,
		ExpiresAt:         now.Add(60 * 24 * time.Hour),
	}
	sooner := later
	sooner.ID = "credit-sooner"
	sooner.ExpiresAt = now.Add(7 * 24 * time.Hour)

	ineligible := later
	ineligible.ID = "credit-wrong-type"
	ineligible.EligibleEventType = "group_class"
	ineligible.ExpiresAt = now.Add(time.Hour)

	best := service.PickBest([]models.Credit{later, ineligible, sooner}, booking)
	require.NotNil(t, best)
	assert.Equal(t, "credit-sooner", best.ID, "expiring credits get consumed first")
}

func TestRedemptionService_PickBest_NilWhenNoneEligible(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	service := fixedRedemptionService(now)

	booking := models.BookingTarget{EventType: "personal_training"}

	expired := models.Credit{
		ID:                "credit-1",
		Status:            models.CreditActive,
		EligibleEventType: "personal_training",
		RemainingUnits:    1,
		ExpiresAt:         now.Add(-time.Hour),
	}

	assert.Nil(t, service.PickBest([]models.Credit{expired}, booking))
	assert.Nil(t, service.PickBest(nil, booking))
}
