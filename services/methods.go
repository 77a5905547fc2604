package services

import (
	"training-system/internal/status"
	"training-system/models"
)

// MethodBuilder turns the user's chosen funding mix into the ordered
// payment-method sequence the remote booking API expects. It never computes
// the card remainder itself: the remote system owns pricing, so the external
// entry carries no amount.
type MethodBuilder struct {
	// Provider is the external payment provider identifier placed on the
	// card entry, e.g. "corepay".
	Provider string
}

func NewMethodBuilder(provider string) *MethodBuilder {
	return &MethodBuilder{Provider: provider}
}

// Build produces the wire-level method sequence. With useCredit and a
// positive amount the result is [credit, external]; otherwise just
// [external]. A negative credit amount is a contract violation.
func (b *MethodBuilder) Build(useCredit bool, creditAmountMinor int64, currency string) ([]models.PaymentMethodEntry, error) {
	if creditAmountMinor < 0 {
		return nil, status.NewFlowError(status.ErrInvalidAmount, "", nil)
	}

	external := models.PaymentMethodEntry{
		Method:   models.MethodExternal,
		Provider: b.Provider,
	}

	if useCredit && creditAmountMinor > 0 {
		credit := models.PaymentMethodEntry{
			Method: models.MethodCredit,
			Amount: &models.Money{AmountMinor: creditAmountMinor, Currency: currency},
		}
		return []models.PaymentMethodEntry{credit, external}, nil
	}

	return []models.PaymentMethodEntry{external}, nil
}
