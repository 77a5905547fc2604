package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"training-system/models"
	"training-system/services"
)

type CreditHandler struct {
	app        *pocketbase.PocketBase
	gateway    services.Gateway
	redemption *services.RedemptionService
	redis      *redis.Client
}

func NewCreditHandler(app *pocketbase.PocketBase, gateway services.Gateway, redemption *services.RedemptionService, redisClient *redis.Client) *CreditHandler {
	return &CreditHandler{
		app:        app,
		gateway:    gateway,
		redemption: redemption,
		redis:      redisClient,
	}
}

// GetCredits - active credit snapshots for the signed-in user
func (h *CreditHandler) GetCredits(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()

	credits, err := h.gateway.GetActiveCredits(ctx, e.Auth.Id)
	if err != nil {
		return apis.NewBadRequestError("Failed to load credits", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"credits": credits})
}

// RedeemCheck - can this booking be covered by an existing credit?
// Advisory: the remote system re-validates at redemption time.
func (h *CreditHandler) RedeemCheck(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		BookingID string    `json:"booking_id"`
		EventType string    `json:"event_type"`
		StartsAt  time.Time `json:"starts_at"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventType == "" {
		return apis.NewBadRequestError("event_type is required", nil)
	}

	ctx := e.Request.Context()

	// Users without any active credit never hit the remote API.
	if isHolder, err := h.redis.SIsMember(ctx, "credit_holders", e.Auth.Id).Result(); err == nil && !isHolder {
		return e.JSON(http.StatusOK, map[string]any{"can_redeem": false})
	}

	credits, err := h.gateway.GetActiveCredits(ctx, e.Auth.Id)
	if err != nil {
		return apis.NewBadRequestError("Failed to load credits", err)
	}

	booking := models.BookingTarget{
		BookingID: req.BookingID,
		EventType: req.EventType,
		StartsAt:  req.StartsAt,
	}

	response := map[string]any{
		"can_redeem": h.redemption.CanRedeem(credits, booking),
	}
	if best := h.redemption.PickBest(credits, booking); best != nil {
		response["best_credit"] = best
	}

	return e.JSON(http.StatusOK, response)
}
