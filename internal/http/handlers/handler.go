package handlers

import (
	"stonepot/internal/config"
	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler carries the services the HTTP layer dispatches into.
type Handler struct {
	Wallet   *service.WalletService
	Games    *service.GameService
	Webhooks *service.WebhookService
	Cfg      *config.Config
}

func NewHandler(cfg *config.Config, wallet *service.WalletService, games *service.GameService, webhooks *service.WebhookService) *Handler {
	return &Handler{
		Wallet:   wallet,
		Games:    games,
		Webhooks: webhooks,
		Cfg:      cfg,
	}
}

// getUserID pulls the authenticated player id set by the JWT middleware.
func getUserID(c *gin.Context) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
