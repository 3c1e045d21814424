package handlers

import (
	"crypto/subtle"
	"net/http"

	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	UserID int64 `json:"user_id"`
}

// Auth exchanges the platform's API key for a player token. The game
// platform calls this server-to-server when a player opens the lobby;
// players never hold the platform key themselves. First sight of a user
// opens their wallet.
func (h *Handler) Auth(c *gin.Context) {
	key := c.GetHeader("X-Platform-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.Cfg.PlatformKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid platform key"})
		return
	}

	var req AuthRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.Wallet.Register(ctx, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open wallet"})
		return
	}

	token, err := service.GenerateJWT(req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": req.UserID,
	})
}
