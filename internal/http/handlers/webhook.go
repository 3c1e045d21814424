package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"stonepot/internal/domain"
	"stonepot/internal/logger"
	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		UserID    int64  `json:"user_id"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// PaymentWebhook receives provider callbacks. The HMAC signature is
// checked against the raw body before anything is parsed; deliveries the
// reconciler wants retried get a 5xx so the provider redelivers.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.validSignature(body, c.GetHeader("X-Stonepot-Signature")) {
		logger.Warn("webhook signature mismatch", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ev := &domain.WebhookEvent{
		Reference: payload.Data.Reference,
		EventType: domain.WebhookEventType(payload.Event),
		UserID:    payload.Data.UserID,
		Amount:    payload.Data.Amount,
	}

	outcome, err := h.Webhooks.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedEvent),
			errors.Is(err, service.ErrInvalidWebhookBody):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			// 5xx asks the provider to redeliver; the attempt counter
			// caps how long that can go on
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

// DeadLetters lists webhook events that exhausted their retries. Platform
// operators use it to repair stuck payments by hand.
func (h *Handler) DeadLetters(c *gin.Context) {
	key := c.GetHeader("X-Platform-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.Cfg.PlatformKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid platform key"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.Webhooks.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
