package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Balance(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, err := h.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func (h *Handler) History(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.Wallet.GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "entries": entries})
}

type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// InitDeposit opens a pending deposit and returns the reference the
// client must attach to the provider charge.
func (h *Handler) InitDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req AmountRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	entry, err := h.Wallet.InitDeposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		case errors.Is(err, service.ErrWalletNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to init deposit"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"reference": entry.Reference,
		"amount":    entry.Amount,
		"status":    entry.Status,
	})
}

// DeactivateWallet freezes a player's wallet. Operator-only: the
// platform calls this for compliance holds and account closures.
func (h *Handler) DeactivateWallet(c *gin.Context) {
	key := c.GetHeader("X-Platform-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.Cfg.PlatformKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid platform key"})
		return
	}

	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.Wallet.Deactivate(c.Request.Context(), userID); err != nil {
		if errors.Is(err, service.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "active": false})
}

// Withdraw debits the balance up front and records a pending withdrawal
// that the provider's transfer webhooks later confirm or reverse.
func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req AmountRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	entry, err := h.Wallet.RequestWithdrawal(c.Request.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		case errors.Is(err, service.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
		case errors.Is(err, service.ErrWalletInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "wallet is deactivated"})
		case errors.Is(err, service.ErrWalletNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		case errors.Is(err, service.ErrConcurrentModification):
			c.JSON(http.StatusConflict, gin.H{"error": "please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request withdrawal"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"reference": entry.Reference,
		"amount":    entry.Amount,
		"status":    entry.Status,
	})
}
