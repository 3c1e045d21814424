package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"stonepot/internal/domain"
	"stonepot/internal/service"

	"github.com/gin-gonic/gin"
)

type CreateGameRequest struct {
	MaxPlayers        int   `json:"max_players"`
	Stake             int64 `json:"stake"`
	CommissionRateBps int   `json:"commission_rate_bps"`
}

func (h *Handler) CreateGame(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateGameRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	g, err := h.Games.CreateGame(c.Request.Context(), userID, req.MaxPlayers, req.Stake, req.CommissionRateBps)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStake),
			errors.Is(err, service.ErrInvalidPlayerCount),
			errors.Is(err, service.ErrInvalidCommission):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create game"})
		}
		return
	}

	c.JSON(http.StatusCreated, gameResponse(g, nil))
}

func (h *Handler) GetGame(c *gin.Context) {
	gameID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	g, players, err := h.Games.GetGame(c.Request.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load game"})
		return
	}

	c.JSON(http.StatusOK, gameResponse(g, players))
}

func (h *Handler) JoinGame(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	gameID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	g, err := h.Games.JoinGame(c.Request.Context(), gameID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		case errors.Is(err, service.ErrGameFull), errors.Is(err, service.ErrGameNotJoinable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadyJoined):
			c.JSON(http.StatusConflict, gin.H{"error": "already joined"})
		case errors.Is(err, service.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
		case errors.Is(err, service.ErrWalletInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "wallet is deactivated"})
		case errors.Is(err, service.ErrWalletNotFound):
			c.JSON(http.StatusForbidden, gin.H{"error": "no wallet"})
		case errors.Is(err, service.ErrConcurrentModification):
			c.JSON(http.StatusConflict, gin.H{"error": "please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join game"})
		}
		return
	}

	c.JSON(http.StatusOK, gameResponse(g, nil))
}

type RollRequest struct {
	Number int64 `json:"number"`
}

func (h *Handler) SubmitRoll(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	gameID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	var req RollRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	outcome, err := h.Games.SubmitRoll(c.Request.Context(), gameID, userID, req.Number)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRoll):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid roll"})
		case errors.Is(err, service.ErrGameNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		case errors.Is(err, service.ErrRollNotOpen):
			c.JSON(http.StatusConflict, gin.H{"error": "game is not accepting rolls"})
		case errors.Is(err, service.ErrAlreadyRolled):
			c.JSON(http.StatusConflict, gin.H{"error": "already rolled"})
		case errors.Is(err, service.ErrNotAPlayer):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a player in this game"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit roll"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted":   true,
		"all_rolled": outcome.AllRolled,
		"settled":    outcome.Settled,
	})
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func gameResponse(g *domain.Game, players []*domain.GamePlayer) gin.H {
	resp := gin.H{
		"id":                  g.ID,
		"creator_id":          g.CreatorID,
		"max_players":         g.MaxPlayers,
		"stake":               g.Stake,
		"stake_pot":           g.StakePot,
		"commission_rate_bps": g.CommissionRateBps,
		"status":              g.Status,
		"created_at":          g.CreatedAt,
	}
	if g.Status == domain.GameCompleted {
		resp["winner_ids"] = g.WinnerIDs
		resp["winning_number"] = g.WinningNumber
	}
	if players != nil {
		roster := make([]gin.H, 0, len(players))
		for _, p := range players {
			seat := gin.H{
				"user_id":    p.UserID,
				"turn_order": p.TurnOrder,
				"has_rolled": p.RolledNumber != nil,
			}
			if g.Status.Terminal() && p.RolledNumber != nil {
				seat["rolled_number"] = *p.RolledNumber
				seat["is_winner"] = p.IsWinner
				seat["win_share"] = p.WinShare
			}
			roster = append(roster, seat)
		}
		resp["players"] = roster
	}
	return resp
}
