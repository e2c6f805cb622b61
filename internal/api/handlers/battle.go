package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-arena/code-arena-backend/internal/api/middleware"
	"github.com/code-arena/code-arena-backend/internal/service"
	"github.com/code-arena/code-arena-backend/pkg/logger"
)

type BattleHandler struct {
	battleService *service.BattleService
}

func NewBattleHandler(battleService *service.BattleService) *BattleHandler {
	return &BattleHandler{battleService: battleService}
}

// GetBattle returns the battle view; code and program output are redacted for
// non-participants.
func (h *BattleHandler) GetBattle(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	view, err := h.battleService.GetBattle(c.Request.Context(), battleID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
		case errors.Is(err, service.ErrBattlePrivate):
			c.JSON(http.StatusForbidden, gin.H{"error": "Battle is private"})
		default:
			logger.Error("Failed to load battle", "battleId", battleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load battle"})
		}
		return
	}

	c.JSON(http.StatusOK, view)
}

// AcceptBattle lets the invited guest start the battle.
func (h *BattleHandler) AcceptBattle(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	battle, err := h.battleService.AcceptBattle(c.Request.Context(), battleID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
		case errors.Is(err, service.ErrNotGuest):
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the invited guest may accept"})
		case errors.Is(err, service.ErrBattleNotWaiting):
			c.JSON(http.StatusConflict, gin.H{"error": "Battle is no longer waiting for acceptance"})
		default:
			logger.Error("Failed to accept battle", "battleId", battleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept battle"})
		}
		return
	}

	c.JSON(http.StatusOK, battle)
}

type SubmitRequest struct {
	RoundID  string `json:"roundId" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// Submit queues the user's code for judging.
func (h *BattleHandler) Submit(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.battleService.SubmitSolution(c.Request.Context(), battleID, req.RoundID, userID, req.Code, req.Language)
	if err != nil {
		var throttled *service.ThrottledError
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
		case errors.Is(err, service.ErrRoundNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Round not found"})
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this battle"})
		case errors.Is(err, service.ErrBattleNotActive):
			c.JSON(http.StatusConflict, gin.H{"error": "Battle is not in progress"})
		case errors.Is(err, service.ErrRoundClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "Round is already closed"})
		case errors.Is(err, service.ErrCodeTooShort):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Submission code is too short"})
		case errors.As(err, &throttled):
			c.Header("Retry-After", "10")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": throttled.Error()})
		default:
			logger.Error("Failed to submit solution", "battleId", battleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit solution"})
		}
		return
	}

	c.JSON(http.StatusAccepted, sub)
}

type VisibilityRequest struct {
	IsPublic *bool `json:"isPublic" binding:"required"`
}

// SetVisibility lets the host flip the battle public or private.
func (h *BattleHandler) SetVisibility(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.battleService.SetVisibility(c.Request.Context(), battleID, userID, *req.IsPublic)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
		case errors.Is(err, service.ErrNotHost):
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the host may change visibility"})
		default:
			logger.Error("Failed to set visibility", "battleId", battleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set visibility"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"battleId": battleID, "isPublic": *req.IsPublic})
}

// Spectate registers the user as a spectator.
func (h *BattleHandler) Spectate(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	spectator, err := h.battleService.AddSpectator(c.Request.Context(), battleID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
		case errors.Is(err, service.ErrBattlePrivate):
			c.JSON(http.StatusForbidden, gin.H{"error": "Battle is private"})
		case errors.Is(err, service.ErrBattleNotWatchable):
			c.JSON(http.StatusConflict, gin.H{"error": "Battle is not open for spectating"})
		case errors.Is(err, service.ErrParticipantSpectate):
			c.JSON(http.StatusConflict, gin.H{"error": "Participants cannot spectate their own battle"})
		case errors.Is(err, service.ErrAlreadySpectating):
			c.JSON(http.StatusConflict, gin.H{"error": "Already spectating this battle"})
		default:
			logger.Error("Failed to add spectator", "battleId", battleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to spectate battle"})
		}
		return
	}

	c.JSON(http.StatusCreated, spectator)
}

// StopSpectating removes the user from the spectator list; idempotent.
func (h *BattleHandler) StopSpectating(c *gin.Context) {
	userID := middleware.UserID(c)
	battleID := c.Param("id")

	if err := h.battleService.RemoveSpectator(c.Request.Context(), battleID, userID); err != nil {
		logger.Error("Failed to remove spectator", "battleId", battleID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop spectating"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"battleId": battleID})
}

// ListSpectators returns the user IDs watching the battle.
func (h *BattleHandler) ListSpectators(c *gin.Context) {
	battleID := c.Param("id")

	userIDs, err := h.battleService.ListSpectators(c.Request.Context(), battleID)
	if err != nil {
		if errors.Is(err, service.ErrBattleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Battle not found"})
			return
		}
		logger.Error("Failed to list spectators", "battleId", battleID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list spectators"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"battleId": battleID, "spectators": userIDs})
}
