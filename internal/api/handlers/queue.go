package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-arena/code-arena-backend/internal/api/middleware"
	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/internal/service"
	"github.com/code-arena/code-arena-backend/pkg/logger"
)

type QueueHandler struct {
	matchmaking *service.MatchmakingService
}

func NewQueueHandler(matchmaking *service.MatchmakingService) *QueueHandler {
	return &QueueHandler{matchmaking: matchmaking}
}

type JoinQueueRequest struct {
	Format models.BattleFormat `json:"format" binding:"required"`
}

// JoinQueue puts the user in the waiting room and may return an immediate
// match.
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	userID := middleware.UserID(c)

	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.matchmaking.JoinQueue(c.Request.Context(), userID, req.Format)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid battle format"})
		case errors.Is(err, service.ErrAlreadyInQueue):
			c.JSON(http.StatusConflict, gin.H{"error": "Already in queue"})
		case errors.Is(err, service.ErrActiveBattle):
			c.JSON(http.StatusConflict, gin.H{"error": "You already have an active battle"})
		default:
			logger.Error("Failed to join queue", "userId", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join queue"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// LeaveQueue removes the user's entry; leaving while not queued is fine.
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	userID := middleware.UserID(c)

	left, err := h.matchmaking.LeaveQueue(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to leave queue", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": left})
}

// QueueStatus reports the user's position and the pool size.
func (h *QueueHandler) QueueStatus(c *gin.Context) {
	userID := middleware.UserID(c)

	status, err := h.matchmaking.GetQueueStatus(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to read queue status", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue status"})
		return
	}

	c.JSON(http.StatusOK, status)
}
