package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-arena/code-arena-backend/internal/api/middleware"
	"github.com/code-arena/code-arena-backend/internal/service"
	"github.com/code-arena/code-arena-backend/pkg/logger"
)

type UserHandler struct {
	userService *service.UserService
	ratings     service.RatingStore
}

func NewUserHandler(userService *service.UserService, ratings service.RatingStore) *UserHandler {
	return &UserHandler{
		userService: userService,
		ratings:     ratings,
	}
}

// GetCurrentUser returns the authenticated user's profile and rating.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := middleware.UserID(c)

	user, err := h.userService.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		logger.Error("Failed to load user", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	rating, err := h.ratings.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to load rating", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rating"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"rating":   rating,
	})
}
