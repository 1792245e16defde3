package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
)

var errUserNotFound = errors.New("пользователь не найден в контексте")

// currentUserID извлекает userID из контекста.
func currentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, errUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, errUserNotFound
	}

	return userID, nil
}

// currentIsArbiter извлекает флаг арбитра из контекста.
func currentIsArbiter(c *gin.Context) bool {
	raw, exists := c.Get(middleware.ContextArbiterKey)
	if !exists {
		return false
	}

	isArbiter, ok := raw.(bool)
	return ok && isArbiter
}

// parseIntQuery читает целочисленный query параметр с дефолтом.
func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
