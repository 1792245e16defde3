package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey  = "userID"
	ContextArbiterKey = "isArbiter"
)

// AuthMiddleware проверяет JWT access токен внешнего сервиса аутентификации
// и кладёт в контекст идентификатор вызывающего и флаг арбитра.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		userID, isArbiter, err := tokens.ParseAccess(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextArbiterKey, isArbiter)
		c.Next()
	}
}
