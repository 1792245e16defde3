package service

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager проверяет JWT от внешнего сервиса аутентификации.
// Ядро не выпускает токены: ему нужны только идентификатор вызывающего
// и флаг арбитра из клеймов.
type TokenManager struct {
	secret []byte
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// ParseAccess извлекает userID и флаг арбитра из access токена.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, bool, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	if !parsed.Valid {
		return uuid.Nil, false, jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, false, jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, false, jwt.ErrTokenInvalidClaims
	}

	isArbiter, _ := claims["arbiter"].(bool)

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false, err
	}

	return userID, isArbiter, nil
}
