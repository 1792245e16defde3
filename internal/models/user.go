package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User описывает участника сделки. Регистрация и аутентификация живут
// во внешнем сервисе, здесь хранится только то, что нужно escrow-ядру:
// счётчики сделок и рейтинг доверия.
type User struct {
	ID                         uuid.UUID       `db:"id" json:"id"`
	FullName                   string          `db:"full_name" json:"full_name"`
	Email                      string          `db:"email" json:"email"`
	IsArbiter                  bool            `db:"is_arbiter" json:"is_arbiter"`
	TrustScore                 decimal.Decimal `db:"trust_score" json:"trust_score"`
	TotalCompletedTransactions int             `db:"total_completed_transactions" json:"total_completed_transactions"`
	TotalDisputes              int             `db:"total_disputes" json:"total_disputes"`
	CreatedAt                  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time       `db:"updated_at" json:"updated_at"`
}
