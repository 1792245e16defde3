package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet представляет кошелёк пользователя.
// Available — доступные средства, Escrow — средства, удержанные платформой
// по активным сделкам. Оба поля никогда не уходят в минус: каждое движение
// денег проверяет остаток внутри той же транзакции базы.
type Wallet struct {
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Available   decimal.Decimal `db:"available" json:"available"`
	Escrow      decimal.Decimal `db:"escrow" json:"escrow"`
	TotalEarned decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalSpent  decimal.Decimal `db:"total_spent" json:"total_spent"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
