package models

import (
	"time"

	"github.com/google/uuid"
)

// События таймлайна сделки. Словарь фиксированный: записи истории — это
// производная хроника, а не источник текущего статуса.
const (
	EventCreated         = "Transaction Created"
	EventPaymentReceived = "Payment Received"
	EventWorkStarted     = "Work Started"
	EventWorkCompleted   = "Work Completed"
	EventDisputeRaised   = "Dispute Raised"
	EventDisputeResolved = "Dispute Resolved"
	EventPaymentReleased = "Payment Released"
	EventRefunded        = "Refunded"
	EventCancelled       = "Transaction Cancelled"
)

// AuditEntry — запись таймлайна сделки. Только добавление, без правок и
// удалений: одна запись на каждый успешный переход статуса.
type AuditEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TransactionID uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	Event         string     `db:"event" json:"event"`
	Description   string     `db:"description" json:"description"`
	ActorID       *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
