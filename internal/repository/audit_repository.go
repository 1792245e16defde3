package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// AuditRepository хранит таймлайн сделки. Записи только добавляются и пишутся
// в той же транзакции базы, что и сам переход статуса.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append добавляет запись таймлайна внутри открытой транзакции.
func (r *AuditRepository) Append(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID, event, description string, actorID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (transaction_id, event, description, actor_id)
		VALUES ($1, $2, $3, $4)
	`, transactionID, event, description, actorID)
	if err != nil {
		return fmt.Errorf("audit repository: append %w", err)
	}
	return nil
}

// ListByTransaction возвращает таймлайн сделки в хронологическом порядке.
func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, transaction_id, event, description, actor_id, created_at
		FROM audit_entries WHERE transaction_id = $1 ORDER BY created_at
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("audit repository: list %w", err)
	}
	return entries, nil
}
