package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserStatsRepository обновляет счётчики сделок и рейтинг доверия.
// Счётчики меняются внутри транзакции перехода статуса, пересчёт рейтинга
// идёт отдельным запросом после коммита.
type UserStatsRepository struct {
	db *sqlx.DB
}

func NewUserStatsRepository(db *sqlx.DB) *UserStatsRepository {
	return &UserStatsRepository{db: db}
}

func (r *UserStatsRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user stats repository: get user %w", err)
	}
	return &user, nil
}

// IncrementCompleted увеличивает счётчик завершённых сделок внутри открытой транзакции.
func (r *UserStatsRepository) IncrementCompleted(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET total_completed_transactions = total_completed_transactions + 1, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("user stats repository: increment completed %w", err)
	}
	return nil
}

// IncrementDisputes увеличивает счётчик споров внутри открытой транзакции.
func (r *UserStatsRepository) IncrementDisputes(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET total_disputes = total_disputes + 1, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("user stats repository: increment disputes %w", err)
	}
	return nil
}

// UpdateTrustScore записывает пересчитанный рейтинг доверия.
func (r *UserStatsRepository) UpdateTrustScore(ctx context.Context, userID uuid.UUID, score decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET trust_score = $2, updated_at = NOW() WHERE id = $1
	`, userID, score)
	if err != nil {
		return fmt.Errorf("user stats repository: update trust score %w", err)
	}
	return nil
}
