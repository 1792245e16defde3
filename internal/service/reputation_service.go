package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// UserStatsRepository описывает доступ к счётчикам сделок и рейтингу.
type UserStatsRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateTrustScore(ctx context.Context, userID uuid.UUID, score decimal.Decimal) error
}

// ReputationService пересчитывает рейтинг доверия пользователя по счётчикам
// завершённых сделок и споров. Счётчики двигает машина состояний в своих
// транзакциях, пересчёт — производная величина поверх них.
type ReputationService struct {
	repo UserStatsRepository
}

func NewReputationService(repo UserStatsRepository) *ReputationService {
	return &ReputationService{repo: repo}
}

var maxTrustScore = decimal.NewFromInt(5)

// TrustScore считает рейтинг: 0 без завершённых сделок, иначе
// max(0, 5 - disputes/completed * 5), округлённый до сотых.
func TrustScore(completed, disputes int) decimal.Decimal {
	if completed == 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(int64(disputes)).Div(decimal.NewFromInt(int64(completed)))
	score := maxTrustScore.Sub(ratio.Mul(maxTrustScore)).Round(2)
	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}

// Recalculate перечитывает счётчики пользователя и записывает новый рейтинг.
func (s *ReputationService) Recalculate(ctx context.Context, userID uuid.UUID) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	score := TrustScore(user.TotalCompletedTransactions, user.TotalDisputes)
	return s.repo.UpdateTrustScore(ctx, userID, score)
}
