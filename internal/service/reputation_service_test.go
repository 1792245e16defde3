package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type mockStatsRepo struct {
	mock.Mock
}

func (m *mockStatsRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStatsRepo) UpdateTrustScore(ctx context.Context, userID uuid.UUID, score decimal.Decimal) error {
	args := m.Called(ctx, userID, score)
	return args.Error(0)
}

func TestTrustScore(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		disputes  int
		want      string
	}{
		{"новый пользователь", 0, 0, "0"},
		{"без споров", 10, 0, "5"},
		{"один спор на десять сделок", 10, 1, "4.5"},
		{"каждая вторая сделка спорная", 10, 5, "2.5"},
		{"все сделки спорные", 4, 4, "0"},
		{"споров больше, чем сделок", 2, 5, "0"},
		{"округление до сотых", 3, 1, "3.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrustScore(tt.completed, tt.disputes)
			want, err := decimal.NewFromString(tt.want)
			assert.NoError(t, err)
			assert.True(t, want.Equal(got), "ожидали %s, получили %s", tt.want, got)
		})
	}
}

func TestReputationService_Recalculate(t *testing.T) {
	repo := new(mockStatsRepo)
	svc := NewReputationService(repo)
	ctx := context.Background()
	userID := uuid.New()

	user := &models.User{
		ID:                         userID,
		TotalCompletedTransactions: 10,
		TotalDisputes:              1,
	}
	repo.On("GetUser", ctx, userID).Return(user, nil)
	repo.On("UpdateTrustScore", ctx, userID, mock.MatchedBy(func(score decimal.Decimal) bool {
		return score.Equal(decimal.RequireFromString("4.5"))
	})).Return(nil)

	err := svc.Recalculate(ctx, userID)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestReputationService_Recalculate_UserNotFound(t *testing.T) {
	repo := new(mockStatsRepo)
	svc := NewReputationService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("GetUser", ctx, userID).Return(nil, apperror.ErrUserNotFound)

	err := svc.Recalculate(ctx, userID)
	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpdateTrustScore", mock.Anything, mock.Anything, mock.Anything)
}
