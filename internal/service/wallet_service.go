package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// WalletRepository описывает чтение кошелька. Движение денег наружу не
// торчит: балансы меняются только операциями машины состояний.
type WalletRepository interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// WalletService отдаёт баланс пользователя.
type WalletService struct {
	repo WalletRepository
}

func NewWalletService(repo WalletRepository) *WalletService {
	return &WalletService{repo: repo}
}

// GetBalance возвращает кошелёк пользователя, создавая пустой при первом обращении.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}
