package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var (
	// ErrLedgerInvariant означает, что движение денег оставило бы кошелёк в
	// минусе. При консистентном статусе сделки такого не бывает: это признак
	// логической ошибки, а не ошибки пользователя.
	ErrLedgerInvariant = errors.New("ledger invariant violation")
	// ErrInvalidAmount — сумма операции не положительна.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// WalletRepository — слой движения денег. Наружу торчат только парные
// атомарные операции: прямой записи баланса нет. Все методы работают внутри
// уже открытой транзакции базы, блокировки строк берутся здесь же.
type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetWallet возвращает кошелёк пользователя, создаёт если не существует.
func (r *WalletRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (user_id, available, escrow, total_earned, total_spent)
		VALUES ($1, 0, 0, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, available, escrow, total_earned, total_spent, updated_at
	`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get wallet %w", err)
	}
	return &wallet, nil
}

// LockWallets берёт блокировки строк кошельков в детерминированном порядке
// идентификаторов, чтобы два конкурирующих перевода по одной паре кошельков
// не могли взять их навстречу друг другу.
func (r *WalletRepository) LockWallets(ctx context.Context, tx *sqlx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	ordered := make([]uuid.UUID, len(userIDs))
	copy(ordered, userIDs)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if strings.Compare(ordered[j].String(), ordered[i].String()) < 0 {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	wallets := make(map[uuid.UUID]*models.Wallet, len(ordered))
	for _, id := range ordered {
		if _, seen := wallets[id]; seen {
			continue
		}
		var wallet models.Wallet
		err := tx.GetContext(ctx, &wallet, `
			INSERT INTO wallets (user_id, available, escrow, total_earned, total_spent)
			VALUES ($1, 0, 0, 0, 0)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = wallets.updated_at
			RETURNING user_id, available, escrow, total_earned, total_spent, updated_at
		`, id)
		if err != nil {
			return nil, fmt.Errorf("wallet repository: lock wallet %s: %w", id, err)
		}
		wallets[id] = &wallet
	}
	return wallets, nil
}

// Hold удерживает оплату сделки в escrow плательщика. Деньги уже пришли на
// платформу через платёжный шлюз, поэтому available не трогаем: растут
// только escrow и total_spent. Кошельки создаются лениво, поэтому upsert:
// первая оплата плательщика, никогда не смотревшего свой баланс, обязана
// удержать деньги, а не молча пройти мимо несуществующей строки.
func (r *WalletRepository) Hold(ctx context.Context, tx *sqlx.Tx, payerID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, available, escrow, total_earned, total_spent)
		VALUES ($1, 0, $2, 0, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET escrow = wallets.escrow + EXCLUDED.escrow,
		    total_spent = wallets.total_spent + EXCLUDED.total_spent,
		    updated_at = NOW()
	`, payerID, amount)
	if err != nil {
		return fmt.Errorf("wallet repository: hold %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("wallet repository: hold rows affected %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("hold touched %d wallet rows: %w", affected, ErrLedgerInvariant)
	}
	return nil
}

// ReleaseToPayee переводит удержанную сумму из escrow плательщика
// исполнителю. Исполнитель получает свою долю (сумма минус комиссия
// платформы); сама комиссия ни на какой кошелёк не зачисляется.
func (r *WalletRepository) ReleaseToPayee(ctx context.Context, tx *sqlx.Tx, payerID, payeeID uuid.UUID, amount, payeeAmount decimal.Decimal) error {
	wallets, err := r.LockWallets(ctx, tx, payerID, payeeID)
	if err != nil {
		return err
	}
	if wallets[payerID].Escrow.LessThan(amount) {
		return fmt.Errorf("release to payee: escrow %s < amount %s: %w",
			wallets[payerID].Escrow, amount, ErrLedgerInvariant)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET escrow = escrow - $2, updated_at = NOW() WHERE user_id = $1
	`, payerID, amount)
	if err != nil {
		return fmt.Errorf("wallet repository: release debit escrow %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET available = available + $2, total_earned = total_earned + $2, updated_at = NOW()
		WHERE user_id = $1
	`, payeeID, payeeAmount)
	if err != nil {
		return fmt.Errorf("wallet repository: release credit payee %w", err)
	}
	return nil
}

// RefundToPayer возвращает удержанную сумму из escrow в available плательщика.
func (r *WalletRepository) RefundToPayer(ctx context.Context, tx *sqlx.Tx, payerID uuid.UUID, amount decimal.Decimal) error {
	wallets, err := r.LockWallets(ctx, tx, payerID)
	if err != nil {
		return err
	}
	if wallets[payerID].Escrow.LessThan(amount) {
		return fmt.Errorf("refund to payer: escrow %s < amount %s: %w",
			wallets[payerID].Escrow, amount, ErrLedgerInvariant)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET escrow = escrow - $2, available = available + $2, updated_at = NOW()
		WHERE user_id = $1
	`, payerID, amount)
	if err != nil {
		return fmt.Errorf("wallet repository: refund %w", err)
	}
	return nil
}

// Split делит удержанную сумму между возвратом плательщику и выплатой
// исполнителю. Части обязаны сходиться с total копейка в копейку.
func (r *WalletRepository) Split(ctx context.Context, tx *sqlx.Tx, payerID, payeeID uuid.UUID, total, refundAmount, payeeAmount decimal.Decimal) error {
	if !refundAmount.Add(payeeAmount).Equal(total) {
		return fmt.Errorf("split: %s + %s != %s: %w", refundAmount, payeeAmount, total, ErrLedgerInvariant)
	}

	wallets, err := r.LockWallets(ctx, tx, payerID, payeeID)
	if err != nil {
		return err
	}
	if wallets[payerID].Escrow.LessThan(total) {
		return fmt.Errorf("split: escrow %s < total %s: %w",
			wallets[payerID].Escrow, total, ErrLedgerInvariant)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET escrow = escrow - $2, available = available + $3, updated_at = NOW()
		WHERE user_id = $1
	`, payerID, total, refundAmount)
	if err != nil {
		return fmt.Errorf("wallet repository: split debit payer %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET available = available + $2, total_earned = total_earned + $2, updated_at = NOW()
		WHERE user_id = $1
	`, payeeID, payeeAmount)
	if err != nil {
		return fmt.Errorf("wallet repository: split credit payee %w", err)
	}
	return nil
}
