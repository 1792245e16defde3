package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidTransition — операция не допустима из текущего статуса.
	// Состояние сделки и кошельков при этом не меняется.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyProcessed — идемпотентный повтор уже выполненной операции
	// (повторный вебхук оплаты, повторный release). Ничего не мутирует.
	ErrAlreadyProcessed = errors.New("operation already processed")
)

// ResolveDisputeParams — готовое решение арбитра по спору. Суммы разбиения
// посчитаны заранее и обязаны сходиться с суммой сделки.
type ResolveDisputeParams struct {
	RefundPercentage int
	RefundAmount     decimal.Decimal
	PayeeAmount      decimal.Decimal
	Notes            string
	ResolvedBy       uuid.UUID
}

// TransactionRepository владеет машиной состояний escrow-сделки. Каждая
// операция выполняется как одна транзакция базы: блокировка строки сделки
// (и кошельков), повторная проверка статуса под блокировкой, мутация,
// запись таймлайна. Либо всё фиксируется, либо ничего.
type TransactionRepository struct {
	db      *sqlx.DB
	wallets *WalletRepository
	stats   *UserStatsRepository
	audit   *AuditRepository
}

func NewTransactionRepository(db *sqlx.DB, wallets *WalletRepository, stats *UserStatsRepository, audit *AuditRepository) *TransactionRepository {
	return &TransactionRepository{db: db, wallets: wallets, stats: stats, audit: audit}
}

// Create сохраняет новую сделку в статусе PENDING и пишет первую запись таймлайна.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	return common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, t, `
			INSERT INTO transactions
				(reference, payer_id, payee_id, amount, platform_fee, payee_amount, description, category, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING *
		`, t.Reference, t.PayerID, t.PayeeID, t.Amount, t.PlatformFee, t.PayeeAmount, t.Description, t.Category, models.StatusPending)
		if err != nil {
			return fmt.Errorf("transaction repository: create %w", err)
		}

		description := fmt.Sprintf("Сделка %s создана", t.Reference)
		return r.audit.Append(ctx, tx, t.ID, models.EventCreated, description, &t.PayerID)
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return common.GetByID[models.Transaction](ctx, r.db, "transactions", id, ErrTransactionNotFound)
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return common.GetByField[models.Transaction](ctx, r.db, "transactions", "reference", reference, ErrTransactionNotFound)
}

// List возвращает сделки пользователя: как плательщика, как исполнителя или обе роли.
func (r *TransactionRepository) List(ctx context.Context, userID uuid.UUID, role, status string, limit, offset int) ([]models.Transaction, error) {
	query := `SELECT * FROM transactions WHERE `
	args := []interface{}{userID}

	switch role {
	case "payer":
		query += `payer_id = $1`
	case "payee":
		query += `payee_id = $1`
	default:
		query += `(payer_id = $1 OR payee_id = $1)`
	}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var transactions []models.Transaction
	if err := r.db.SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("transaction repository: list %w", err)
	}
	return transactions, nil
}

// MarkPaid подтверждает оплату: PENDING -> PAID, сумма удерживается в escrow
// плательщика. Повтор того же вебхука (сделка уже PAID с тем же payment_ref)
// возвращает ErrAlreadyProcessed без повторного удержания.
func (r *TransactionRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}

		if t.IsPaid && t.PaymentReference != nil && *t.PaymentReference == paymentRef {
			result = *t
			return ErrAlreadyProcessed
		}
		if t.Status != models.StatusPending {
			return fmt.Errorf("mark paid from %s: %w", t.Status, ErrInvalidTransition)
		}

		if err := r.wallets.Hold(ctx, tx, t.PayerID, t.Amount); err != nil {
			return err
		}

		err = tx.GetContext(ctx, &result, `
			UPDATE transactions
			SET status = $2, is_paid = TRUE, payment_reference = $3, paid_at = NOW()
			WHERE id = $1
			RETURNING *
		`, id, models.StatusPaid, paymentRef)
		if err != nil {
			return fmt.Errorf("transaction repository: mark paid %w", err)
		}

		description := fmt.Sprintf("%s получено и удержано в escrow", t.Amount.StringFixed(2))
		return r.audit.Append(ctx, tx, id, models.EventPaymentReceived, description, &t.PayerID)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return &result, ErrAlreadyProcessed
		}
		return nil, err
	}
	return &result, nil
}

// StartWork — исполнитель принял сделку: PAID -> IN_PROGRESS.
func (r *TransactionRepository) StartWork(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != models.StatusPaid {
			return fmt.Errorf("start work from %s: %w", t.Status, ErrInvalidTransition)
		}

		err = tx.GetContext(ctx, &result, `
			UPDATE transactions SET status = $2, work_started_at = NOW() WHERE id = $1 RETURNING *
		`, id, models.StatusInProgress)
		if err != nil {
			return fmt.Errorf("transaction repository: start work %w", err)
		}

		return r.audit.Append(ctx, tx, id, models.EventWorkStarted, "Исполнитель приступил к работе", &t.PayeeID)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteWork — исполнитель сдал работу: IN_PROGRESS -> COMPLETED.
// Дедлайн авто-релиза устанавливается ровно один раз, при первом входе в
// COMPLETED, и дальше не переписывается.
func (r *TransactionRepository) CompleteWork(ctx context.Context, id uuid.UUID, autoReleaseAt time.Time) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != models.StatusInProgress {
			return fmt.Errorf("complete work from %s: %w", t.Status, ErrInvalidTransition)
		}

		err = tx.GetContext(ctx, &result, `
			UPDATE transactions
			SET status = $2,
			    work_completed_at = NOW(),
			    auto_release_at = COALESCE(auto_release_at, $3)
			WHERE id = $1
			RETURNING *
		`, id, models.StatusCompleted, autoReleaseAt)
		if err != nil {
			return fmt.Errorf("transaction repository: complete work %w", err)
		}

		return r.audit.Append(ctx, tx, id, models.EventWorkCompleted, "Исполнитель отметил работу выполненной", &t.PayeeID)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Release выплачивает исполнителю его долю из escrow. approvedBy != nil —
// путь явного одобрения плательщиком (COMPLETED -> APPROVED -> RELEASED одной
// атомарной операцией, промежуточный APPROVED снаружи не наблюдаем);
// approvedBy == nil — авто-релиз планировщика. Повторный вызов по уже
// выплаченной сделке возвращает ErrAlreadyProcessed: перевод выполняется
// ровно один раз.
func (r *TransactionRepository) Release(ctx context.Context, id uuid.UUID, approvedBy *uuid.UUID) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}

		if t.Status == models.StatusReleased {
			result = *t
			return ErrAlreadyProcessed
		}
		if t.IsDisputed {
			return fmt.Errorf("release disputed transaction: %w", ErrInvalidTransition)
		}
		if approvedBy != nil {
			if t.Status != models.StatusCompleted {
				return fmt.Errorf("approve from %s: %w", t.Status, ErrInvalidTransition)
			}
		} else if t.Status != models.StatusCompleted && t.Status != models.StatusApproved {
			return fmt.Errorf("release from %s: %w", t.Status, ErrInvalidTransition)
		}

		if err := r.wallets.ReleaseToPayee(ctx, tx, t.PayerID, t.PayeeID, t.Amount, t.PayeeAmount); err != nil {
			return err
		}

		if approvedBy != nil {
			err = tx.GetContext(ctx, &result, `
				UPDATE transactions
				SET status = $2, approved_at = NOW(), released_at = NOW()
				WHERE id = $1
				RETURNING *
			`, id, models.StatusReleased)
		} else {
			err = tx.GetContext(ctx, &result, `
				UPDATE transactions SET status = $2, released_at = NOW() WHERE id = $1 RETURNING *
			`, id, models.StatusReleased)
		}
		if err != nil {
			return fmt.Errorf("transaction repository: release %w", err)
		}

		// Обе стороны закрыли сделку успешно.
		if err := r.stats.IncrementCompleted(ctx, tx, t.PayerID); err != nil {
			return err
		}
		if err := r.stats.IncrementCompleted(ctx, tx, t.PayeeID); err != nil {
			return err
		}

		description := fmt.Sprintf("%s выплачено исполнителю", t.PayeeAmount.StringFixed(2))
		return r.audit.Append(ctx, tx, id, models.EventPaymentReleased, description, approvedBy)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return &result, ErrAlreadyProcessed
		}
		return nil, err
	}
	return &result, nil
}

// Cancel отменяет неоплаченную сделку: PENDING -> CANCELLED. После оплаты
// отмена невозможна — удержанные деньги выходят из escrow только через
// release или решение спора.
func (r *TransactionRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}

		if t.Status == models.StatusCancelled {
			result = *t
			return ErrAlreadyProcessed
		}
		if t.Status != models.StatusPending {
			return fmt.Errorf("cancel from %s: %w", t.Status, ErrInvalidTransition)
		}

		err = tx.GetContext(ctx, &result, `
			UPDATE transactions SET status = $2 WHERE id = $1 RETURNING *
		`, id, models.StatusCancelled)
		if err != nil {
			return fmt.Errorf("transaction repository: cancel %w", err)
		}

		return r.audit.Append(ctx, tx, id, models.EventCancelled, "Сделка отменена до оплаты", &t.PayerID)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return &result, ErrAlreadyProcessed
		}
		return nil, err
	}
	return &result, nil
}

// RaiseDispute — плательщик оспорил сделанную работу: COMPLETED -> DISPUTED.
// Счётчик споров исполнителя растёт в той же транзакции.
func (r *TransactionRepository) RaiseDispute(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.IsDisputed {
			return fmt.Errorf("dispute already raised: %w", ErrInvalidTransition)
		}
		if t.Status != models.StatusCompleted {
			return fmt.Errorf("raise dispute from %s: %w", t.Status, ErrInvalidTransition)
		}

		err = tx.GetContext(ctx, &result, `
			UPDATE transactions
			SET status = $2, is_disputed = TRUE, dispute_reason = $3, dispute_raised_at = NOW()
			WHERE id = $1
			RETURNING *
		`, id, models.StatusDisputed, reason)
		if err != nil {
			return fmt.Errorf("transaction repository: raise dispute %w", err)
		}

		if err := r.stats.IncrementDisputes(ctx, tx, t.PayeeID); err != nil {
			return err
		}

		return r.audit.Append(ctx, tx, id, models.EventDisputeRaised, "Плательщик открыл спор: "+reason, &t.PayerID)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveDispute применяет решение арбитра. refund_percentage == 100 — полный
// возврат плательщику (REFUNDED); == 0 — полная выплата исполнителю по
// исходному, замороженному при создании разбиению комиссии (RELEASED);
// иначе — разделение суммы (RELEASED).
func (r *TransactionRepository) ResolveDispute(ctx context.Context, id uuid.UUID, p ResolveDisputeParams) (*models.Transaction, error) {
	var result models.Transaction
	err := common.WithLockedTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		t, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != models.StatusDisputed {
			return fmt.Errorf("resolve dispute from %s: %w", t.Status, ErrInvalidTransition)
		}

		newStatus := models.StatusReleased
		var description string

		switch {
		case p.RefundPercentage == 100:
			if err := r.wallets.RefundToPayer(ctx, tx, t.PayerID, t.Amount); err != nil {
				return err
			}
			newStatus = models.StatusRefunded
			description = fmt.Sprintf("Спор решён в пользу плательщика, возврат %s", t.Amount.StringFixed(2))
		case p.RefundPercentage == 0:
			// Полная выплата: действует исходное разбиение комиссии, не пересчитываем.
			if err := r.wallets.ReleaseToPayee(ctx, tx, t.PayerID, t.PayeeID, t.Amount, t.PayeeAmount); err != nil {
				return err
			}
			if err := r.stats.IncrementCompleted(ctx, tx, t.PayerID); err != nil {
				return err
			}
			if err := r.stats.IncrementCompleted(ctx, tx, t.PayeeID); err != nil {
				return err
			}
			description = fmt.Sprintf("Спор решён в пользу исполнителя, выплачено %s", t.PayeeAmount.StringFixed(2))
		default:
			if err := r.wallets.Split(ctx, tx, t.PayerID, t.PayeeID, t.Amount, p.RefundAmount, p.PayeeAmount); err != nil {
				return err
			}
			description = fmt.Sprintf("Спор решён разделением: возврат %s, выплата %s",
				p.RefundAmount.StringFixed(2), p.PayeeAmount.StringFixed(2))
		}

		// released_at остаётся пустым при полном возврате: выплаты не было.
		err = tx.GetContext(ctx, &result, `
			UPDATE transactions
			SET status = $2,
			    is_disputed = FALSE,
			    refund_percentage = $3,
			    admin_notes = $4,
			    dispute_resolved_at = NOW(),
			    released_at = CASE WHEN $2 = 'RELEASED' THEN COALESCE(released_at, NOW()) ELSE released_at END
			WHERE id = $1
			RETURNING *
		`, id, newStatus, p.RefundPercentage, p.Notes)
		if err != nil {
			return fmt.Errorf("transaction repository: resolve dispute %w", err)
		}

		if err := r.audit.Append(ctx, tx, id, models.EventDisputeResolved, description, &p.ResolvedBy); err != nil {
			return err
		}
		if newStatus == models.StatusRefunded {
			refundDesc := fmt.Sprintf("%s возвращено плательщику", t.Amount.StringFixed(2))
			return r.audit.Append(ctx, tx, id, models.EventRefunded, refundDesc, &p.ResolvedBy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListDueForAutoRelease возвращает идентификаторы сделок, дедлайн проверки
// которых прошёл. Только выборка, без блокировок: каждую сделку релизит
// отдельная транзакция, чтобы одна зависшая не остановила весь проход.
func (r *TransactionRepository) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM transactions
		WHERE status = $1 AND is_disputed = FALSE AND auto_release_at <= $2
		ORDER BY auto_release_at
		LIMIT $3
	`, models.StatusCompleted, now, limit)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list due for auto release %w", err)
	}
	return ids, nil
}

// ListReminderCandidates возвращает сделки, дедлайн которых попадает в окно
// [from, to): по ним плательщику отправляется напоминание о приближающемся
// авто-релизе. Никакого влияния на машину состояний.
func (r *TransactionRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE status = $1 AND is_disputed = FALSE
		  AND auto_release_at >= $2 AND auto_release_at < $3
	`, models.StatusCompleted, from, to)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list reminder candidates %w", err)
	}
	return transactions, nil
}

// lockTransaction читает строку сделки под FOR UPDATE. Статус перечитывается
// здесь же, под блокировкой: проигравший гонку увидит уже зафиксированное
// состояние соперника и упадёт чисто.
func lockTransaction(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: lock %w", err)
	}
	return &t, nil
}
