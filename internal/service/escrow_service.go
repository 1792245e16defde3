package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

// События исходящих уведомлений. Доставкой и форматированием занимается
// внешний сервис; сбой доставки никогда не откатывает состояние ядра.
const (
	NotifyCreated      = "created"
	NotifyPaid         = "paid"
	NotifyStarted      = "started"
	NotifyCompleted    = "completed"
	NotifyDisputed     = "disputed"
	NotifyResolved     = "resolved"
	NotifyReleased     = "released"
	NotifyAutoReleased = "auto_released"
	NotifyReminder     = "reminder"
	NotifyCancelled    = "cancelled"
)

// TransactionRepository описывает атомарные операции машины состояний сделки.
type TransactionRepository interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, role, status string, limit, offset int) ([]models.Transaction, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*models.Transaction, error)
	StartWork(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	CompleteWork(ctx context.Context, id uuid.UUID, autoReleaseAt time.Time) (*models.Transaction, error)
	Release(ctx context.Context, id uuid.UUID, approvedBy *uuid.UUID) (*models.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	RaiseDispute(ctx context.Context, id uuid.UUID, reason string) (*models.Transaction, error)
	ResolveDispute(ctx context.Context, id uuid.UUID, p repository.ResolveDisputeParams) (*models.Transaction, error)
}

// AuditReader отдаёт таймлайн сделки.
type AuditReader interface {
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.AuditEntry, error)
}

// Notifier кладёт событие в исходящую очередь уведомлений.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, event string, transactionID uuid.UUID) error
}

// ReputationUpdater пересчитывает рейтинг доверия пользователя.
type ReputationUpdater interface {
	Recalculate(ctx context.Context, userID uuid.UUID) error
}

// EscrowService — фасад жизненного цикла escrow-сделки. Проверяет права
// вызывающего и входные данные, дергает атомарные операции репозитория,
// после коммита шлёт уведомления и пересчитывает рейтинг.
type EscrowService struct {
	repo       TransactionRepository
	audit      AuditReader
	notifier   Notifier
	reputation ReputationUpdater
	cfg        config.EscrowConfig
}

func NewEscrowService(repo TransactionRepository, audit AuditReader, notifier Notifier, reputation ReputationUpdater, cfg config.EscrowConfig) *EscrowService {
	return &EscrowService{repo: repo, audit: audit, notifier: notifier, reputation: reputation, cfg: cfg}
}

// Create создаёт сделку в статусе PENDING. Разбиение на комиссию и долю
// исполнителя считается здесь один раз и замораживается.
func (s *EscrowService) Create(ctx context.Context, payerID, payeeID uuid.UUID, amount decimal.Decimal, description string, category *string) (*models.Transaction, error) {
	if payerID == payeeID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя создать сделку с самим собой")
	}
	if amount.LessThan(s.cfg.MinAmount) || amount.GreaterThan(s.cfg.MaxAmount) {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма сделки вне допустимых пределов")
	}
	if description == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "описание услуги обязательно")
	}

	fee, payeeAmount := models.ComputeFeeSplit(amount, s.cfg.FeePercent)

	t := &models.Transaction{
		Reference:   models.NewReference(),
		PayerID:     payerID,
		PayeeID:     payeeID,
		Amount:      amount,
		PlatformFee: fee,
		PayeeAmount: payeeAmount,
		Description: description,
		Category:    category,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, s.translate(err)
	}

	s.notify(ctx, t.PayeeID, NotifyCreated, t.ID)
	return t, nil
}

// MarkPaid подтверждает оплату от платёжного шлюза. Вызывающий (интеграция
// шлюза) уже самостоятельно верифицировал платёж. Повтор вебхука возвращает
// ошибку с кодом ALREADY_PROCESSED и прежний результат — без второго удержания.
func (s *EscrowService) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*models.Transaction, error) {
	if paymentRef == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "отсутствует референс платежа")
	}

	t, err := s.repo.MarkPaid(ctx, id, paymentRef)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return t, apperror.Wrap(err, apperror.ErrCodeAlreadyProcessed, "оплата уже подтверждена")
		}
		return nil, s.translate(err)
	}

	s.notify(ctx, t.PayerID, NotifyPaid, t.ID)
	s.notify(ctx, t.PayeeID, NotifyPaid, t.ID)
	return t, nil
}

// StartWork — исполнитель принимает оплаченную сделку в работу.
func (s *EscrowService) StartWork(ctx context.Context, id, callerID uuid.UUID) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayeeID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "начать работу может только исполнитель")
	}

	t, err = s.repo.StartWork(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}

	s.notify(ctx, t.PayerID, NotifyStarted, t.ID)
	return t, nil
}

// CompleteWork — исполнитель сдаёт работу. С этого момента тикает окно
// проверки: если плательщик не одобрит и не оспорит, сработает авто-релиз.
func (s *EscrowService) CompleteWork(ctx context.Context, id, callerID uuid.UUID) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayeeID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "завершить работу может только исполнитель")
	}

	t, err = s.repo.CompleteWork(ctx, id, time.Now().Add(s.cfg.ReviewWindow))
	if err != nil {
		return nil, s.translate(err)
	}

	s.notify(ctx, t.PayerID, NotifyCompleted, t.ID)
	return t, nil
}

// Approve — плательщик одобряет выполненную работу, что сразу выплачивает
// деньги исполнителю одной атомарной операцией.
func (s *EscrowService) Approve(ctx context.Context, id, callerID uuid.UUID) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "одобрить оплату может только плательщик")
	}

	t, err = s.repo.Release(ctx, id, &callerID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return t, apperror.Wrap(err, apperror.ErrCodeAlreadyProcessed, "оплата уже выплачена")
		}
		return nil, s.translate(err)
	}

	s.recalculate(ctx, t.PayeeID)
	s.notify(ctx, t.PayerID, NotifyReleased, t.ID)
	s.notify(ctx, t.PayeeID, NotifyReleased, t.ID)
	return t, nil
}

// AutoRelease выплачивает деньги по истёкшему окну проверки. Вызывается
// планировщиком; конкурентно открытый спор здесь проиграть не может —
// репозиторий перечитает статус под блокировкой и вернёт ошибку перехода.
func (s *EscrowService) AutoRelease(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := s.repo.Release(ctx, id, nil)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return t, apperror.Wrap(err, apperror.ErrCodeAlreadyProcessed, "оплата уже выплачена")
		}
		return nil, s.translate(err)
	}

	s.recalculate(ctx, t.PayeeID)
	s.notify(ctx, t.PayerID, NotifyAutoReleased, t.ID)
	s.notify(ctx, t.PayeeID, NotifyAutoReleased, t.ID)
	return t, nil
}

// Cancel — плательщик отменяет ещё не оплаченную сделку.
func (s *EscrowService) Cancel(ctx context.Context, id, callerID uuid.UUID) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отменить сделку может только плательщик")
	}

	t, err = s.repo.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return t, apperror.Wrap(err, apperror.ErrCodeAlreadyProcessed, "сделка уже отменена")
		}
		return nil, s.translate(err)
	}

	s.notify(ctx, t.PayeeID, NotifyCancelled, t.ID)
	return t, nil
}

// RaiseDispute — плательщик оспаривает сданную работу до истечения окна проверки.
func (s *EscrowService) RaiseDispute(ctx context.Context, id, callerID uuid.UUID, reason string) (*models.Transaction, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "необходимо указать причину спора")
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "открыть спор может только плательщик")
	}

	t, err = s.repo.RaiseDispute(ctx, id, reason)
	if err != nil {
		return nil, s.translate(err)
	}

	s.recalculate(ctx, t.PayeeID)
	s.notify(ctx, t.PayeeID, NotifyDisputed, t.ID)
	return t, nil
}

// ResolveDispute применяет решение арбитра. Право арбитража проверяет внешний
// сервис доступа, ядро доверяет переданному флагу.
func (s *EscrowService) ResolveDispute(ctx context.Context, id, arbiterID uuid.UUID, isArbiter bool, refundPercentage int, notes string) (*models.Transaction, error) {
	if !isArbiter {
		return nil, apperror.New(apperror.ErrCodeForbidden, "решать споры может только арбитр")
	}
	if refundPercentage < 0 || refundPercentage > 100 {
		return nil, apperror.New(apperror.ErrCodeValidation, "процент возврата должен быть от 0 до 100")
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}

	refund, payeeAmount := models.SplitAmount(t.Amount, refundPercentage)

	t, err = s.repo.ResolveDispute(ctx, id, repository.ResolveDisputeParams{
		RefundPercentage: refundPercentage,
		RefundAmount:     refund,
		PayeeAmount:      payeeAmount,
		Notes:            notes,
		ResolvedBy:       arbiterID,
	})
	if err != nil {
		return nil, s.translate(err)
	}

	if refundPercentage == 0 {
		// Полная выплата — по сути release, рейтинг исполнителя пересчитываем.
		s.recalculate(ctx, t.PayeeID)
	}
	s.notify(ctx, t.PayerID, NotifyResolved, t.ID)
	s.notify(ctx, t.PayeeID, NotifyResolved, t.ID)
	return t, nil
}

// GetTransaction возвращает сделку участнику или арбитру.
func (s *EscrowService) GetTransaction(ctx context.Context, id, callerID uuid.UUID, isArbiter bool) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayerID && callerID != t.PayeeID && !isArbiter {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вы не участник этой сделки")
	}
	return t, nil
}

// GetByReference возвращает сделку по человекочитаемому номеру TXN-XXXXXXXX.
func (s *EscrowService) GetByReference(ctx context.Context, reference string, callerID uuid.UUID, isArbiter bool) (*models.Transaction, error) {
	t, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, s.translate(err)
	}
	if callerID != t.PayerID && callerID != t.PayeeID && !isArbiter {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вы не участник этой сделки")
	}
	return t, nil
}

// ListTransactions возвращает сделки пользователя с фильтрами по роли и статусу.
func (s *EscrowService) ListTransactions(ctx context.Context, userID uuid.UUID, role, status string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if status != "" {
		if _, ok := models.ValidStatuses[status]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус")
		}
	}
	transactions, err := s.repo.List(ctx, userID, role, status, limit, offset)
	if err != nil {
		return nil, s.translate(err)
	}
	return transactions, nil
}

// Timeline возвращает историю событий сделки участнику или арбитру.
func (s *EscrowService) Timeline(ctx context.Context, id, callerID uuid.UUID, isArbiter bool) ([]models.AuditEntry, error) {
	if _, err := s.GetTransaction(ctx, id, callerID, isArbiter); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByTransaction(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	return entries, nil
}

// notify отправляет событие в исходящую очередь. Сбой доставки логируется и
// не влияет на результат операции.
func (s *EscrowService) notify(ctx context.Context, recipientID uuid.UUID, event string, transactionID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipientID, event, transactionID); err != nil && logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"recipient":   recipientID,
			"event":       event,
			"transaction": transactionID,
		}).Warnf("escrow service: не удалось отправить уведомление: %v", err)
	}
}

// recalculate пересчитывает рейтинг доверия после события. Ошибка не фатальна.
func (s *EscrowService) recalculate(ctx context.Context, userID uuid.UUID) {
	if s.reputation == nil {
		return
	}
	if err := s.reputation.Recalculate(ctx, userID); err != nil && logger.Log != nil {
		logger.Log.Warnf("escrow service: не удалось пересчитать рейтинг %s: %v", userID, err)
	}
}

// translate конвертирует ошибки нижних слоёв в пользовательскую таксономию.
func (s *EscrowService) translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		return apperror.ErrTransactionNotFound
	case errors.Is(err, repository.ErrInvalidTransition):
		return apperror.Wrap(err, apperror.ErrCodeInvalidTransition, "операция недопустима в текущем статусе сделки")
	case errors.Is(err, repository.ErrAlreadyProcessed):
		return apperror.Wrap(err, apperror.ErrCodeAlreadyProcessed, "операция уже выполнена")
	case errors.Is(err, repository.ErrLedgerInvariant):
		// Такого при консистентном статусе не бывает: значит где-то логическая
		// ошибка. Логируем как error и не пытаемся молча поправить.
		if logger.Log != nil {
			logger.Log.Errorf("escrow service: нарушение инварианта баланса: %v", err)
		}
		return apperror.Wrap(err, apperror.ErrCodeLedgerInvariant, "внутренняя ошибка учёта средств")
	case errors.Is(err, repository.ErrInvalidAmount):
		return apperror.Wrap(err, apperror.ErrCodeValidation, "сумма операции должна быть положительной")
	case common.IsLockTimeout(err):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "сделка занята другой операцией, повторите попытку")
	default:
		return apperror.Wrap(err, apperror.ErrCodeInternal, "внутренняя ошибка")
	}
}
