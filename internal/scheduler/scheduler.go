package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// autoReleaseBatchSize ограничивает один проход, остальное подберёт следующий тик.
const autoReleaseBatchSize = 500

// SweepRepository описывает выборки планировщика. Только чтение: каждую
// найденную сделку релизит отдельная атомарная операция сервиса.
type SweepRepository interface {
	ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

// Releaser выполняет авто-релиз одной сделки.
type Releaser interface {
	AutoRelease(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// Scheduler — единственный автономный актор системы: по таймеру выплачивает
// сделки с истёкшим окном проверки и рассылает напоминания плательщикам.
type Scheduler struct {
	repo     SweepRepository
	escrow   Releaser
	notifier service.Notifier
	cfg      config.EscrowConfig
	log      *logrus.Logger
}

func New(repo SweepRepository, escrow Releaser, notifier service.Notifier, cfg config.EscrowConfig, log *logrus.Logger) *Scheduler {
	return &Scheduler{repo: repo, escrow: escrow, notifier: notifier, cfg: cfg, log: log}
}

// Run запускает оба цикла и блокируется до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, s.runReminderLoop)
	s.runAutoReleaseLoop(ctx)
}

func (s *Scheduler) runAutoReleaseLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.AutoReleaseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, failed := s.RunAutoReleaseTick(ctx)
			if released > 0 || failed > 0 {
				s.log.WithFields(logrus.Fields{
					"released": released,
					"failed":   failed,
				}).Info("scheduler: проход авто-релиза завершён")
			}
		}
	}
}

// RunAutoReleaseTick делает один проход авто-релиза. Блокировки берутся
// по одной сделке, не на весь батч: одна зависшая сделка не останавливает
// проход. Сбой по отдельной сделке (например, параллельно открытый спор)
// логируется и пропускается — без повторов внутри тика, подберёт следующий.
func (s *Scheduler) RunAutoReleaseTick(ctx context.Context) (released, failed int) {
	ids, err := s.repo.ListDueForAutoRelease(ctx, time.Now(), autoReleaseBatchSize)
	if err != nil {
		s.log.Errorf("scheduler: выборка сделок для авто-релиза: %v", err)
		return 0, 0
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return released, failed
		}
		if _, err := s.escrow.AutoRelease(ctx, id); err != nil {
			if apperror.IsAlreadyProcessed(err) {
				continue
			}
			failed++
			s.log.WithFields(logrus.Fields{
				"transaction": id,
			}).Warnf("scheduler: авто-релиз не выполнен: %v", err)
			continue
		}
		released++
	}
	return released, failed
}

func (s *Scheduler) runReminderLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunReminderTick(ctx)
		}
	}
}

// RunReminderTick напоминает плательщикам о приближающемся авто-релизе.
// Чисто информационный проход, машину состояний не трогает.
func (s *Scheduler) RunReminderTick(ctx context.Context) int {
	if s.notifier == nil {
		return 0
	}
	from := time.Now().Add(s.cfg.ReminderBefore)
	to := from.Add(s.cfg.ReminderInterval)

	transactions, err := s.repo.ListReminderCandidates(ctx, from, to)
	if err != nil {
		s.log.Errorf("scheduler: выборка сделок для напоминаний: %v", err)
		return 0
	}

	sent := 0
	for _, t := range transactions {
		if err := s.notifier.Notify(ctx, t.PayerID, service.NotifyReminder, t.ID); err != nil {
			s.log.Warnf("scheduler: напоминание по сделке %s не отправлено: %v", t.Reference, err)
			continue
		}
		sent++
	}
	return sent
}
