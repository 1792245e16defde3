package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type mockSweepRepo struct {
	mock.Mock
}

func (m *mockSweepRepo) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockSweepRepo) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

type mockReleaser struct {
	mock.Mock
}

func (m *mockReleaser) AutoRelease(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, recipientID uuid.UUID, event string, transactionID uuid.UUID) error {
	args := m.Called(ctx, recipientID, event, transactionID)
	return args.Error(0)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testSchedulerConfig() config.EscrowConfig {
	return config.EscrowConfig{
		AutoReleaseInterval: 30 * time.Minute,
		ReminderInterval:    15 * time.Minute,
		ReminderBefore:      2 * 24 * time.Hour,
	}
}

func TestScheduler_RunAutoReleaseTick(t *testing.T) {
	repo := new(mockSweepRepo)
	releaser := new(mockReleaser)
	s := New(repo, releaser, nil, testSchedulerConfig(), testLogger())
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo.On("ListDueForAutoRelease", ctx, mock.AnythingOfType("time.Time"), autoReleaseBatchSize).Return(ids, nil)

	for _, id := range ids {
		released := &models.Transaction{ID: id, Status: models.StatusReleased}
		releaser.On("AutoRelease", ctx, id).Return(released, nil)
	}

	released, failed := s.RunAutoReleaseTick(ctx)
	assert.Equal(t, 3, released)
	assert.Equal(t, 0, failed)
	releaser.AssertExpectations(t)
}

func TestScheduler_RunAutoReleaseTick_FailureIsolated(t *testing.T) {
	repo := new(mockSweepRepo)
	releaser := new(mockReleaser)
	s := New(repo, releaser, nil, testSchedulerConfig(), testLogger())
	ctx := context.Background()

	good := uuid.New()
	bad := uuid.New()
	repo.On("ListDueForAutoRelease", ctx, mock.AnythingOfType("time.Time"), autoReleaseBatchSize).
		Return([]uuid.UUID{bad, good}, nil)

	// Первая сделка падает (например, параллельно открыли спор) —
	// вторая всё равно обрабатывается.
	releaser.On("AutoRelease", ctx, bad).Return(nil, errors.New("сделка оспорена"))
	releaser.On("AutoRelease", ctx, good).Return(&models.Transaction{ID: good, Status: models.StatusReleased}, nil)

	released, failed := s.RunAutoReleaseTick(ctx)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, failed)
	releaser.AssertExpectations(t)
}

func TestScheduler_RunAutoReleaseTick_AlreadyProcessedSkipped(t *testing.T) {
	repo := new(mockSweepRepo)
	releaser := new(mockReleaser)
	s := New(repo, releaser, nil, testSchedulerConfig(), testLogger())
	ctx := context.Background()

	id := uuid.New()
	repo.On("ListDueForAutoRelease", ctx, mock.AnythingOfType("time.Time"), autoReleaseBatchSize).
		Return([]uuid.UUID{id}, nil)
	// Кто-то успел выплатить между выборкой и блокировкой: не сбой и не успех.
	releaser.On("AutoRelease", ctx, id).
		Return(nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "оплата уже выплачена"))

	released, failed := s.RunAutoReleaseTick(ctx)
	assert.Equal(t, 0, released)
	assert.Equal(t, 0, failed)
}

func TestScheduler_RunAutoReleaseTick_ListError(t *testing.T) {
	repo := new(mockSweepRepo)
	releaser := new(mockReleaser)
	s := New(repo, releaser, nil, testSchedulerConfig(), testLogger())
	ctx := context.Background()

	repo.On("ListDueForAutoRelease", ctx, mock.AnythingOfType("time.Time"), autoReleaseBatchSize).
		Return(nil, errors.New("база недоступна"))

	released, failed := s.RunAutoReleaseTick(ctx)
	assert.Equal(t, 0, released)
	assert.Equal(t, 0, failed)
	releaser.AssertNotCalled(t, "AutoRelease", mock.Anything, mock.Anything)
}

func TestScheduler_RunReminderTick(t *testing.T) {
	repo := new(mockSweepRepo)
	notifier := new(mockNotifier)
	s := New(repo, nil, notifier, testSchedulerConfig(), testLogger())
	ctx := context.Background()

	first := models.Transaction{ID: uuid.New(), PayerID: uuid.New(), Reference: "TXN-AAAA1111"}
	second := models.Transaction{ID: uuid.New(), PayerID: uuid.New(), Reference: "TXN-BBBB2222"}

	repo.On("ListReminderCandidates", ctx, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Return([]models.Transaction{first, second}, nil)
	notifier.On("Notify", ctx, first.PayerID, service.NotifyReminder, first.ID).Return(nil)
	// Сбой доставки по одной сделке не мешает остальным.
	notifier.On("Notify", ctx, second.PayerID, service.NotifyReminder, second.ID).
		Return(errors.New("брокер недоступен"))

	sent := s.RunReminderTick(ctx)
	assert.Equal(t, 1, sent)
	notifier.AssertExpectations(t)
}

func TestScheduler_RunReminderTick_NoNotifier(t *testing.T) {
	repo := new(mockSweepRepo)
	s := New(repo, nil, nil, testSchedulerConfig(), testLogger())

	// Без очереди уведомлений проход просто не выполняется.
	sent := s.RunReminderTick(context.Background())
	assert.Equal(t, 0, sent)
	repo.AssertNotCalled(t, "ListReminderCandidates", mock.Anything, mock.Anything, mock.Anything)
}
