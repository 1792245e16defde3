package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/events/kafka"
	httpHandlers "github.com/ignatzorin/escrow-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/scheduler"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
	}
	logger.Init(logLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Исходящая очередь уведомлений. Без брокеров работаем без неё:
	// доставка уведомлений не входит в критический путь ядра.
	var notifier service.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		notifier = publisher
	} else {
		logger.Log.Warn("main: KAFKA_BROKERS не задан, уведомления отключены")
	}

	// Репозитории.
	walletRepo := repository.NewWalletRepository(dbConn)
	statsRepo := repository.NewUserStatsRepository(dbConn)
	auditRepo := repository.NewAuditRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn, walletRepo, statsRepo, auditRepo)

	// Сервисы.
	reputationService := service.NewReputationService(statsRepo)
	escrowService := service.NewEscrowService(transactionRepo, auditRepo, notifier, reputationService, cfg.Escrow)
	walletService := service.NewWalletService(walletRepo)

	// Планировщик авто-релиза и напоминаний.
	sweeper := scheduler.New(transactionRepo, escrowService, notifier, cfg.Escrow, logger.Log)
	go sweeper.Run(ctx)

	// HTTP хэндлеры.
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	webhookHandler := httpHandlers.NewWebhookHandler(escrowService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(cfg, escrowHandler, walletHandler, webhookHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
