package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// lockNotAvailable — код PostgreSQL при истечении lock_timeout.
const lockNotAvailable = "55P03"

// DefaultLockTimeout ограничивает ожидание блокировок строк, чтобы ни один
// вызов не повис навсегда: по истечении вызывающий получает Conflict и
// может повторить попытку.
const DefaultLockTimeout = "3s"

// GetByID - универсальная функция для получения сущности по ID
// Устраняет дубликаты кода GetByID во всех репозиториях
func GetByID[T any](ctx context.Context, db *sqlx.DB, table string, id interface{}, notFoundErr error) (*T, error) {
	var entity T
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table)

	if err := db.GetContext(ctx, &entity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("get by id from %s: %w", table, err)
	}

	return &entity, nil
}

// GetByField - универсальная функция для получения сущности по любому полю
func GetByField[T any](ctx context.Context, db *sqlx.DB, table, field string, value interface{}, notFoundErr error) (*T, error) {
	var entity T
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field)

	if err := db.GetContext(ctx, &entity, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("get by %s from %s: %w", field, table, err)
	}

	return &entity, nil
}

// WithTransaction выполняет функцию внутри транзакции с правильной обработкой ошибок
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			// При панике откатываем транзакцию
			_ = tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithLockedTransaction — как WithTransaction, но с ограничением времени
// ожидания блокировок строк. Каждая операция жизненного цикла сделки
// (статус + кошельки + запись таймлайна) выполняется внутри одной такой
// транзакции.
func WithLockedTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return WithTransaction(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", DefaultLockTimeout)); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
		return fn(tx)
	})
}

// IsLockTimeout сообщает, упала ли операция по истечению lock_timeout.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == lockNotAvailable
}
