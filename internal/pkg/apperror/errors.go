package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeAlreadyProcessed  ErrorCode = "ALREADY_PROCESSED"
	ErrCodeLedgerInvariant   ErrorCode = "LEDGER_INVARIANT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation, ErrCodeInvalidTransition:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeAlreadyProcessed:
		// Идемпотентный повтор: для вызывающего это успех, а не ошибка.
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки, если это AppError.
func CodeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeNotFound
}

func IsInvalidTransition(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeInvalidTransition
}

func IsConflict(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeConflict
}

func IsAlreadyProcessed(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeAlreadyProcessed
}

func IsLedgerInvariant(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeLedgerInvariant
}

var (
	ErrTransactionNotFound = New(ErrCodeNotFound, "сделка не найдена")
	ErrWalletNotFound      = New(ErrCodeNotFound, "кошелёк не найден")
	ErrUserNotFound        = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
)
