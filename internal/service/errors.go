package service

import (
	"errors"
	"fmt"

	"riskguard/internal/repository"
	"riskguard/pkg/utils"
)

// Ошибки сервисов
var (
	ErrAccountNotFound = repository.ErrAccountNotFound
	ErrAccountExists   = repository.ErrAccountExists
	ErrOrderNotFound   = repository.ErrOrderNotFound

	ErrTradingDisabled        = errors.New("trading is disabled for this account")
	ErrInvalidOrderTransition = errors.New("invalid order status transition")
	ErrCredentialsRejected    = errors.New("exchange rejected account credentials")
	ErrClientIDExhausted      = errors.New("failed to generate unique client id")

	// ErrValidation - общий sentinel, с ним совпадают ValidationError и utils.ValidationErrors
	ErrValidation = utils.ErrValidation
)

// ValidationError - нарушение бизнес-правила для одного поля запроса
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is позволяет проверять errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
