package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// validator.go - валидация входных данных
//
// Структуры запросов описывают правила тегами `validate:"..."`.
// decimal.Decimal и decimal.NullDecimal приводятся к float64 для
// стандартных правил gt/lte; невалидный NullDecimal считается пустым.
//
// Кастомные теги:
// - exchange_symbol: тикер биржи (PF_XBTUSD, XBTUSD, ETH/USD)
// - client_id: 10-значный идентификатор клиента
// - base64key: непустой base64 (приватный ключ биржи)

var (
	symbolRegex   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-/:.]{1,29}$`)
	clientIDRegex = regexp.MustCompile(`^[0-9]{10}$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// ErrValidation - базовая ошибка валидации для errors.Is
var ErrValidation = errors.New("validation failed")

// FieldError описывает нарушение правила для одного поля
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationErrors - набор ошибок валидации структуры
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field, fe.Rule, fe.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Rule))
		}
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is позволяет проверять errors.Is(err, ErrValidation)
func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Имена полей в ошибках берём из json-тегов
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})

		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})

		_ = v.RegisterValidation("exchange_symbol", func(fl validator.FieldLevel) bool {
			return ValidateSymbol(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("client_id", func(fl validator.FieldLevel) bool {
			return clientIDRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("base64key", func(fl validator.FieldLevel) bool {
			return ValidatePrivateKey(fl.Field().String()) == nil
		})

		validate = v
	})
	return validate
}

func decimalValue(field reflect.Value) interface{} {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		f, _ := v.Decimal.Float64()
		return f
	}
	return nil
}

// ValidateStruct проверяет структуру по тегам и возвращает ValidationErrors
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// ValidateSymbol проверяет формат тикера биржи
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol is required")
	}
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// NormalizeSymbol приводит тикер к верхнему регистру без пробелов
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidatePrivateKey проверяет, что приватный ключ - непустой base64
func ValidatePrivateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("private key is required")
	}
	if _, err := base64.StdEncoding.DecodeString(key); err != nil {
		return fmt.Errorf("private key must be base64: %w", err)
	}
	return nil
}

// MaskSecret маскирует ключ для логов: первые 4 + *** + последние 4
func MaskSecret(s string) string {
	if len(s) < 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
