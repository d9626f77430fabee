package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account представляет клиентский аккаунт с ключами биржи и лимитами риска
type Account struct {
	ID                  uuid.UUID           `json:"id" db:"id"`
	ClientID            string              `json:"client_id" db:"client_id"`            // 10 цифр
	APIKey              string              `json:"-" db:"api_key"`                      // зашифрован
	PrivateKey          string              `json:"-" db:"private_key"`                  // зашифрован
	DailyRiskAbsolute   decimal.NullDecimal `json:"daily_risk_absolute" db:"daily_risk_absolute"`
	DailyRiskPercentage decimal.NullDecimal `json:"daily_risk_percentage" db:"daily_risk_percentage"` // 0-100
	InitialBalance      decimal.NullDecimal `json:"initial_balance" db:"initial_balance"`             // точка отсчёта просадки
	CurrentBalance      decimal.NullDecimal `json:"current_balance" db:"current_balance"`
	TradingEnabled      bool                `json:"trading_enabled" db:"trading_enabled"`
	IsActive            bool                `json:"is_active" db:"is_active"`
	LastRiskCheck       *time.Time          `json:"last_risk_check,omitempty" db:"last_risk_check"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`
}

// HasRiskLimit - задан хотя бы один лимит
func (a *Account) HasRiskLimit() bool {
	return a.DailyRiskAbsolute.Valid || a.DailyRiskPercentage.Valid
}

// RegisterAccountRequest - запрос на регистрацию аккаунта
type RegisterAccountRequest struct {
	APIKey              string              `json:"apiKey" validate:"required"`
	PrivateKey          string              `json:"privateKey" validate:"required,base64key"`
	DailyRiskAbsolute   decimal.NullDecimal `json:"dailyRiskAbsolute" validate:"omitempty,gt=0"`
	DailyRiskPercentage decimal.NullDecimal `json:"dailyRiskPercentage" validate:"omitempty,gt=0,lte=100"`
	InitialBalance      decimal.NullDecimal `json:"initialBalance" validate:"omitempty,gte=0"` // иначе запрашивается у биржи
}

// UpdateAccountRequest - изменение лимитов риска (nil = без изменений)
type UpdateAccountRequest struct {
	DailyRiskAbsolute   decimal.NullDecimal `json:"dailyRiskAbsolute" validate:"omitempty,gt=0"`
	DailyRiskPercentage decimal.NullDecimal `json:"dailyRiskPercentage" validate:"omitempty,gt=0,lte=100"`
	IsActive            *bool               `json:"isActive,omitempty"`
}

// BalanceUpdateRequest - ручная установка текущего баланса
type BalanceUpdateRequest struct {
	Balance decimal.Decimal `json:"balance" validate:"gte=0"`
}

// BalanceInfo - ответ на запрос баланса
type BalanceInfo struct {
	ClientID       string              `json:"client_id"`
	CurrentBalance decimal.Decimal     `json:"current_balance"`
	InitialBalance decimal.NullDecimal `json:"initial_balance"`
	Source         string              `json:"source"` // stored, exchange, demo
	Timestamp      time.Time           `json:"timestamp"`
}

// Источники баланса
const (
	BalanceSourceStored   = "stored"
	BalanceSourceExchange = "exchange"
	BalanceSourceDemo     = "demo"
)
