package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Состояния риска аккаунта (вычисляются при каждой проверке, не хранятся)
const (
	RiskStatusSafe     = "SAFE"
	RiskStatusAtLimit  = "AT_LIMIT"
	RiskStatusExceeded = "EXCEEDED"
	RiskStatusError    = "ERROR"
)

// Предпринятые действия
const (
	ActionTakenNone           = "none"
	ActionTakenTradingStopped = "trading_disabled_positions_closed"
)

// Типы risk-событий
const (
	RiskEventDailyExceeded = "DAILY_RISK_EXCEEDED"
)

// RiskSnapshot - результат проверки риска одного аккаунта
type RiskSnapshot struct {
	Status              string              `json:"status"` // success, error
	Message             string              `json:"message,omitempty"`
	RiskStatus          string              `json:"risk_status"`
	ClientID            string              `json:"client_id"`
	AccountID           string              `json:"account_id,omitempty"`
	CurrentBalance      decimal.Decimal     `json:"current_balance"`
	InitialBalance      decimal.Decimal     `json:"initial_balance"`
	DailyLoss           decimal.Decimal     `json:"daily_loss"`
	DailyLossPercentage decimal.Decimal     `json:"daily_loss_percentage"`
	RiskPercentageLimit decimal.NullDecimal `json:"risk_percentage_limit"`
	RiskAbsoluteLimit   decimal.NullDecimal `json:"risk_absolute_limit"`
	ActionTaken         string              `json:"action_taken"`
	PositionsClosed     int                 `json:"positions_closed"`
	Timestamp           time.Time           `json:"timestamp"`
}

// RiskEvent - запись аудита о нарушении лимита (только добавление)
type RiskEvent struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	AccountID            uuid.UUID       `json:"account_id" db:"account_id"`
	EventType            string          `json:"event_type" db:"event_type"`
	Description          string          `json:"description" db:"description"`
	CurrentBalance       decimal.Decimal `json:"current_balance" db:"current_balance"`
	InitialBalance       decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	RiskThreshold        decimal.Decimal `json:"risk_threshold" db:"risk_threshold"`
	LossAmount           decimal.Decimal `json:"loss_amount" db:"loss_amount"`
	LossPercentage       decimal.Decimal `json:"loss_percentage" db:"loss_percentage"`
	OrdersClosed         OrderIDList     `json:"orders_closed" db:"orders_closed"`
	TradingDisabledUntil *time.Time      `json:"trading_disabled_until,omitempty" db:"trading_disabled_until"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// OrderIDList хранится в БД как JSON-массив
type OrderIDList []string

// Value реализует driver.Valuer
func (l OrderIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan реализует sql.Scanner
func (l *OrderIDList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = OrderIDList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("orders_closed: unsupported type")
	}

	if len(data) == 0 {
		*l = OrderIDList{}
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}
