package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order представляет ордер аккаунта, созданный по сигналу
type Order struct {
	ID                      uuid.UUID           `json:"id" db:"id"`
	AccountID               uuid.UUID           `json:"account_id" db:"account_id"`
	Symbol                  string              `json:"symbol" db:"symbol"`
	Strategy                string              `json:"strategy" db:"strategy"`
	Side                    string              `json:"side" db:"side"` // BUY, SELL
	Quantity                decimal.Decimal     `json:"quantity" db:"quantity"`
	StopLossPercentage      decimal.NullDecimal `json:"stop_loss_percentage" db:"stop_loss_percentage"`
	MaxRiskPerDayPercentage decimal.NullDecimal `json:"max_risk_per_day_percentage" db:"max_risk_per_day_percentage"` // не используется движком
	Inverse                 bool                `json:"inverse" db:"inverse"`
	Pyramid                 bool                `json:"pyramid" db:"pyramid"`
	ExchangeOrderID         string              `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	Status                  string              `json:"status" db:"status"`
	ErrorMessage            string              `json:"error_message,omitempty" db:"error_message"`
	CreatedAt               time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at" db:"updated_at"`
	ExecutedAt              *time.Time          `json:"executed_at,omitempty" db:"executed_at"`
}

// Стороны ордера
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Статусы ордера (state machine)
const (
	OrderStatusPending   = "PENDING"   // создан локально, ждёт ответа биржи
	OrderStatusOpen      = "OPEN"      // принят биржей
	OrderStatusClosed    = "CLOSED"    // закрыт inverse-логикой
	OrderStatusCancelled = "CANCELLED" // закрыт принудительно
	OrderStatusFailed    = "FAILED"    // биржа отклонила или недоступна
)

// ValidOrderTransitions определяет допустимые переходы статусов ордера.
// Терминальные статусы переходов не имеют.
var ValidOrderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusOpen, OrderStatusFailed},
	OrderStatusOpen:      {OrderStatusClosed, OrderStatusCancelled},
	OrderStatusClosed:    {},
	OrderStatusCancelled: {},
	OrderStatusFailed:    {},
}

// CanTransitionOrder проверяет допустимость перехода
func CanTransitionOrder(from, to string) bool {
	allowed, ok := ValidOrderTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus - CLOSED, CANCELLED, FAILED
func IsTerminalOrderStatus(status string) bool {
	allowed, ok := ValidOrderTransitions[status]
	return ok && len(allowed) == 0
}

// OrderStats - агрегаты по ордерам аккаунта
type OrderStats struct {
	ClientID        string          `json:"client_id"`
	TotalOrders     int             `json:"total_orders"`
	OpenOrders      int             `json:"open_orders"`
	ClosedOrders    int             `json:"closed_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	FailedOrders    int             `json:"failed_orders"`
	PendingOrders   int             `json:"pending_orders"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	SymbolsTraded   []string        `json:"symbols_traded"`
	StrategiesUsed  []string        `json:"strategies_used"`
}

// CloseAllResult - результат принудительного закрытия ордеров
type CloseAllResult struct {
	ClientID     string   `json:"client_id"`
	ClosedOrders []string `json:"closed_orders"`
	Count        int      `json:"count"`
	Failures     int      `json:"exchange_failures"`
}
