package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Signal - входящий торговый сигнал (webhook от TradingView и т.п.)
//
// Ключи JSON совпадают с форматом алертов: "maxriskperday%", "stopLoss%".
type Signal struct {
	ClientID      string              `json:"clientId" validate:"required,client_id"`
	Symbol        string              `json:"symbol" validate:"required,exchange_symbol"`
	Strategy      string              `json:"strategy" validate:"required,max=100"`
	MaxRiskPerDay decimal.NullDecimal `json:"maxriskperday%" validate:"omitempty,gte=0,lte=100"`
	Action        string              `json:"action" validate:"required,oneof=BUY SELL CLOSE buy sell close"`
	OrderQty      decimal.Decimal     `json:"orderQty" validate:"gt=0"`
	Inverse       bool                `json:"inverse"`
	Pyramid       bool                `json:"pyramid"`
	StopLoss      decimal.NullDecimal `json:"stopLoss%" validate:"omitempty,gte=0,lte=100"`
}

// Действия сигнала
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionClose = "CLOSE"
)

// Side возвращает сторону ордера: BUY только для действия BUY, иначе SELL
func (s *Signal) Side() string {
	if strings.EqualFold(s.Action, ActionBuy) {
		return SideBuy
	}
	return SideSell
}

// Normalize приводит action и symbol к верхнему регистру
func (s *Signal) Normalize() {
	s.Action = strings.ToUpper(strings.TrimSpace(s.Action))
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.Strategy = strings.TrimSpace(s.Strategy)
}

// SignalResult - итог обработки сигнала
type SignalResult struct {
	Status          string   `json:"status"` // success, failed, rejected
	OrderID         string   `json:"order_id,omitempty"`
	ExchangeOrderID string   `json:"exchange_order_id,omitempty"`
	Message         string   `json:"message,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	ExistingOrders  int      `json:"existing_orders,omitempty"`
	ClosedOrders    []string `json:"closed_orders,omitempty"` // закрытые inverse-логикой
}

// Статусы результата сигнала
const (
	SignalStatusSuccess  = "success"
	SignalStatusFailed   = "failed"
	SignalStatusRejected = "rejected"
)

// Сообщения результата
const (
	MsgOrderPlaced      = "Order placed successfully"
	ReasonPyramidReject = "Pyramid disabled - same side order already exists"
)
