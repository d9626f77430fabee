package websocket

import (
	"time"

	"riskguard/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeRiskEvent - нарушение дневного лимита, торговля остановлена
	MessageTypeRiskEvent MessageType = "riskEvent"

	// MessageTypeOrderUpdate - ордер перешел в новый статус
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeTradingStatus - торговля по аккаунту включена или выключена
	MessageTypeTradingStatus MessageType = "tradingStatus"
)

// BaseMessage - общие поля всех сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	ClientID  string      `json:"client_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// RiskEventMessage - сообщение о risk-событии
type RiskEventMessage struct {
	BaseMessage
	Data *models.RiskEvent `json:"data"`
}

// OrderUpdateMessage - сообщение об изменении ордера
type OrderUpdateMessage struct {
	BaseMessage
	Data *OrderUpdateData `json:"data"`
}

// OrderUpdateData - сокращенное представление ордера
type OrderUpdateData struct {
	OrderID         string `json:"order_id"`
	Symbol          string `json:"symbol"`
	Strategy        string `json:"strategy"`
	Side            string `json:"side"`
	Quantity        string `json:"quantity"`
	Status          string `json:"status"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// TradingStatusMessage - сообщение о смене флага торговли
type TradingStatusMessage struct {
	BaseMessage
	TradingEnabled bool       `json:"trading_enabled"`
	DisabledUntil  *time.Time `json:"disabled_until,omitempty"`
}

// ============ Фабричные функции ============

func newBase(t MessageType, clientID string) BaseMessage {
	return BaseMessage{Type: t, ClientID: clientID, Timestamp: time.Now().UTC()}
}

// NewRiskEventMessage создает сообщение risk-события
func NewRiskEventMessage(clientID string, ev *models.RiskEvent) *RiskEventMessage {
	return &RiskEventMessage{
		BaseMessage: newBase(MessageTypeRiskEvent, clientID),
		Data:        ev,
	}
}

// NewOrderUpdateMessage создает сообщение обновления ордера
func NewOrderUpdateMessage(clientID string, order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: newBase(MessageTypeOrderUpdate, clientID),
		Data: &OrderUpdateData{
			OrderID:         order.ID.String(),
			Symbol:          order.Symbol,
			Strategy:        order.Strategy,
			Side:            order.Side,
			Quantity:        order.Quantity.String(),
			Status:          order.Status,
			ExchangeOrderID: order.ExchangeOrderID,
			ErrorMessage:    order.ErrorMessage,
		},
	}
}

// NewTradingStatusMessage создает сообщение смены статуса торговли
func NewTradingStatusMessage(clientID string, enabled bool, until *time.Time) *TradingStatusMessage {
	return &TradingStatusMessage{
		BaseMessage:    newBase(MessageTypeTradingStatus, clientID),
		TradingEnabled: enabled,
		DisabledUntil:  until,
	}
}
