// Package exchange реализует клиент деривативного API Kraken Futures.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Client определяет операции с биржей, нужные движку риска.
// Клиент ничего не знает об аккаунтах и лимитах: ключи передаются в каждый вызов.
type Client interface {
	// GetAccountInfo возвращает все субаккаунты с балансами
	GetAccountInfo(ctx context.Context, creds Credentials) (*AccountInfo, error)

	// GetBalance возвращает сумму балансов всех субаккаунтов
	GetBalance(ctx context.Context, creds Credentials) (decimal.Decimal, error)

	// GetOpenOrders возвращает открытые ордера на бирже (только для наблюдения)
	GetOpenOrders(ctx context.Context, creds Credentials) ([]OpenOrder, error)

	// PlaceOrder размещает ордер
	PlaceOrder(ctx context.Context, creds Credentials, req PlaceOrderRequest) (*OrderAck, error)

	// CancelOrder отменяет ордер по id биржи
	CancelOrder(ctx context.Context, creds Credentials, orderID string) error

	// CancelAllOrders отменяет все ордера (по символу, если он задан)
	CancelAllOrders(ctx context.Context, creds Credentials, symbol string) error

	// Name возвращает имя реализации (kraken, demo)
	Name() string
}

// Credentials - пара ключей аккаунта в открытом виде
type Credentials struct {
	APIKey     string
	PrivateKey string // base64
}

// AccountInfo - ответ accounts
type AccountInfo struct {
	Accounts   []SubAccount `json:"accounts"`
	ServerTime string       `json:"server_time,omitempty"`
}

// Total суммирует балансы субаккаунтов; отсутствующий баланс считается нулём
func (ai *AccountInfo) Total() decimal.Decimal {
	total := decimal.Zero
	if ai == nil {
		return total
	}
	for _, acc := range ai.Accounts {
		if acc.Balance.Valid {
			total = total.Add(acc.Balance.Decimal)
		}
	}
	return total
}

// FirstBalance - баланс первого субаккаунта (используется при регистрации)
func (ai *AccountInfo) FirstBalance() (decimal.Decimal, bool) {
	if ai == nil || len(ai.Accounts) == 0 || !ai.Accounts[0].Balance.Valid {
		return decimal.Zero, false
	}
	return ai.Accounts[0].Balance.Decimal, true
}

// SubAccount - субаккаунт биржи
type SubAccount struct {
	Name     string              `json:"name"`
	Balance  decimal.NullDecimal `json:"balance"`
	Currency string              `json:"currency"`
}

// OpenOrder - открытый ордер на бирже
type OpenOrder struct {
	OrderID   string          `json:"orderId"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Size      decimal.Decimal `json:"size"`
	OrderType string          `json:"orderType"`
	Status    string          `json:"status"`
}

// PlaceOrderRequest - параметры sendorder
type PlaceOrderRequest struct {
	OrderType string // mkt по умолчанию
	Symbol    string
	Side      string // buy, sell
	Size      decimal.Decimal
	StopPrice decimal.NullDecimal
}

// OrderAck - подтверждение размещения
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Типы и стороны ордеров биржи
const (
	OrderTypeMarket = "mkt"
	OrderTypeLimit  = "lmt"
	OrderTypeStop   = "stp"

	SideBuy  = "buy"
	SideSell = "sell"
)

// Операции (endpoint'ы) API
const (
	OpAccounts        = "accounts"
	OpOpenOrders      = "openorders"
	OpSendOrder       = "sendorder"
	OpCancelOrder     = "cancelorder"
	OpCancelAllOrders = "cancelallorders"
)

// ============ Ошибки ============

// ErrOperationFailed - базовая ошибка для errors.Is
var ErrOperationFailed = errors.New("exchange operation failed")

// ErrInvalidCredentials - ключи пусты или приватный ключ не base64
var ErrInvalidCredentials = errors.New("invalid exchange credentials")

// OperationError - единая ошибка операции биржи.
// Сохраняет текст ошибки биржи и исходную транспортную ошибку.
type OperationError struct {
	Op      string // endpoint
	Status  int    // HTTP статус, 0 если ответа не было
	Message string // текст ошибки биржи
	Err     error  // исходная ошибка
}

func (e *OperationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("exchange %s failed (http %d): %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("exchange %s failed: %s", e.Op, msg)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrOperationFailed)
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}
