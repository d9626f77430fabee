package exchange

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"riskguard/pkg/utils"
)

// DefaultDemoBalance - баланс демо-аккаунта
var DefaultDemoBalance = decimal.RequireFromString("10000.00")

// Demo - имитация биржи для DEMO_MODE.
// Принимает любой ордер, баланс фиксирован, открытых ордеров на бирже нет.
type Demo struct {
	balance decimal.Decimal
	lastID  atomic.Int64
	log     *utils.Logger
}

var _ Client = (*Demo)(nil)

// NewDemo создаёт демо-клиент с заданным балансом
func NewDemo(balance decimal.Decimal, logger *utils.Logger) *Demo {
	if balance.IsZero() {
		balance = DefaultDemoBalance
	}
	if logger == nil {
		logger = utils.L()
	}
	return &Demo{
		balance: balance,
		log:     logger.WithComponent("demo_exchange"),
	}
}

// Name возвращает имя реализации
func (d *Demo) Name() string {
	return "demo"
}

// Balance - фиксированный баланс демо-режима
func (d *Demo) Balance() decimal.Decimal {
	return d.balance
}

func (d *Demo) GetAccountInfo(ctx context.Context, creds Credentials) (*AccountInfo, error) {
	return &AccountInfo{
		Accounts: []SubAccount{{
			Name:     "flex",
			Balance:  decimal.NewNullDecimal(d.balance),
			Currency: "usd",
		}},
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (d *Demo) GetBalance(ctx context.Context, creds Credentials) (decimal.Decimal, error) {
	return d.balance, nil
}

func (d *Demo) GetOpenOrders(ctx context.Context, creds Credentials) ([]OpenOrder, error) {
	return []OpenOrder{}, nil
}

// PlaceOrder возвращает id вида DEMO_ORDER_<millis>
func (d *Demo) PlaceOrder(ctx context.Context, creds Credentials, req PlaceOrderRequest) (*OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, &OperationError{Op: OpSendOrder, Message: "demo mode error: " + err.Error(), Err: err}
	}

	ack := &OrderAck{
		OrderID: fmt.Sprintf("DEMO_ORDER_%d", d.nextMillis()),
		Status:  "placed",
	}

	d.log.Info("demo order simulated",
		utils.Symbol(req.Symbol),
		utils.Side(req.Side),
		utils.ExchangeOrderID(ack.OrderID))

	return ack, nil
}

func (d *Demo) CancelOrder(ctx context.Context, creds Credentials, orderID string) error {
	d.log.Debug("demo order cancelled", utils.ExchangeOrderID(orderID))
	return nil
}

func (d *Demo) CancelAllOrders(ctx context.Context, creds Credentials, symbol string) error {
	return nil
}

// nextMillis - время в миллисекундах, строго возрастающее между вызовами
func (d *Demo) nextMillis() int64 {
	for {
		now := time.Now().UnixMilli()
		last := d.lastID.Load()
		if now <= last {
			now = last + 1
		}
		if d.lastID.CompareAndSwap(last, now) {
			return now
		}
	}
}
