package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"riskguard/internal/exchange"
	"riskguard/internal/metrics"
	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// OrderService - жизненный цикл ордеров по входящим сигналам
type OrderService struct {
	accounts        AccountRepositoryInterface
	orders          OrderRepositoryInterface
	exch            exchange.Client
	cipher          CredentialCipher
	locks           *AccountLocks
	exchangeTimeout time.Duration
	publisher       EventPublisher
	logger          *utils.Logger
}

// NewOrderService создает новый экземпляр сервиса
func NewOrderService(
	accounts AccountRepositoryInterface,
	orders OrderRepositoryInterface,
	exch exchange.Client,
	cipher CredentialCipher,
	locks *AccountLocks,
	exchangeTimeout time.Duration,
) *OrderService {
	return &OrderService{
		accounts:        accounts,
		orders:          orders,
		exch:            exch,
		cipher:          cipher,
		locks:           locks,
		exchangeTimeout: exchangeTimeout,
		logger:          utils.L().WithComponent("orders"),
	}
}

// SetPublisher устанавливает получателя событий (WebSocket hub)
func (s *OrderService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// ProcessSignal обрабатывает торговый сигнал под мьютексом аккаунта:
// 1. Аккаунт должен существовать и иметь включенную торговлю
// 2. Pyramid: при pyramid=false и открытом ордере той же стороны сигнал отклоняется
// 3. Inverse: открытые ордера (strategy, symbol) отменяются на бирже и закрываются
// 4. Ордер создается в PENDING, затем по ответу биржи переходит в OPEN или FAILED
func (s *OrderService) ProcessSignal(ctx context.Context, sig *models.Signal) (*models.SignalResult, error) {
	sig.Normalize()
	if err := utils.ValidateStruct(sig); err != nil {
		metrics.RecordSignal("error")
		return nil, err
	}

	acc, unlock, err := s.lockAccount(sig.ClientID)
	if err != nil {
		metrics.RecordSignal("error")
		return nil, err
	}
	defer unlock()

	if !acc.TradingEnabled {
		metrics.RecordSignal("error")
		return nil, ErrTradingDisabled
	}

	log := s.logger.With(utils.ClientID(acc.ClientID), utils.Symbol(sig.Symbol), utils.Strategy(sig.Strategy))
	side := sig.Side()

	existing, err := s.orders.GetByStrategySymbolStatus(acc.ID, sig.Strategy, sig.Symbol, models.OrderStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}

	if !sig.Pyramid {
		sameSide := 0
		for _, o := range existing {
			if o.Side == side {
				sameSide++
			}
		}
		if sameSide > 0 {
			log.Info("signal rejected: pyramid disabled", utils.Side(side), utils.Int("existing_orders", sameSide))
			metrics.RecordSignal(models.SignalStatusRejected)
			return &models.SignalResult{
				Status:         models.SignalStatusRejected,
				Reason:         models.ReasonPyramidReject,
				ExistingOrders: sameSide,
			}, nil
		}
	}

	creds, err := decryptCredentials(s.cipher, acc)
	if err != nil {
		return nil, err
	}

	result := &models.SignalResult{}

	if sig.Inverse && len(existing) > 0 {
		result.ClosedOrders = s.closeInverse(ctx, acc, creds, existing, log)
	}

	order := &models.Order{
		AccountID:               acc.ID,
		Symbol:                  sig.Symbol,
		Strategy:                sig.Strategy,
		Side:                    side,
		Quantity:                sig.OrderQty,
		StopLossPercentage:      sig.StopLoss,
		MaxRiskPerDayPercentage: sig.MaxRiskPerDay,
		Inverse:                 sig.Inverse,
		Pyramid:                 sig.Pyramid,
		Status:                  models.OrderStatusPending,
	}
	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	metrics.RecordOrderStatus(models.OrderStatusPending)

	result.OrderID = order.ID.String()

	// Стоп передается как stopPrice в процентах, без пересчета в цену
	req := exchange.PlaceOrderRequest{
		OrderType: exchange.OrderTypeMarket,
		Symbol:    sig.Symbol,
		Side:      strings.ToLower(side),
		Size:      sig.OrderQty,
		StopPrice: sig.StopLoss,
	}

	callCtx, cancel := exchangeContext(ctx, s.exchangeTimeout)
	ack, placeErr := s.exch.PlaceOrder(callCtx, creds, req)
	cancel()

	if placeErr != nil {
		order.ErrorMessage = placeErr.Error()
		if err := s.transition(acc, order, models.OrderStatusFailed); err != nil {
			return nil, err
		}

		log.Warn("order rejected by exchange", utils.OrderID(result.OrderID), utils.Err(placeErr))
		metrics.RecordSignal(models.SignalStatusFailed)
		result.Status = models.SignalStatusFailed
		result.Message = placeErr.Error()
		return result, nil
	}

	executedAt := time.Now().UTC()
	order.ExchangeOrderID = ack.OrderID
	order.ExecutedAt = &executedAt
	if err := s.transition(acc, order, models.OrderStatusOpen); err != nil {
		return nil, err
	}

	log.Info("order placed",
		utils.OrderID(result.OrderID),
		utils.ExchangeOrderID(ack.OrderID),
		utils.Side(side),
		utils.String("quantity", sig.OrderQty.String()),
	)
	metrics.RecordSignal(models.SignalStatusSuccess)

	result.Status = models.SignalStatusSuccess
	result.ExchangeOrderID = ack.OrderID
	result.Message = models.MsgOrderPlaced
	return result, nil
}

// closeInverse отменяет ордера на бирже и закрывает их локально.
// Ошибка биржи не мешает закрытию: она сохраняется в error_message.
func (s *OrderService) closeInverse(ctx context.Context, acc *models.Account, creds exchange.Credentials, orders []*models.Order, log *utils.Logger) []string {
	closed := make([]string, 0, len(orders))

	for _, o := range orders {
		if o.ExchangeOrderID != "" {
			if err := s.cancelAtExchange(ctx, creds, o.ExchangeOrderID); err != nil {
				log.Warn("inverse cancel failed", utils.OrderID(o.ID.String()), utils.ExchangeOrderID(o.ExchangeOrderID), utils.Err(err))
				o.ErrorMessage = err.Error()
			}
		}

		if err := s.transition(acc, o, models.OrderStatusClosed); err != nil {
			log.Error("failed to close order", utils.OrderID(o.ID.String()), utils.Err(err))
			continue
		}
		closed = append(closed, o.ID.String())
	}

	return closed
}

// CloseAllOrders принудительно закрывает все открытые ордера аккаунта
func (s *OrderService) CloseAllOrders(ctx context.Context, clientID string) (*models.CloseAllResult, error) {
	acc, unlock, err := s.lockAccount(clientID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.closeAllLocked(ctx, acc)
}

// closeAllLocked - CloseAllOrders для вызывающего, который уже держит мьютекс аккаунта.
// Каждый OPEN ордер переходит в CANCELLED, даже если отмена на бирже не удалась.
func (s *OrderService) closeAllLocked(ctx context.Context, acc *models.Account) (*models.CloseAllResult, error) {
	open, err := s.orders.GetOpenByAccount(acc.ID)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}

	result := &models.CloseAllResult{ClientID: acc.ClientID, ClosedOrders: []string{}}
	if len(open) == 0 {
		return result, nil
	}

	log := s.logger.WithClientID(acc.ClientID)

	creds, credsErr := decryptCredentials(s.cipher, acc)
	if credsErr != nil {
		log.Error("cannot cancel at exchange", utils.Err(credsErr))
	}

	for _, o := range open {
		if o.ExchangeOrderID != "" {
			cancelErr := credsErr
			if cancelErr == nil {
				cancelErr = s.cancelAtExchange(ctx, creds, o.ExchangeOrderID)
			}
			if cancelErr != nil {
				result.Failures++
				o.ErrorMessage = cancelErr.Error()
				log.Warn("exchange cancel failed", utils.OrderID(o.ID.String()), utils.ExchangeOrderID(o.ExchangeOrderID), utils.Err(cancelErr))
			}
		}

		if err := s.transition(acc, o, models.OrderStatusCancelled); err != nil {
			log.Error("failed to cancel order", utils.OrderID(o.ID.String()), utils.Err(err))
			continue
		}
		result.ClosedOrders = append(result.ClosedOrders, o.ID.String())
	}

	result.Count = len(result.ClosedOrders)
	log.Info("open orders closed", utils.Int("count", result.Count), utils.Int("exchange_failures", result.Failures))
	return result, nil
}

func (s *OrderService) cancelAtExchange(ctx context.Context, creds exchange.Credentials, exchangeOrderID string) error {
	callCtx, cancel := exchangeContext(ctx, s.exchangeTimeout)
	defer cancel()
	return s.exch.CancelOrder(callCtx, creds, exchangeOrderID)
}

// transition переводит ордер в новый статус через state machine
func (s *OrderService) transition(acc *models.Account, order *models.Order, to string) error {
	from := order.Status
	if !models.CanTransitionOrder(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, from, to)
	}

	order.Status = to
	if err := s.orders.UpdateStatus(order, from); err != nil {
		order.Status = from
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	metrics.RecordOrderStatus(to)
	if s.publisher != nil {
		s.publisher.PublishOrderUpdate(acc.ClientID, order)
	}
	return nil
}

// lockAccount находит аккаунт, захватывает его мьютекс и перечитывает состояние
func (s *OrderService) lockAccount(clientID string) (*models.Account, func(), error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(acc.ID)
	acc, err = s.accounts.GetByID(acc.ID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return acc, unlock, nil
}

// ============ Запросы ============

// GetAccountOrders возвращает ордера аккаунта, новые первыми
func (s *OrderService) GetAccountOrders(clientID string) ([]*models.Order, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}
	return s.orders.GetByAccount(acc.ID)
}

// GetOrder возвращает ордер по ID
func (s *OrderService) GetOrder(orderID string) (*models.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, newValidationError("orderId", "must be a valid UUID")
	}
	return s.orders.GetByID(id)
}

// GetOpenOrders возвращает OPEN ордера аккаунта
func (s *OrderService) GetOpenOrders(clientID string) ([]*models.Order, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}
	return s.orders.GetOpenByAccount(acc.ID)
}

// GetOrderStats возвращает агрегаты по ордерам аккаунта
func (s *OrderService) GetOrderStats(clientID string) (*models.OrderStats, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	stats, err := s.orders.Stats(acc.ID)
	if err != nil {
		return nil, err
	}
	stats.ClientID = acc.ClientID
	return stats, nil
}
