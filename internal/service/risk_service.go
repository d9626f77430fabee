package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"riskguard/internal/exchange"
	"riskguard/internal/metrics"
	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/utils"
)

// Типы превышенного порога
const (
	ThresholdAbsolute   = "absolute"
	ThresholdPercentage = "percentage"
)

// Сообщения результата проверки
const (
	msgRiskChecked  = "Risk check completed"
	msgRiskAtLimit  = "Risk check completed - At risk limit"
	msgRiskExceeded = "Risk threshold exceeded - Trading disabled"
	msgRiskHalted   = "Risk threshold exceeded - Trading already disabled"
)

// RiskService - оценка дневной просадки и реакция на превышение лимита
type RiskService struct {
	accounts        AccountRepositoryInterface
	events          RiskEventRepositoryInterface
	orders          *OrderService
	exch            exchange.Client
	cipher          CredentialCipher
	locks           *AccountLocks
	exchangeTimeout time.Duration
	publisher       EventPublisher
	now             func() time.Time
	logger          *utils.Logger
}

// NewRiskService создает новый экземпляр сервиса.
// orders используется для принудительного закрытия под уже захваченным мьютексом.
func NewRiskService(
	accounts AccountRepositoryInterface,
	events RiskEventRepositoryInterface,
	orders *OrderService,
	exch exchange.Client,
	cipher CredentialCipher,
	locks *AccountLocks,
	exchangeTimeout time.Duration,
) *RiskService {
	return &RiskService{
		accounts:        accounts,
		events:          events,
		orders:          orders,
		exch:            exch,
		cipher:          cipher,
		locks:           locks,
		exchangeTimeout: exchangeTimeout,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          utils.L().WithComponent("risk"),
	}
}

// SetPublisher устанавливает получателя событий (WebSocket hub)
func (s *RiskService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// CheckRisk проверяет дневную просадку аккаунта под его мьютексом
func (s *RiskService) CheckRisk(ctx context.Context, clientID string) (*models.RiskSnapshot, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	acc, err = s.accounts.GetByID(acc.ID)
	if err != nil {
		return nil, err
	}

	return s.checkLocked(ctx, acc)
}

func (s *RiskService) checkLocked(ctx context.Context, acc *models.Account) (*models.RiskSnapshot, error) {
	// отмена вызывающего - не сбой биржи, баланс не обнуляется
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("risk check aborted: %w", err)
	}

	now := s.now()
	log := s.logger.WithClientID(acc.ClientID)

	defer func() {
		if err := s.accounts.UpdateLastRiskCheck(acc.ID, now); err != nil {
			log.Warn("failed to update last risk check", utils.Err(err))
		}
	}()

	current, err := s.resolveBalance(ctx, acc, log)
	if err != nil {
		return nil, err
	}

	snap := &models.RiskSnapshot{
		Status:              "success",
		Message:             msgRiskChecked,
		RiskStatus:          models.RiskStatusSafe,
		ClientID:            acc.ClientID,
		AccountID:           acc.ID.String(),
		CurrentBalance:      current,
		RiskPercentageLimit: acc.DailyRiskPercentage,
		RiskAbsoluteLimit:   acc.DailyRiskAbsolute,
		ActionTaken:         models.ActionTakenNone,
		Timestamp:           now,
	}

	// Первое наблюдение: фиксируем точку отсчета просадки
	if !acc.InitialBalance.Valid {
		if _, err := s.accounts.InitBaseline(acc.ID, current); err != nil {
			return nil, fmt.Errorf("init baseline: %w", err)
		}
		snap.InitialBalance = current
		log.Info("initial balance recorded", utils.Balance(current))
		metrics.RecordRiskCheck(snap.RiskStatus)
		return snap, nil
	}

	initial := acc.InitialBalance.Decimal
	loss := utils.LossAmount(initial, current)
	pct := utils.LossPercentage(loss, initial)

	snap.InitialBalance = initial
	snap.DailyLoss = loss
	snap.DailyLossPercentage = pct

	status, thresholdType, threshold := evaluateThreshold(loss, pct, acc.DailyRiskAbsolute, acc.DailyRiskPercentage)
	snap.RiskStatus = status

	switch status {
	case models.RiskStatusExceeded:
		if s.alreadyHalted(acc, now) {
			snap.Message = msgRiskHalted
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("risk check aborted: %w", err)
		}
		closed, err := s.handleBreach(ctx, acc, snap, thresholdType, threshold, now)
		if err != nil {
			return nil, err
		}
		snap.Message = msgRiskExceeded
		snap.ActionTaken = models.ActionTakenTradingStopped
		snap.PositionsClosed = closed
	case models.RiskStatusAtLimit:
		snap.Message = msgRiskAtLimit
		log.Warn("account at risk limit", utils.Loss(loss), utils.String("loss_pct", pct.StringFixed(2)))
	}

	metrics.RecordRiskCheck(status)
	return snap, nil
}

// evaluateThreshold применяет единое правило порогов:
// строгое превышение абсолютного, затем процентного лимита -> EXCEEDED;
// точное равенство любому лимиту -> AT_LIMIT; иначе SAFE.
func evaluateThreshold(loss, pct decimal.Decimal, absolute, percentage decimal.NullDecimal) (string, string, decimal.Decimal) {
	if absolute.Valid && loss.GreaterThan(absolute.Decimal) {
		return models.RiskStatusExceeded, ThresholdAbsolute, absolute.Decimal
	}
	if percentage.Valid && pct.GreaterThan(percentage.Decimal) {
		return models.RiskStatusExceeded, ThresholdPercentage, percentage.Decimal
	}
	if absolute.Valid && loss.Equal(absolute.Decimal) {
		return models.RiskStatusAtLimit, ThresholdAbsolute, absolute.Decimal
	}
	if percentage.Valid && pct.Equal(percentage.Decimal) {
		return models.RiskStatusAtLimit, ThresholdPercentage, percentage.Decimal
	}
	return models.RiskStatusSafe, "", decimal.Zero
}

// resolveBalance возвращает сохраненный баланс или запрашивает его у биржи.
// Недоступная биржа дает нулевой баланс с предупреждением.
// Отмена вызывающего контекста возвращается как ошибка.
func (s *RiskService) resolveBalance(ctx context.Context, acc *models.Account, log *utils.Logger) (decimal.Decimal, error) {
	if acc.CurrentBalance.Valid {
		return acc.CurrentBalance.Decimal, nil
	}

	creds, err := decryptCredentials(s.cipher, acc)
	if err != nil {
		log.Warn("balance unavailable, using zero", utils.Err(err))
		return decimal.Zero, nil
	}

	callCtx, cancel := exchangeContext(ctx, s.exchangeTimeout)
	defer cancel()

	balance, err := s.exch.GetBalance(callCtx, creds)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, fmt.Errorf("risk check aborted: %w", ctxErr)
		}
		log.Warn("balance unavailable, using zero", utils.Err(err))
		return decimal.Zero, nil
	}

	if err := s.accounts.UpdateCurrentBalance(acc.ID, balance); err != nil {
		log.Warn("failed to store balance", utils.Err(err))
	}
	return balance, nil
}

// alreadyHalted - торговля уже выключена последним нарушением, срок которого не истек.
// Повторное нарушение в этом случае не закрывает ордера и не пишет новое событие.
func (s *RiskService) alreadyHalted(acc *models.Account, now time.Time) bool {
	if acc.TradingEnabled {
		return false
	}
	ev, err := s.events.FindLatestDisableEvent(acc.ID)
	if err != nil || ev.TradingDisabledUntil == nil {
		return false
	}
	return ev.TradingDisabledUntil.After(now)
}

// handleBreach закрывает ордера, выключает торговлю до следующего дня и пишет событие
func (s *RiskService) handleBreach(ctx context.Context, acc *models.Account, snap *models.RiskSnapshot, thresholdType string, threshold decimal.Decimal, now time.Time) (int, error) {
	log := s.logger.WithClientID(acc.ClientID)

	closed := []string{}
	result, err := s.orders.closeAllLocked(ctx, acc)
	if err != nil {
		log.Error("force close failed, disabling trading anyway", utils.Err(err))
	} else {
		closed = result.ClosedOrders
	}

	if err := s.accounts.UpdateTradingEnabled(acc.ID, false); err != nil {
		return 0, fmt.Errorf("disable trading: %w", err)
	}

	until := utils.NextTradingResume(now)
	event := &models.RiskEvent{
		AccountID:            acc.ID,
		EventType:            models.RiskEventDailyExceeded,
		Description:          fmt.Sprintf("Daily risk limit exceeded: %s threshold %s", thresholdType, threshold.String()),
		CurrentBalance:       snap.CurrentBalance,
		InitialBalance:       snap.InitialBalance,
		RiskThreshold:        threshold,
		LossAmount:           snap.DailyLoss,
		LossPercentage:       snap.DailyLossPercentage,
		OrdersClosed:         closed,
		TradingDisabledUntil: &until,
		CreatedAt:            now,
	}
	if err := s.events.Create(event); err != nil {
		return 0, fmt.Errorf("record risk event: %w", err)
	}

	metrics.RecordBreach(thresholdType, len(closed))
	log.Warn("daily risk limit exceeded",
		utils.String("threshold_type", thresholdType),
		utils.Loss(snap.DailyLoss),
		utils.String("loss_pct", snap.DailyLossPercentage.StringFixed(2)),
		utils.Int("orders_closed", len(closed)),
		utils.String("disabled_until", until.Format(time.RFC3339)),
	)

	if s.publisher != nil {
		s.publisher.PublishRiskEvent(acc.ClientID, event)
		s.publisher.PublishTradingStatus(acc.ClientID, false, &until)
	}

	return len(closed), nil
}

// CheckAllRisk проверяет все активные аккаунты.
// Ошибка одного аккаунта попадает в результат и не останавливает обход.
func (s *RiskService) CheckAllRisk(ctx context.Context) ([]*models.RiskSnapshot, error) {
	accounts, err := s.accounts.GetActive()
	if err != nil {
		return nil, err
	}

	results := make([]*models.RiskSnapshot, 0, len(accounts))
	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}

		snap, err := s.CheckRisk(ctx, acc.ClientID)
		if err != nil {
			s.logger.Error("risk check failed", utils.ClientID(acc.ClientID), utils.Err(err))
			metrics.RecordRiskCheck(models.RiskStatusError)
			snap = &models.RiskSnapshot{
				Status:     "error",
				Message:    err.Error(),
				RiskStatus: models.RiskStatusError,
				ClientID:   acc.ClientID,
				AccountID:  acc.ID.String(),
				Timestamp:  s.now(),
			}
		}
		results = append(results, snap)
	}

	return results, nil
}

// ResetDailyTrading включает торговлю аккаунтам, у которых истек срок блокировки
// из последнего risk-события. Аккаунты без такого события не трогаются.
func (s *RiskService) ResetDailyTrading(ctx context.Context) (int, error) {
	accounts, err := s.accounts.GetActiveTradingDisabled()
	if err != nil {
		return 0, err
	}

	now := s.now()
	reenabled := 0

	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}

		event, err := s.events.FindLatestDisableEvent(acc.ID)
		if err != nil {
			if !errors.Is(err, repository.ErrRiskEventNotFound) {
				s.logger.Warn("failed to load risk event", utils.ClientID(acc.ClientID), utils.Err(err))
			}
			continue
		}
		if event.TradingDisabledUntil == nil || event.TradingDisabledUntil.After(now) {
			continue
		}

		if err := s.enableTrading(acc); err != nil {
			s.logger.Error("failed to re-enable trading", utils.ClientID(acc.ClientID), utils.Err(err))
			continue
		}
		reenabled++
	}

	if reenabled > 0 {
		s.logger.Info("daily trading reset", utils.Int("reenabled", reenabled))
	}
	return reenabled, nil
}

// ResetTradingStatus включает торговлю аккаунту вручную (администратор)
func (s *RiskService) ResetTradingStatus(ctx context.Context, clientID string) (*models.Account, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	if err := s.enableTrading(acc); err != nil {
		return nil, err
	}
	acc.TradingEnabled = true
	return acc, nil
}

func (s *RiskService) enableTrading(acc *models.Account) error {
	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	if err := s.accounts.UpdateTradingEnabled(acc.ID, true); err != nil {
		return err
	}

	metrics.AccountsReenabled.Inc()
	s.logger.Info("trading re-enabled", utils.ClientID(acc.ClientID))
	if s.publisher != nil {
		s.publisher.PublishTradingStatus(acc.ClientID, true, nil)
	}
	return nil
}

// GetAllRiskEvents возвращает журнал событий, новые первыми
func (s *RiskService) GetAllRiskEvents() ([]*models.RiskEvent, error) {
	return s.events.GetAll()
}

// GetAccountRiskEvents возвращает события аккаунта, новые первыми
func (s *RiskService) GetAccountRiskEvents(clientID string) ([]*models.RiskEvent, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}
	return s.events.GetByAccount(acc.ID)
}
