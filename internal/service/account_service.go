package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// maxClientIDAttempts - число попыток сгенерировать свободный client_id
const maxClientIDAttempts = 10

var clientIDSpace = big.NewInt(10_000_000_000)

// AccountServiceConfig - параметры регистрации и запросов баланса
type AccountServiceConfig struct {
	DemoMode        bool
	DemoBalance     decimal.Decimal
	ExchangeTimeout time.Duration
}

// AccountService - регистрация аккаунтов, лимиты риска и баланс
type AccountService struct {
	accounts  AccountRepositoryInterface
	exch      exchange.Client
	cipher    CredentialCipher
	locks     *AccountLocks
	cfg       AccountServiceConfig
	publisher EventPublisher
	logger    *utils.Logger
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(
	accounts AccountRepositoryInterface,
	exch exchange.Client,
	cipher CredentialCipher,
	locks *AccountLocks,
	cfg AccountServiceConfig,
) *AccountService {
	if cfg.DemoMode && !cfg.DemoBalance.IsPositive() {
		cfg.DemoBalance = exchange.DefaultDemoBalance
	}
	return &AccountService{
		accounts: accounts,
		exch:     exch,
		cipher:   cipher,
		locks:    locks,
		cfg:      cfg,
		logger:   utils.L().WithComponent("accounts"),
	}
}

// SetPublisher устанавливает получателя событий (WebSocket hub)
func (s *AccountService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// Register регистрирует аккаунт:
// 1. Проверяет ключи и лимиты (хотя бы один лимит обязателен)
// 2. Определяет начальный баланс (демо, явно заданный или первый субаккаунт биржи)
// 3. Генерирует уникальный 10-значный client_id
// 4. Шифрует ключи и сохраняет аккаунт
func (s *AccountService) Register(ctx context.Context, req *models.RegisterAccountRequest) (*models.Account, error) {
	req.APIKey = strings.TrimSpace(req.APIKey)
	req.PrivateKey = strings.TrimSpace(req.PrivateKey)

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.DailyRiskAbsolute.Valid && !req.DailyRiskPercentage.Valid {
		return nil, newValidationError("dailyRiskAbsolute", "at least one daily risk limit is required")
	}

	initial, err := s.resolveInitialBalance(ctx, req)
	if err != nil {
		return nil, err
	}

	clientID, err := s.generateClientID()
	if err != nil {
		return nil, err
	}

	encAPIKey, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}
	encPrivateKey, err := s.cipher.Encrypt(req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt private key: %w", err)
	}

	acc := &models.Account{
		ClientID:            clientID,
		APIKey:              encAPIKey,
		PrivateKey:          encPrivateKey,
		DailyRiskAbsolute:   req.DailyRiskAbsolute,
		DailyRiskPercentage: req.DailyRiskPercentage,
		InitialBalance:      initial,
		TradingEnabled:      true,
		IsActive:            true,
	}

	if err := s.accounts.Create(acc); err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		utils.ClientID(acc.ClientID),
		utils.String("api_key", utils.MaskSecret(req.APIKey)),
		utils.Bool("baseline_set", initial.Valid),
		utils.Balance(initial.Decimal),
	)

	return acc, nil
}

// resolveInitialBalance определяет точку отсчета просадки.
// Если биржа не вернула баланс субаккаунта, значение не задается:
// его зафиксирует первая проверка риска.
func (s *AccountService) resolveInitialBalance(ctx context.Context, req *models.RegisterAccountRequest) (decimal.NullDecimal, error) {
	if s.cfg.DemoMode {
		return decimal.NewNullDecimal(s.cfg.DemoBalance), nil
	}
	if req.InitialBalance.Valid {
		return req.InitialBalance, nil
	}

	callCtx, cancel := exchangeContext(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	info, err := s.exch.GetAccountInfo(callCtx, exchange.Credentials{APIKey: req.APIKey, PrivateKey: req.PrivateKey})
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	}

	balance, ok := info.FirstBalance()
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(balance), nil
}

// generateClientID подбирает случайный свободный 10-значный идентификатор
func (s *AccountService) generateClientID() (string, error) {
	for i := 0; i < maxClientIDAttempts; i++ {
		n, err := rand.Int(rand.Reader, clientIDSpace)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%010d", n.Int64())

		exists, err := s.accounts.ExistsByClientID(id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrClientIDExhausted
}

// GetAccount возвращает аккаунт по client_id
func (s *AccountService) GetAccount(clientID string) (*models.Account, error) {
	return s.accounts.GetByClientID(clientID)
}

// ListAccounts возвращает все аккаунты
func (s *AccountService) ListAccounts() ([]*models.Account, error) {
	return s.accounts.GetAll()
}

// UpdateAccount изменяет лимиты риска и активность.
// Незаданные поля запроса сохраняют текущие значения.
func (s *AccountService) UpdateAccount(clientID string, req *models.UpdateAccountRequest) (*models.Account, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	absolute := acc.DailyRiskAbsolute
	if req.DailyRiskAbsolute.Valid {
		absolute = req.DailyRiskAbsolute
	}
	percentage := acc.DailyRiskPercentage
	if req.DailyRiskPercentage.Valid {
		percentage = req.DailyRiskPercentage
	}
	isActive := acc.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	if !absolute.Valid && !percentage.Valid {
		return nil, newValidationError("dailyRiskAbsolute", "at least one daily risk limit is required")
	}

	if err := s.accounts.UpdateRiskLimits(acc.ID, absolute, percentage, isActive); err != nil {
		return nil, err
	}

	return s.accounts.GetByID(acc.ID)
}

// SetTradingEnabled включает или выключает торговлю вручную
func (s *AccountService) SetTradingEnabled(clientID string, enabled bool) (*models.Account, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	if err := s.accounts.UpdateTradingEnabled(acc.ID, enabled); err != nil {
		return nil, err
	}
	acc.TradingEnabled = enabled

	s.logger.Info("trading status changed", utils.ClientID(clientID), utils.Bool("enabled", enabled))
	if s.publisher != nil {
		s.publisher.PublishTradingStatus(clientID, enabled, nil)
	}

	return acc, nil
}

// UpdateBalance устанавливает текущий баланс вручную (под мьютексом аккаунта).
// Начальный баланс не меняется.
func (s *AccountService) UpdateBalance(clientID string, balance decimal.Decimal) (*models.Account, error) {
	if balance.IsNegative() {
		return nil, newValidationError("balance", "must not be negative")
	}

	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	if err := s.accounts.UpdateCurrentBalance(acc.ID, balance); err != nil {
		return nil, err
	}
	acc.CurrentBalance = decimal.NewNullDecimal(balance)

	s.logger.Info("balance overridden", utils.ClientID(clientID), utils.Balance(balance))
	return acc, nil
}

// GetCurrentBalance возвращает сохраненный баланс, а если его нет - баланс биржи
func (s *AccountService) GetCurrentBalance(ctx context.Context, clientID string) (*models.BalanceInfo, error) {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return nil, err
	}

	info := &models.BalanceInfo{
		ClientID:       acc.ClientID,
		InitialBalance: acc.InitialBalance,
		Timestamp:      time.Now().UTC(),
	}

	if acc.CurrentBalance.Valid {
		info.CurrentBalance = acc.CurrentBalance.Decimal
		info.Source = models.BalanceSourceStored
		return info, nil
	}

	creds, err := decryptCredentials(s.cipher, acc)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := exchangeContext(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	balance, err := s.exch.GetBalance(callCtx, creds)
	if err != nil {
		return nil, err
	}

	info.CurrentBalance = balance
	info.Source = models.BalanceSourceExchange
	if s.cfg.DemoMode {
		info.Source = models.BalanceSourceDemo
	}
	return info, nil
}

// ResetInitialBalance переносит точку отсчета просадки на текущий баланс
func (s *AccountService) ResetInitialBalance(clientID string) (*models.Account, error) {
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
	if !acc.CurrentBalance.Valid {
		return nil, newValidationError("current_balance", "no balance observed yet")
	}

	if err := s.accounts.ResetBaseline(acc.ID, acc.CurrentBalance.Decimal); err != nil {
		return nil, err
	}
	acc.InitialBalance = acc.CurrentBalance

	s.logger.Info("initial balance reset", utils.ClientID(clientID), utils.Balance(acc.CurrentBalance.Decimal))
	return acc, nil
}

// DeleteAccount удаляет аккаунт вместе с ордерами и событиями
func (s *AccountService) DeleteAccount(clientID string) error {
	acc, err := s.accounts.GetByClientID(clientID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	if err := s.accounts.Delete(acc.ID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("delete account: %w", err)
	}
	s.locks.Forget(acc.ID)

	s.logger.Info("account deleted", utils.ClientID(clientID))
	return nil
}
