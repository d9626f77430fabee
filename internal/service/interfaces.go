package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/crypto"
)

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов
type AccountRepositoryInterface interface {
	Create(acc *models.Account) error
	GetByID(id uuid.UUID) (*models.Account, error)
	GetByClientID(clientID string) (*models.Account, error)
	ExistsByClientID(clientID string) (bool, error)
	GetAll() ([]*models.Account, error)
	GetActive() ([]*models.Account, error)
	GetActiveTradingDisabled() ([]*models.Account, error)
	UpdateRiskLimits(id uuid.UUID, absolute, percentage decimal.NullDecimal, isActive bool) error
	UpdateTradingEnabled(id uuid.UUID, enabled bool) error
	UpdateCurrentBalance(id uuid.UUID, balance decimal.Decimal) error
	InitBaseline(id uuid.UUID, balance decimal.Decimal) (bool, error)
	ResetBaseline(id uuid.UUID, balance decimal.Decimal) error
	UpdateLastRiskCheck(id uuid.UUID, at time.Time) error
	Delete(id uuid.UUID) error
}

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Create(order *models.Order) error
	GetByID(id uuid.UUID) (*models.Order, error)
	GetByAccount(accountID uuid.UUID) ([]*models.Order, error)
	GetOpenByAccount(accountID uuid.UUID) ([]*models.Order, error)
	GetByStrategySymbolStatus(accountID uuid.UUID, strategy, symbol, status string) ([]*models.Order, error)
	UpdateStatus(order *models.Order, from string) error
	Stats(accountID uuid.UUID) (*models.OrderStats, error)
}

// RiskEventRepositoryInterface определяет интерфейс журнала risk-событий
type RiskEventRepositoryInterface interface {
	Create(ev *models.RiskEvent) error
	GetAll() ([]*models.RiskEvent, error)
	GetByAccount(accountID uuid.UUID) ([]*models.RiskEvent, error)
	FindLatestDisableEvent(accountID uuid.UUID) (*models.RiskEvent, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ OrderRepositoryInterface = (*repository.OrderRepository)(nil)
var _ RiskEventRepositoryInterface = (*repository.RiskEventRepository)(nil)

// CredentialCipher шифрует ключи биржи перед записью в БД
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

var _ CredentialCipher = (*crypto.Cipher)(nil)

// EventPublisher - получатель событий для real-time рассылки (WebSocket hub).
//
// Вызывается после сохранения изменений в БД:
//
//	riskService.SetPublisher(wsHub)
type EventPublisher interface {
	PublishRiskEvent(clientID string, event *models.RiskEvent)
	PublishOrderUpdate(clientID string, order *models.Order)
	PublishTradingStatus(clientID string, enabled bool, until *time.Time)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// AccountServiceInterface определяет интерфейс сервиса аккаунтов
type AccountServiceInterface interface {
	Register(ctx context.Context, req *models.RegisterAccountRequest) (*models.Account, error)
	GetAccount(clientID string) (*models.Account, error)
	ListAccounts() ([]*models.Account, error)
	UpdateAccount(clientID string, req *models.UpdateAccountRequest) (*models.Account, error)
	SetTradingEnabled(clientID string, enabled bool) (*models.Account, error)
	UpdateBalance(clientID string, balance decimal.Decimal) (*models.Account, error)
	GetCurrentBalance(ctx context.Context, clientID string) (*models.BalanceInfo, error)
	ResetInitialBalance(clientID string) (*models.Account, error)
	DeleteAccount(clientID string) error
}

// OrderServiceInterface определяет интерфейс сервиса ордеров
type OrderServiceInterface interface {
	ProcessSignal(ctx context.Context, sig *models.Signal) (*models.SignalResult, error)
	CloseAllOrders(ctx context.Context, clientID string) (*models.CloseAllResult, error)
	GetAccountOrders(clientID string) ([]*models.Order, error)
	GetOrder(orderID string) (*models.Order, error)
	GetOpenOrders(clientID string) ([]*models.Order, error)
	GetOrderStats(clientID string) (*models.OrderStats, error)
}

// RiskServiceInterface определяет интерфейс риск-движка
type RiskServiceInterface interface {
	CheckRisk(ctx context.Context, clientID string) (*models.RiskSnapshot, error)
	CheckAllRisk(ctx context.Context) ([]*models.RiskSnapshot, error)
	ResetDailyTrading(ctx context.Context) (int, error)
	ResetTradingStatus(ctx context.Context, clientID string) (*models.Account, error)
	GetAllRiskEvents() ([]*models.RiskEvent, error)
	GetAccountRiskEvents(clientID string) ([]*models.RiskEvent, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ AccountServiceInterface = (*AccountService)(nil)
var _ OrderServiceInterface = (*OrderService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
