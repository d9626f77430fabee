package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskguard/internal/models"
	"riskguard/internal/monitor"
	"riskguard/internal/service"
)

// ErrMockDatabase - ошибка хранилища для тестов
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	accounts   map[string]*models.Account
	nextClient int

	registerErr error
	getErr      error
	updateErr   error
	balanceErr  error
	deleteErr   error

	mu sync.RWMutex
}

// NewMockAccountService создает новый мок сервиса аккаунтов
func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		accounts:   make(map[string]*models.Account),
		nextClient: 1000000001,
	}
}

// SetError устанавливает ошибку для операции
func (m *MockAccountService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case "register":
		m.registerErr = err
	case "get":
		m.getErr = err
	case "update":
		m.updateErr = err
	case "balance":
		m.balanceErr = err
	case "delete":
		m.deleteErr = err
	}
}

// AddAccount добавляет аккаунт напрямую
func (m *MockAccountService) AddAccount(clientID string, balance float64) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := &models.Account{
		ID:                uuid.New(),
		ClientID:          clientID,
		DailyRiskAbsolute: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		InitialBalance:    decimal.NewNullDecimal(decimal.NewFromFloat(balance)),
		CurrentBalance:    decimal.NewNullDecimal(decimal.NewFromFloat(balance)),
		TradingEnabled:    true,
		IsActive:          true,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	m.accounts[clientID] = acc
	return acc
}

func (m *MockAccountService) Register(ctx context.Context, req *models.RegisterAccountRequest) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registerErr != nil {
		return nil, m.registerErr
	}
	if req.APIKey == "" {
		return nil, fmt.Errorf("%w: apiKey is required", service.ErrValidation)
	}

	clientID := fmt.Sprintf("%010d", m.nextClient)
	m.nextClient++
	acc := &models.Account{
		ID:                  uuid.New(),
		ClientID:            clientID,
		APIKey:              req.APIKey,
		PrivateKey:          req.PrivateKey,
		DailyRiskAbsolute:   req.DailyRiskAbsolute,
		DailyRiskPercentage: req.DailyRiskPercentage,
		InitialBalance:      req.InitialBalance,
		TradingEnabled:      true,
		IsActive:            true,
	}
	m.accounts[clientID] = acc
	return acc, nil
}

func (m *MockAccountService) GetAccount(clientID string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	return acc, nil
}

func (m *MockAccountService) ListAccounts() ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, a)
	}
	return result, nil
}

func (m *MockAccountService) UpdateAccount(clientID string, req *models.UpdateAccountRequest) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	if req.DailyRiskAbsolute.Valid {
		acc.DailyRiskAbsolute = req.DailyRiskAbsolute
	}
	if req.DailyRiskPercentage.Valid {
		acc.DailyRiskPercentage = req.DailyRiskPercentage
	}
	if req.IsActive != nil {
		acc.IsActive = *req.IsActive
	}
	return acc, nil
}

func (m *MockAccountService) SetTradingEnabled(clientID string, enabled bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	acc.TradingEnabled = enabled
	return acc, nil
}

func (m *MockAccountService) UpdateBalance(clientID string, balance decimal.Decimal) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance must not be negative", service.ErrValidation)
	}
	acc.CurrentBalance = decimal.NewNullDecimal(balance)
	return acc, nil
}

func (m *MockAccountService) GetCurrentBalance(ctx context.Context, clientID string) (*models.BalanceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	return &models.BalanceInfo{
		ClientID:       clientID,
		CurrentBalance: acc.CurrentBalance.Decimal,
		InitialBalance: acc.InitialBalance,
		Source:         models.BalanceSourceStored,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (m *MockAccountService) ResetInitialBalance(clientID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	acc, ok := m.accounts[clientID]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	acc.InitialBalance = acc.CurrentBalance
	return acc, nil
}

func (m *MockAccountService) DeleteAccount(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.accounts[clientID]; !ok {
		return service.ErrAccountNotFound
	}
	delete(m.accounts, clientID)
	return nil
}

// ============ Mock Order Service ============

// MockOrderService мок для OrderServiceInterface
type MockOrderService struct {
	orders      map[string][]*models.Order
	result      *models.SignalResult
	lastSignal  *models.Signal

	signalErr error
	getErr    error
	closeErr  error

	mu sync.RWMutex
}

// NewMockOrderService создает новый мок сервиса ордеров
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		orders: make(map[string][]*models.Order),
		result: &models.SignalResult{Status: models.SignalStatusSuccess, OrderID: uuid.NewString()},
	}
}

// SetError устанавливает ошибку для операции
func (m *MockOrderService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case "signal":
		m.signalErr = err
	case "get":
		m.getErr = err
	case "close":
		m.closeErr = err
	}
}

// SetSignalResult задает ответ ProcessSignal
func (m *MockOrderService) SetSignalResult(r *models.SignalResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// AddOrder добавляет ордер аккаунту
func (m *MockOrderService) AddOrder(clientID, status string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := &models.Order{
		ID:       uuid.New(),
		Symbol:   "PF_XBTUSD",
		Strategy: "breakout",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromFloat(0.01),
		Status:   status,
	}
	m.orders[clientID] = append(m.orders[clientID], o)
	return o
}

// LastSignal возвращает последний принятый сигнал
func (m *MockOrderService) LastSignal() *models.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSignal
}

func (m *MockOrderService) ProcessSignal(ctx context.Context, sig *models.Signal) (*models.SignalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSignal = sig
	if m.signalErr != nil {
		return nil, m.signalErr
	}
	return m.result, nil
}

func (m *MockOrderService) CloseAllOrders(ctx context.Context, clientID string) (*models.CloseAllResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return nil, m.closeErr
	}
	result := &models.CloseAllResult{ClientID: clientID, ClosedOrders: []string{}}
	for _, o := range m.orders[clientID] {
		if o.Status == models.OrderStatusOpen {
			o.Status = models.OrderStatusCancelled
			result.ClosedOrders = append(result.ClosedOrders, o.ID.String())
		}
	}
	result.Count = len(result.ClosedOrders)
	return result, nil
}

func (m *MockOrderService) GetAccountOrders(clientID string) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.orders[clientID], nil
}

func (m *MockOrderService) GetOrder(orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("%w: invalid order id", service.ErrValidation)
	}
	for _, list := range m.orders {
		for _, o := range list {
			if o.ID.String() == orderID {
				return o, nil
			}
		}
	}
	return nil, service.ErrOrderNotFound
}

func (m *MockOrderService) GetOpenOrders(clientID string) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	var open []*models.Order
	for _, o := range m.orders[clientID] {
		if o.Status == models.OrderStatusOpen {
			open = append(open, o)
		}
	}
	return open, nil
}

func (m *MockOrderService) GetOrderStats(clientID string) (*models.OrderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	stats := &models.OrderStats{ClientID: clientID}
	for _, o := range m.orders[clientID] {
		stats.TotalOrders++
		if o.Status == models.OrderStatusOpen {
			stats.OpenOrders++
		}
	}
	return stats, nil
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	snapshots map[string]*models.RiskSnapshot
	events    map[string][]*models.RiskEvent
	accounts  *MockAccountService
	resetN    int

	checkErr error
	resetErr error
	eventErr error

	mu sync.RWMutex
}

// NewMockRiskService создает новый мок риск-движка поверх мока аккаунтов
func NewMockRiskService(accounts *MockAccountService) *MockRiskService {
	return &MockRiskService{
		snapshots: make(map[string]*models.RiskSnapshot),
		events:    make(map[string][]*models.RiskEvent),
		accounts:  accounts,
	}
}

// SetError устанавливает ошибку для операции
func (m *MockRiskService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case "check":
		m.checkErr = err
	case "reset":
		m.resetErr = err
	case "events":
		m.eventErr = err
	}
}

// SetSnapshot задает результат проверки аккаунта
func (m *MockRiskService) SetSnapshot(clientID, riskStatus string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[clientID] = &models.RiskSnapshot{
		Status:     "success",
		RiskStatus: riskStatus,
		ClientID:   clientID,
		Timestamp:  time.Now().UTC(),
	}
}

// AddEvent добавляет событие аккаунту
func (m *MockRiskService) AddEvent(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[clientID] = append(m.events[clientID], &models.RiskEvent{
		ID:        uuid.New(),
		EventType: models.RiskEventDailyExceeded,
		CreatedAt: time.Now().UTC(),
	})
}

func (m *MockRiskService) CheckRisk(ctx context.Context, clientID string) (*models.RiskSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.checkErr != nil {
		return nil, m.checkErr
	}
	if _, err := m.accounts.GetAccount(clientID); err != nil {
		return nil, err
	}
	if snap, ok := m.snapshots[clientID]; ok {
		return snap, nil
	}
	return &models.RiskSnapshot{Status: "success", RiskStatus: models.RiskStatusSafe, ClientID: clientID}, nil
}

func (m *MockRiskService) CheckAllRisk(ctx context.Context) ([]*models.RiskSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.checkErr != nil {
		return nil, m.checkErr
	}
	result := make([]*models.RiskSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		result = append(result, s)
	}
	return result, nil
}

func (m *MockRiskService) ResetDailyTrading(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.resetErr != nil {
		return 0, m.resetErr
	}
	return m.resetN, nil
}

func (m *MockRiskService) ResetTradingStatus(ctx context.Context, clientID string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.resetErr != nil {
		return nil, m.resetErr
	}
	return m.accounts.SetTradingEnabled(clientID, true)
}

func (m *MockRiskService) GetAllRiskEvents() ([]*models.RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.eventErr != nil {
		return nil, m.eventErr
	}
	var all []*models.RiskEvent
	for _, list := range m.events {
		all = append(all, list...)
	}
	return all, nil
}

func (m *MockRiskService) GetAccountRiskEvents(clientID string) ([]*models.RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.eventErr != nil {
		return nil, m.eventErr
	}
	if _, err := m.accounts.GetAccount(clientID); err != nil {
		return nil, err
	}
	return m.events[clientID], nil
}

// ============ Mock Monitor ============

// MockMonitor мок для MonitorController
type MockMonitor struct {
	enabled bool
	mu      sync.Mutex
}

func (m *MockMonitor) Status() monitor.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return monitor.Status{
		MonitoringEnabled: m.enabled,
		CurrentTimeUTC:    time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Uptime:            "1h 0m 0s",
	}
}

func (m *MockMonitor) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *MockMonitor) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *MockMonitor) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Проверяем, что моки реализуют интерфейсы
var _ service.AccountServiceInterface = (*MockAccountService)(nil)
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.RiskServiceInterface = (*MockRiskService)(nil)
var _ MonitorController = (*MockMonitor)(nil)
