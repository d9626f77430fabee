package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
)

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account

	createErr    error
	getErr       error
	updateErr    error
	baselineErr  error
	tradingCalls []bool
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{accounts: make(map[uuid.UUID]*models.Account)}
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

// add сохраняет аккаунт в моке и возвращает его копию
func (m *MockAccountRepository) add(acc *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	m.accounts[acc.ID] = copyAccount(acc)
	return copyAccount(acc)
}

// get возвращает текущее состояние аккаунта
func (m *MockAccountRepository) get(id uuid.UUID) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.accounts[id])
}

func (m *MockAccountRepository) Create(acc *models.Account) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ClientID == acc.ClientID {
			return repository.ErrAccountExists
		}
	}
	acc.ID = uuid.New()
	acc.CreatedAt = time.Now()
	acc.UpdatedAt = acc.CreatedAt
	m.accounts[acc.ID] = copyAccount(acc)
	return nil
}

func (m *MockAccountRepository) GetByID(id uuid.UUID) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByClientID(clientID string) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ClientID == clientID {
			return copyAccount(a), nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) ExistsByClientID(clientID string) (bool, error) {
	_, err := m.GetByClientID(clientID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *MockAccountRepository) filter(keep func(a *models.Account) bool) ([]*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Account
	for _, a := range m.accounts {
		if keep(a) {
			result = append(result, copyAccount(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

func (m *MockAccountRepository) GetAll() ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return true })
}

func (m *MockAccountRepository) GetActive() ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return a.IsActive })
}

func (m *MockAccountRepository) GetActiveTradingDisabled() ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return a.IsActive && !a.TradingEnabled })
}

func (m *MockAccountRepository) update(id uuid.UUID, fn func(a *models.Account)) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MockAccountRepository) UpdateRiskLimits(id uuid.UUID, absolute, percentage decimal.NullDecimal, isActive bool) error {
	return m.update(id, func(a *models.Account) {
		a.DailyRiskAbsolute = absolute
		a.DailyRiskPercentage = percentage
		a.IsActive = isActive
	})
}

func (m *MockAccountRepository) UpdateTradingEnabled(id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	m.tradingCalls = append(m.tradingCalls, enabled)
	m.mu.Unlock()
	return m.update(id, func(a *models.Account) { a.TradingEnabled = enabled })
}

func (m *MockAccountRepository) UpdateCurrentBalance(id uuid.UUID, balance decimal.Decimal) error {
	return m.update(id, func(a *models.Account) { a.CurrentBalance = decimal.NewNullDecimal(balance) })
}

func (m *MockAccountRepository) InitBaseline(id uuid.UUID, balance decimal.Decimal) (bool, error) {
	if m.baselineErr != nil {
		return false, m.baselineErr
	}
	set := false
	err := m.update(id, func(a *models.Account) {
		if !a.InitialBalance.Valid {
			a.InitialBalance = decimal.NewNullDecimal(balance)
			set = true
		}
	})
	return set, err
}

func (m *MockAccountRepository) ResetBaseline(id uuid.UUID, balance decimal.Decimal) error {
	return m.update(id, func(a *models.Account) { a.InitialBalance = decimal.NewNullDecimal(balance) })
}

func (m *MockAccountRepository) UpdateLastRiskCheck(id uuid.UUID, at time.Time) error {
	return m.update(id, func(a *models.Account) {
		t := at
		a.LastRiskCheck = &t
	})
}

func (m *MockAccountRepository) Delete(id uuid.UUID) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	seq    []uuid.UUID

	createErr error
	getErr    error
	updateErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[uuid.UUID]*models.Order)}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

// add сохраняет ордер в моке
func (m *MockOrderRepository) add(o *models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	m.orders[o.ID] = copyOrder(o)
	m.seq = append(m.seq, o.ID)
	return copyOrder(o)
}

// get возвращает текущее состояние ордера
func (m *MockOrderRepository) get(id uuid.UUID) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyOrder(m.orders[id])
}

// count возвращает число сохраненных ордеров
func (m *MockOrderRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockOrderRepository) Create(order *models.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.add(order)
	return nil
}

func (m *MockOrderRepository) GetByID(id uuid.UUID) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return copyOrder(o), nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderRepository) filter(keep func(o *models.Order) bool) ([]*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Order
	for _, id := range m.seq {
		if o, ok := m.orders[id]; ok && keep(o) {
			result = append(result, copyOrder(o))
		}
	}
	return result, nil
}

func (m *MockOrderRepository) GetByAccount(accountID uuid.UUID) ([]*models.Order, error) {
	return m.filter(func(o *models.Order) bool { return o.AccountID == accountID })
}

func (m *MockOrderRepository) GetOpenByAccount(accountID uuid.UUID) ([]*models.Order, error) {
	return m.filter(func(o *models.Order) bool {
		return o.AccountID == accountID && o.Status == models.OrderStatusOpen
	})
}

func (m *MockOrderRepository) GetByStrategySymbolStatus(accountID uuid.UUID, strategy, symbol, status string) ([]*models.Order, error) {
	return m.filter(func(o *models.Order) bool {
		return o.AccountID == accountID && o.Strategy == strategy && o.Symbol == symbol && o.Status == status
	})
}

func (m *MockOrderRepository) UpdateStatus(order *models.Order, from string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if stored.Status != from {
		return repository.ErrOrderConflict
	}
	order.UpdatedAt = time.Now()
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MockOrderRepository) Stats(accountID uuid.UUID) (*models.OrderStats, error) {
	orders, err := m.GetByAccount(accountID)
	if err != nil {
		return nil, err
	}
	stats := &models.OrderStats{TotalVolume: decimal.Zero, SymbolsTraded: []string{}, StrategiesUsed: []string{}}
	symbols := map[string]bool{}
	strategies := map[string]bool{}
	for _, o := range orders {
		stats.TotalOrders++
		switch o.Status {
		case models.OrderStatusOpen:
			stats.OpenOrders++
		case models.OrderStatusClosed:
			stats.ClosedOrders++
		case models.OrderStatusCancelled:
			stats.CancelledOrders++
		case models.OrderStatusFailed:
			stats.FailedOrders++
		case models.OrderStatusPending:
			stats.PendingOrders++
		}
		stats.TotalVolume = stats.TotalVolume.Add(o.Quantity)
		if !symbols[o.Symbol] {
			symbols[o.Symbol] = true
			stats.SymbolsTraded = append(stats.SymbolsTraded, o.Symbol)
		}
		if !strategies[o.Strategy] {
			strategies[o.Strategy] = true
			stats.StrategiesUsed = append(stats.StrategiesUsed, o.Strategy)
		}
	}
	return stats, nil
}

// ============ Mock RiskEventRepository ============

type MockRiskEventRepository struct {
	mu     sync.Mutex
	events []*models.RiskEvent

	createErr error
	findErr   error
}

func NewMockRiskEventRepository() *MockRiskEventRepository {
	return &MockRiskEventRepository{}
}

func (m *MockRiskEventRepository) Create(ev *models.RiskEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// newestFirst возвращает события в порядке убывания created_at
func (m *MockRiskEventRepository) newestFirst(keep func(ev *models.RiskEvent) bool) []*models.RiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.RiskEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if keep(m.events[i]) {
			result = append(result, m.events[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (m *MockRiskEventRepository) GetAll() ([]*models.RiskEvent, error) {
	return m.newestFirst(func(*models.RiskEvent) bool { return true }), nil
}

func (m *MockRiskEventRepository) GetByAccount(accountID uuid.UUID) ([]*models.RiskEvent, error) {
	return m.newestFirst(func(ev *models.RiskEvent) bool { return ev.AccountID == accountID }), nil
}

func (m *MockRiskEventRepository) FindLatestDisableEvent(accountID uuid.UUID) (*models.RiskEvent, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	events := m.newestFirst(func(ev *models.RiskEvent) bool {
		return ev.AccountID == accountID && ev.TradingDisabledUntil != nil
	})
	if len(events) == 0 {
		return nil, repository.ErrRiskEventNotFound
	}
	return events[0], nil
}

// ============ Mock Exchange ============

type MockExchange struct {
	mu sync.Mutex

	balance     decimal.Decimal
	accountInfo *exchange.AccountInfo
	nextOrderID string

	balanceErr error
	infoErr    error
	placeErr   error
	cancelErr  error

	placed    []exchange.PlaceOrderRequest
	cancelled []string
	balanceN  int

	onBalance func() // вызывается внутри GetBalance
}

func NewMockExchange() *MockExchange {
	return &MockExchange{nextOrderID: "ex-1"}
}

func (m *MockExchange) Name() string { return "mock" }

func (m *MockExchange) GetAccountInfo(ctx context.Context, creds exchange.Credentials) (*exchange.AccountInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.accountInfo, nil
}

func (m *MockExchange) GetBalance(ctx context.Context, creds exchange.Credentials) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceN++
	if m.onBalance != nil {
		m.onBalance()
	}
	if m.balanceErr != nil {
		return decimal.Zero, m.balanceErr
	}
	return m.balance, nil
}

func (m *MockExchange) GetOpenOrders(ctx context.Context, creds exchange.Credentials) ([]exchange.OpenOrder, error) {
	return nil, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, creds exchange.Credentials, req exchange.PlaceOrderRequest) (*exchange.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, req)
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	return &exchange.OrderAck{OrderID: m.nextOrderID, Status: "placed"}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, creds exchange.Credentials, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return m.cancelErr
}

func (m *MockExchange) CancelAllOrders(ctx context.Context, creds exchange.Credentials, symbol string) error {
	return m.cancelErr
}

// calls возвращает число размещенных и отмененных ордеров
func (m *MockExchange) calls() (placed, cancelled int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.placed), len(m.cancelled)
}

// ============ Mock Cipher ============

// mockCipher добавляет префикс вместо шифрования
type mockCipher struct {
	decryptErr error
}

func (c mockCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (c mockCipher) Decrypt(encoded string) (string, error) {
	if c.decryptErr != nil {
		return "", c.decryptErr
	}
	return strings.TrimPrefix(encoded, "enc:"), nil
}

// ============ Recording Publisher ============

type tradingStatusEvent struct {
	clientID string
	enabled  bool
	until    *time.Time
}

type recordingPublisher struct {
	mu           sync.Mutex
	riskEvents   []*models.RiskEvent
	orderUpdates []string
	statuses     []tradingStatusEvent
}

func (p *recordingPublisher) PublishRiskEvent(clientID string, event *models.RiskEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.riskEvents = append(p.riskEvents, event)
}

func (p *recordingPublisher) PublishOrderUpdate(clientID string, order *models.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderUpdates = append(p.orderUpdates, order.Status)
}

func (p *recordingPublisher) PublishTradingStatus(clientID string, enabled bool, until *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, tradingStatusEvent{clientID: clientID, enabled: enabled, until: until})
}

// ============ Helpers ============

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// testAccount - активный аккаунт с включенной торговлей и зашифрованными mockCipher ключами
func testAccount(clientID string) *models.Account {
	return &models.Account{
		ClientID:       clientID,
		APIKey:         "enc:public",
		PrivateKey:     "enc:cHJpdmF0ZQ==",
		TradingEnabled: true,
		IsActive:       true,
	}
}

// testEnv - сервисы поверх общих моков
type testEnv struct {
	accounts  *MockAccountRepository
	orders    *MockOrderRepository
	events    *MockRiskEventRepository
	exch      *MockExchange
	publisher *recordingPublisher
	locks     *AccountLocks

	accountSvc *AccountService
	orderSvc   *OrderService
	riskSvc    *RiskService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		accounts:  NewMockAccountRepository(),
		orders:    NewMockOrderRepository(),
		events:    NewMockRiskEventRepository(),
		exch:      NewMockExchange(),
		publisher: &recordingPublisher{},
		locks:     NewAccountLocks(),
	}

	env.accountSvc = NewAccountService(env.accounts, env.exch, mockCipher{}, env.locks, AccountServiceConfig{ExchangeTimeout: time.Second})
	env.orderSvc = NewOrderService(env.accounts, env.orders, env.exch, mockCipher{}, env.locks, time.Second)
	env.riskSvc = NewRiskService(env.accounts, env.events, env.orderSvc, env.exch, mockCipher{}, env.locks, time.Second)

	env.accountSvc.SetPublisher(env.publisher)
	env.orderSvc.SetPublisher(env.publisher)
	env.riskSvc.SetPublisher(env.publisher)
	return env
}
