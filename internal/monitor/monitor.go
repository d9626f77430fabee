// Package monitor - периодическая проверка риска всех аккаунтов и ежедневный сброс блокировок.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"riskguard/internal/metrics"
	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// RiskChecker - операции риск-движка, которые вызывает монитор
type RiskChecker interface {
	CheckAllRisk(ctx context.Context) ([]*models.RiskSnapshot, error)
	ResetDailyTrading(ctx context.Context) (int, error)
}

// Config - параметры монитора
type Config struct {
	Interval     time.Duration   // период обхода аккаунтов
	DailyResetAt utils.ClockTime // время суток UTC для ResetDailyTrading
	Enabled      bool            // начальное состояние
}

// DefaultConfig возвращает конфигурацию по умолчанию: 30s, 00:01 UTC, включен
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		DailyResetAt: utils.TradingResumeClock,
		Enabled:      true,
	}
}

// Status - состояние монитора для API
type Status struct {
	MonitoringEnabled        bool       `json:"monitoring_enabled"`
	SweepInProgress          bool       `json:"sweep_in_progress"`
	LastMonitoringRun        *time.Time `json:"last_monitoring_run"`
	TotalAccountsChecked     int64      `json:"total_accounts_checked"`
	TotalRiskEventsTriggered int64      `json:"total_risk_events_triggered"`
	CheckIntervalSeconds     int        `json:"check_interval_seconds"`
	NextDailyReset           time.Time  `json:"next_daily_reset"`
	CurrentTimeUTC           time.Time  `json:"current_time_utc"`
	Uptime                   string     `json:"uptime"`
}

// Monitor - воркер периодической проверки риска.
//
// Не более одного обхода одновременно: тик, пришедший во время обхода,
// пропускается (не ставится в очередь). В выключенном состоянии тики тоже
// пропускаются, ежедневный сброс выполняется всегда.
type Monitor struct {
	risk RiskChecker
	cfg  Config

	enabled  atomic.Bool
	sweeping atomic.Bool

	mu           sync.RWMutex
	lastRun      *time.Time
	totalChecked int64
	totalEvents  int64

	startedAt time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	now    func() time.Time
	logger *utils.Logger
}

// New создает монитор
func New(risk RiskChecker, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	m := &Monitor{
		risk:   risk,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		now:    func() time.Time { return time.Now().UTC() },
		logger: utils.L().WithComponent("monitor"),
	}
	m.startedAt = m.now()
	m.enabled.Store(cfg.Enabled)
	metrics.SetMonitoringEnabled(cfg.Enabled)
	return m
}

// Start запускает цикл монитора и блокируется до отмены ctx или Stop.
// Перед возвратом дожидается завершения текущего обхода.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	daily := time.NewTimer(m.untilDailyReset())
	defer daily.Stop()

	m.logger.Info("risk monitor started",
		utils.Int("interval_seconds", int(m.cfg.Interval/time.Second)),
		utils.String("daily_reset_at", m.cfg.DailyResetAt.String()),
		utils.Bool("enabled", m.enabled.Load()),
	)

	defer m.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("risk monitor stopped", utils.String("reason", "context"))
			return
		case <-m.stopCh:
			m.logger.Info("risk monitor stopped", utils.String("reason", "stop"))
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-daily.C:
			m.ResetDaily(ctx)
			daily.Reset(m.untilDailyReset())
		}
	}
}

// Stop останавливает цикл монитора
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Enable включает периодические обходы
func (m *Monitor) Enable() {
	m.enabled.Store(true)
	metrics.SetMonitoringEnabled(true)
	m.logger.Info("risk monitoring enabled")
}

// Disable выключает периодические обходы
func (m *Monitor) Disable() {
	m.enabled.Store(false)
	metrics.SetMonitoringEnabled(false)
	m.logger.Info("risk monitoring disabled")
}

// IsEnabled возвращает текущее состояние
func (m *Monitor) IsEnabled() bool {
	return m.enabled.Load()
}

// tick запускает обход в отдельной горутине, если он разрешен и не выполняется
func (m *Monitor) tick(ctx context.Context) bool {
	if !m.enabled.Load() {
		metrics.RecordSkippedTick("disabled")
		return false
	}
	if !m.sweeping.CompareAndSwap(false, true) {
		metrics.RecordSkippedTick("busy")
		m.logger.Debug("previous sweep still running, tick skipped")
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sweeping.Store(false)
		m.Sweep(ctx)
	}()
	return true
}

// Sweep выполняет один обход всех активных аккаунтов
func (m *Monitor) Sweep(ctx context.Context) {
	started := time.Now()

	results, err := m.risk.CheckAllRisk(ctx)
	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.logger.Error("risk sweep failed", utils.Err(err))
		return
	}

	exceeded := 0
	failed := 0
	for _, r := range results {
		switch r.RiskStatus {
		case models.RiskStatusExceeded:
			exceeded++
		case models.RiskStatusError:
			failed++
		}
	}

	finished := m.now()
	m.mu.Lock()
	m.lastRun = &finished
	m.totalChecked += int64(len(results))
	m.totalEvents += int64(exceeded)
	m.mu.Unlock()

	if exceeded > 0 || failed > 0 {
		m.logger.Warn("risk sweep completed",
			utils.Int("accounts", len(results)),
			utils.Int("exceeded", exceeded),
			utils.Int("errors", failed),
			utils.Latency(time.Since(started)),
		)
		return
	}
	m.logger.Debug("risk sweep completed", utils.Int("accounts", len(results)), utils.Latency(time.Since(started)))
}

// ResetDaily включает торговлю аккаунтам с истекшей блокировкой
func (m *Monitor) ResetDaily(ctx context.Context) {
	n, err := m.risk.ResetDailyTrading(ctx)
	if err != nil {
		m.logger.Error("daily trading reset failed", utils.Err(err))
		return
	}
	m.logger.Info("daily trading reset completed", utils.Int("reenabled", n))
}

func (m *Monitor) untilDailyReset() time.Duration {
	now := m.now()
	return m.cfg.DailyResetAt.NextOccurrence(now).Sub(now)
}

// Status возвращает снимок состояния монитора
func (m *Monitor) Status() Status {
	now := m.now()

	m.mu.RLock()
	var lastRun *time.Time
	if m.lastRun != nil {
		t := *m.lastRun
		lastRun = &t
	}
	checked := m.totalChecked
	events := m.totalEvents
	m.mu.RUnlock()

	return Status{
		MonitoringEnabled:        m.enabled.Load(),
		SweepInProgress:          m.sweeping.Load(),
		LastMonitoringRun:        lastRun,
		TotalAccountsChecked:     checked,
		TotalRiskEventsTriggered: events,
		CheckIntervalSeconds:     int(m.cfg.Interval / time.Second),
		NextDailyReset:           m.cfg.DailyResetAt.NextOccurrence(now),
		CurrentTimeUTC:           now,
		Uptime:                   utils.FormatUptime(now.Sub(m.startedAt)),
	}
}
