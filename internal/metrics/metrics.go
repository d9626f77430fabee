package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики риск-движка
// ============================================================
//
// Экспортируются на /metrics (promhttp).
// Лейблы с client_id не используются: число аккаунтов не ограничено.

const namespace = "riskguard"

// ============ Сигналы и ордера ============

// SignalsProcessed - обработанные сигналы по результату
var SignalsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "signals_processed_total",
		Help:      "Total number of processed trading signals",
	},
	[]string{"result"}, // success, failed, rejected, error
)

// OrdersByStatus - ордера, достигшие статуса
var OrdersByStatus = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "status_transitions_total",
		Help:      "Total number of order status transitions by target status",
	},
	[]string{"status"},
)

// ============ Биржа ============

// ExchangeLatency - время запроса к бирже
var ExchangeLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "request_latency_ms",
		Help:      "Exchange request latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 500, 1000, 2500, 5000, 10000},
	},
	[]string{"op"},
)

// ExchangeErrors - ошибки запросов к бирже
var ExchangeErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "errors_total",
		Help:      "Total number of failed exchange requests",
	},
	[]string{"op"},
)

// ============ Риск ============

// RiskChecks - проверки риска по итоговому состоянию
var RiskChecks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "checks_total",
		Help:      "Total number of risk checks by resulting risk status",
	},
	[]string{"risk_status"},
)

// RiskBreaches - нарушения дневного лимита
var RiskBreaches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "breaches_total",
		Help:      "Total number of daily risk limit breaches",
	},
	[]string{"threshold_type"}, // absolute, percentage
)

// ForceClosedOrders - ордера, закрытые принудительно
var ForceClosedOrders = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "force_closed_orders_total",
		Help:      "Total number of orders force-closed by the risk engine",
	},
)

// AccountsReenabled - аккаунты, включённые ежедневным сбросом
var AccountsReenabled = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "accounts_reenabled_total",
		Help:      "Total number of accounts re-enabled by the daily reset",
	},
)

// ============ Монитор ============

// SweepDuration - длительность обхода всех аккаунтов
var SweepDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full risk sweep in seconds",
		Buckets:   prometheus.DefBuckets,
	},
)

// SkippedTicks - тики, пропущенные из-за выполняющегося обхода или выключенного мониторинга
var SkippedTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "skipped_ticks_total",
		Help:      "Total number of monitor ticks skipped",
	},
	[]string{"reason"}, // busy, disabled
)

// MonitoringEnabled - 1 если мониторинг включён
var MonitoringEnabled = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "enabled",
		Help:      "Whether periodic risk monitoring is enabled (1) or not (0)",
	},
)

// ============ HTTP ============

// HTTPRequests - HTTP запросы по маршруту и коду ответа
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route template and status code",
	},
	[]string{"method", "route", "code"},
)

// HTTPDuration - время обработки HTTP запроса
var HTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

// ============ Вспомогательные функции ============

// RecordSignal записывает результат обработки сигнала
func RecordSignal(result string) {
	SignalsProcessed.WithLabelValues(result).Inc()
}

// RecordOrderStatus записывает переход ордера
func RecordOrderStatus(status string) {
	OrdersByStatus.WithLabelValues(status).Inc()
}

// RecordExchangeCall записывает латентность и ошибку запроса к бирже
func RecordExchangeCall(op string, latency time.Duration, err error) {
	ExchangeLatency.WithLabelValues(op).Observe(float64(latency.Microseconds()) / 1000.0)
	if err != nil {
		ExchangeErrors.WithLabelValues(op).Inc()
	}
}

// RecordRiskCheck записывает итог проверки риска
func RecordRiskCheck(riskStatus string) {
	RiskChecks.WithLabelValues(riskStatus).Inc()
}

// RecordBreach записывает нарушение лимита и количество закрытых ордеров
func RecordBreach(thresholdType string, closed int) {
	RiskBreaches.WithLabelValues(thresholdType).Inc()
	ForceClosedOrders.Add(float64(closed))
}

// RecordSkippedTick записывает пропуск тика монитора
func RecordSkippedTick(reason string) {
	SkippedTicks.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest записывает HTTP запрос; route - шаблон маршрута, не путь
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SetMonitoringEnabled обновляет gauge состояния мониторинга
func SetMonitoringEnabled(enabled bool) {
	if enabled {
		MonitoringEnabled.Set(1)
	} else {
		MonitoringEnabled.Set(0)
	}
}
