package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - настройки логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу, пусто = stderr
	Development bool   // stacktrace на warn, caller, человекочитаемое время
}

// Logger - обёртка над zap.Logger с доменными хелперами
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер по конфигурации.
// При невозможности открыть файл вывода пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Development {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl}
}

// NewNopLogger - логгер без вывода (тесты)
func NewNopLogger() *Logger {
	zl := zap.NewNop()
	return &Logger{Logger: zl}
}

// parseLevel переводит строковый уровень в zapcore.Level (по умолчанию info)
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitGlobalLogger создаёт логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child}
}

// WithComponent - логгер компонента (service, monitor, exchange...)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithClientID - логгер, привязанный к аккаунту
func (l *Logger) WithClientID(clientID string) *Logger {
	return l.With(ClientID(clientID))
}

// ============ Доменные поля ============

// Field - поле структурированного лога
type Field = zap.Field

func ClientID(id string) zap.Field        { return zap.String("client_id", id) }
func OrderID(id string) zap.Field         { return zap.String("order_id", id) }
func ExchangeOrderID(id string) zap.Field { return zap.String("exchange_order_id", id) }
func Symbol(symbol string) zap.Field      { return zap.String("symbol", symbol) }
func Strategy(name string) zap.Field      { return zap.String("strategy", name) }
func Side(side string) zap.Field          { return zap.String("side", side) }
func RequestID(id string) zap.Field       { return zap.String("request_id", id) }
func Component(name string) zap.Field     { return zap.String("component", name) }

// Balance пишет денежное значение строкой, без потери точности
func Balance(d decimal.Decimal) zap.Field { return zap.String("balance", d.StringFixed(2)) }

// Loss - величина просадки
func Loss(d decimal.Decimal) zap.Field { return zap.String("loss", d.StringFixed(2)) }

// Latency - длительность в миллисекундах
func Latency(d time.Duration) zap.Field {
	return zap.Float64("latency_ms", float64(d.Microseconds())/1000)
}

// Переэкспорт стандартных конструкторов zap
var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Bool   = zap.Bool
	Err    = zap.Error
)
