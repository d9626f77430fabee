package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Monitor  MonitorConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  []string // CORS и WebSocket, пусто = все
	ShutdownTimeout time.Duration
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool // применять migrations/ при старте
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey  string // AES-256 ключ для API ключей биржи
	AdminTokenHash string // bcrypt-хеш admin-токена, пусто = admin-маршруты открыты
}

// ExchangeConfig - настройки клиента Kraken Futures
type ExchangeConfig struct {
	BaseURL     string
	APIVersion  string
	Timeout     time.Duration // таймаут одного вызова биржи
	RateLimit   float64       // запросов в секунду на один ключ
	RateBurst   float64
	DemoMode    bool
	DemoBalance decimal.Decimal
}

// MonitorConfig - настройки фонового монитора риска
type MonitorConfig struct {
	Enabled      bool
	Interval     time.Duration
	DailyResetAt utils.ClockTime
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения.
// Переменные окружения имеют приоритет над .env.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	resetAt, err := utils.ParseClock(getEnv("DAILY_RESET_AT", utils.TradingResumeClock.String()))
	if err != nil {
		return nil, fmt.Errorf("DAILY_RESET_AT: %w", err)
	}

	demoBalance, err := getEnvAsDecimal("DEMO_INITIAL_BALANCE", decimal.RequireFromString("10000.00"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "riskguard"),
			User:         getEnv("DB_USER", "riskguard"),
			Password:     getEnv("DB_PASSWORD", ""),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Security: SecurityConfig{
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
		Exchange: ExchangeConfig{
			BaseURL:     getEnv("KRAKEN_BASE_URL", "https://demo-futures.kraken.com"),
			APIVersion:  getEnv("KRAKEN_API_VERSION", "v3"),
			Timeout:     getEnvAsDuration("EXCHANGE_TIMEOUT", 10*time.Second),
			RateLimit:   getEnvAsFloat("EXCHANGE_RATE_LIMIT", 5),
			RateBurst:   getEnvAsFloat("EXCHANGE_RATE_BURST", 10),
			DemoMode:    getEnvAsBool("DEMO_MODE", false),
			DemoBalance: demoBalance,
		},
		Monitor: MonitorConfig{
			Enabled:      getEnvAsBool("MONITOR_ENABLED", true),
			Interval:     getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
			DailyResetAt: resetAt,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile подгружает .env, отсутствие файла не ошибка
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей биржи
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Security.AdminTokenHash != "" {
		if err := crypto.ValidateHash(c.Security.AdminTokenHash); err != nil {
			return fmt.Errorf("ADMIN_TOKEN_HASH must be a bcrypt hash: %w", err)
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be positive, got %v", c.Exchange.Timeout)
	}

	if c.Monitor.Interval < time.Second {
		return fmt.Errorf("MONITOR_INTERVAL must be at least 1s, got %v", c.Monitor.Interval)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}

	if c.Exchange.RateLimit <= 0 {
		return fmt.Errorf("EXCHANGE_RATE_LIMIT must be positive, got %v", c.Exchange.RateLimit)
	}

	if c.Exchange.RateBurst < 1 {
		return fmt.Errorf("EXCHANGE_RATE_BURST must be at least 1, got %v", c.Exchange.RateBurst)
	}

	if c.Exchange.DemoMode && !c.Exchange.DemoBalance.IsPositive() {
		return fmt.Errorf("DEMO_INITIAL_BALANCE must be positive, got %s", c.Exchange.DemoBalance)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1, got %d", c.Database.MaxOpenConns)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal возвращает ошибку при некорректном значении
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number: %w", key, err)
	}
	return value, nil
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
