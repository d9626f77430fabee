// Package integration contains integration tests for the risk management service.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle against PostgreSQL
// - WebSocket tests: risk events delivered to subscribed clients
// - Database tests: migrations, constraints, cascades
//
// The exchange runs in demo mode, so no network access is required.
// Tests are skipped when the database is not reachable.
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"riskguard/internal/api"
	"riskguard/internal/exchange"
	"riskguard/internal/monitor"
	"riskguard/internal/repository"
	"riskguard/internal/service"
	"riskguard/internal/websocket"
	"riskguard/migrations"
	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"
)

// testEncryptionKey - AES-256 key for test credentials
const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Monitor  *monitor.Monitor
	Repos    *TestRepositories
	Services *TestServices
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Account   *repository.AccountRepository
	Order     *repository.OrderRepository
	RiskEvent *repository.RiskEventRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Account *service.AccountService
	Order   *service.OrderService
	Risk    *service.RiskService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "riskguard_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection with the schema applied
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	if err := migrations.Up(ctx, db); err != nil {
		db.Close()
		t.Skipf("Skipping integration test: cannot apply migrations: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanupTestTables(db)

	cleanup := func() {
		cleanupTestTables(db)
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components.
// The exchange is the demo client with a 10000.00 balance.
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	utils.SetGlobalLogger(utils.NewNopLogger())

	cipher, err := crypto.NewCipher([]byte(testEncryptionKey))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	demoBalance := decimal.RequireFromString("10000.00")
	exch := exchange.NewDemo(demoBalance, utils.NewNopLogger())

	repos := &TestRepositories{
		Account:   repository.NewAccountRepository(db),
		Order:     repository.NewOrderRepository(db),
		RiskEvent: repository.NewRiskEventRepository(db),
	}

	locks := service.NewAccountLocks()
	orderSvc := service.NewOrderService(repos.Account, repos.Order, exch, cipher, locks, 5*time.Second)
	services := &TestServices{
		Account: service.NewAccountService(repos.Account, exch, cipher, locks, service.AccountServiceConfig{
			DemoMode:        true,
			DemoBalance:     demoBalance,
			ExchangeTimeout: 5 * time.Second,
		}),
		Order: orderSvc,
		Risk:  service.NewRiskService(repos.Account, repos.RiskEvent, orderSvc, exch, cipher, locks, 5*time.Second),
	}

	hub := websocket.NewHub(nil)
	go hub.Run()

	services.Account.SetPublisher(hub)
	services.Order.SetPublisher(hub)
	services.Risk.SetPublisher(hub)

	mon := monitor.New(services.Risk, monitor.Config{
		Interval:     time.Hour,
		DailyResetAt: utils.TradingResumeClock,
		Enabled:      false,
	})

	router := api.SetupRoutes(&api.Dependencies{
		AccountService: services.Account,
		OrderService:   services.Order,
		RiskService:    services.Risk,
		Monitor:        mon,
		Hub:            hub,
		Logger:         utils.NewNopLogger(),
	})

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Monitor:  mon,
		Repos:    repos,
		Services: services,
		Cleanup:  cleanup,
	}
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	// risk_events и orders очищаются каскадом
	db.Exec("TRUNCATE TABLE accounts CASCADE")
}

// countRows returns the number of rows in a table for an account
func countRows(t *testing.T, db *sql.DB, table, accountID string) int {
	t.Helper()

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE account_id = $1", table)
	if err := db.QueryRow(query, accountID).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
