package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"riskguard/internal/api"
	"riskguard/internal/config"
	"riskguard/internal/exchange"
	"riskguard/internal/monitor"
	"riskguard/internal/repository"
	"riskguard/internal/service"
	"riskguard/internal/websocket"
	"riskguard/migrations"
	"riskguard/pkg/crypto"
	"riskguard/pkg/retry"
	"riskguard/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			logger.Fatal("failed to apply migrations", utils.Err(err))
		}
	}

	// Инициализация репозиториев
	accountRepo := repository.NewAccountRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewRiskEventRepository(db)

	cipher, err := crypto.NewCipher([]byte(cfg.Security.EncryptionKey))
	if err != nil {
		logger.Fatal("failed to init cipher", utils.Err(err))
	}

	exch := exchange.NewClient(exchange.Config{
		BaseURL:     cfg.Exchange.BaseURL,
		APIVersion:  cfg.Exchange.APIVersion,
		Timeout:     cfg.Exchange.Timeout,
		RateLimit:   cfg.Exchange.RateLimit,
		RateBurst:   cfg.Exchange.RateBurst,
		DemoMode:    cfg.Exchange.DemoMode,
		DemoBalance: cfg.Exchange.DemoBalance,
	}, logger.WithComponent("exchange"))

	if cfg.Exchange.DemoMode {
		logger.Warn("demo mode: orders are not sent to the exchange",
			utils.Balance(cfg.Exchange.DemoBalance))
	}

	// Инициализация сервисов (общие мьютексы аккаунтов для всех трех)
	locks := service.NewAccountLocks()

	accountService := service.NewAccountService(accountRepo, exch, cipher, locks, service.AccountServiceConfig{
		DemoMode:        cfg.Exchange.DemoMode,
		DemoBalance:     cfg.Exchange.DemoBalance,
		ExchangeTimeout: cfg.Exchange.Timeout,
	})
	orderService := service.NewOrderService(accountRepo, orderRepo, exch, cipher, locks, cfg.Exchange.Timeout)
	riskService := service.NewRiskService(accountRepo, eventRepo, orderService, exch, cipher, locks, cfg.Exchange.Timeout)

	// WebSocket hub
	hub := websocket.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run()

	accountService.SetPublisher(hub)
	orderService.SetPublisher(hub)
	riskService.SetPublisher(hub)

	// Фоновый монитор риска
	mon := monitor.New(riskService, monitor.Config{
		Interval:     cfg.Monitor.Interval,
		DailyResetAt: cfg.Monitor.DailyResetAt,
		Enabled:      cfg.Monitor.Enabled,
	})
	// Сигнал останавливает монитор через Stop, текущий обход не прерывается
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mon.Start(monitorCtx)
	}()

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		AccountService: accountService,
		OrderService:   orderService,
		RiskService:    riskService,
		Monitor:        mon,
		Hub:            hub,
		AdminTokenHash: cfg.Security.AdminTokenHash,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.WithComponent("http"),
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		logger.Error("server failed", utils.Err(err))
	}

	// Монитор дожидается текущего обхода
	mon.Stop()
	<-monitorDone
	cancelMonitor()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}
	hub.Stop()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных и ждет ее готовности
func initDatabase(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	retryCfg := retry.StartupConfig()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("database not ready",
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.Latency(delay))
	}

	// Проверка подключения
	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retryCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
