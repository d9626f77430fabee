package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskguard/internal/api/handlers"
	"riskguard/internal/api/middleware"
	"riskguard/internal/service"
	"riskguard/internal/websocket"
	"riskguard/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService service.AccountServiceInterface
	OrderService   service.OrderServiceInterface
	RiskService    service.RiskServiceInterface
	Monitor        handlers.MonitorController
	Hub            *websocket.Hub

	AdminTokenHash string   // bcrypt; пусто - admin-маршруты открыты
	AllowedOrigins []string // CORS
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /accounts/
//	│   ├── POST / - регистрация
//	│   ├── GET / - список аккаунтов
//	│   ├── GET /{clientId} - получить аккаунт
//	│   ├── PUT /{clientId} - изменить лимиты
//	│   ├── DELETE /{clientId} - удалить (admin)
//	│   ├── GET /{clientId}/balance - текущий баланс
//	│   ├── PUT /{clientId}/balance - ручной баланс + проверка риска (admin)
//	│   ├── POST /{clientId}/trading/{enabled} - торговля вкл/выкл (admin)
//	│   └── POST /{clientId}/reset-baseline - сброс точки отсчета (admin)
//	├── /orders/
//	│   ├── POST /webhook - торговый сигнал
//	│   ├── GET /account/{clientId} - ордера аккаунта
//	│   ├── GET /open/{clientId} - открытые ордера
//	│   ├── GET /stats/{clientId} - статистика
//	│   ├── POST /close-all/{clientId} - закрыть все открытые
//	│   └── GET /{orderId} - ордер
//	├── /risk/
//	│   ├── POST /check/{clientId} - проверить аккаунт
//	│   ├── POST /check-all - проверить все
//	│   ├── POST /reset-trading/{clientId} - включить торговлю (admin)
//	│   ├── POST /reset-trading - ежедневный сброс (admin)
//	│   ├── GET /events - все события
//	│   └── GET /events/{clientId} - события аккаунта
//	└── /monitoring/
//	    ├── GET /status - состояние монитора
//	    ├── POST /enable - включить (admin)
//	    ├── POST /disable - выключить (admin)
//	    └── GET /health - health
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus
// /health - liveness
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. AdminAuth (только для admin-маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	logger := deps.Logger
	if logger == nil {
		logger = utils.L()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	api := router.PathPrefix("/api/v1").Subrouter()

	adminAuth := middleware.AdminAuth(deps.AdminTokenHash, logger)
	admin := func(path string, h http.HandlerFunc) *mux.Route {
		return api.Handle(path, adminAuth(h))
	}

	// Account routes
	if deps.AccountService != nil && deps.RiskService != nil {
		accountHandler := handlers.NewAccountHandler(deps.AccountService, deps.RiskService)

		api.HandleFunc("/accounts", accountHandler.Register).Methods("POST")
		api.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
		api.HandleFunc("/accounts/{clientId}", accountHandler.GetAccount).Methods("GET")
		api.HandleFunc("/accounts/{clientId}", accountHandler.UpdateAccount).Methods("PUT")
		api.HandleFunc("/accounts/{clientId}/balance", accountHandler.GetBalance).Methods("GET")

		admin("/accounts/{clientId}", accountHandler.DeleteAccount).Methods("DELETE")
		admin("/accounts/{clientId}/balance", accountHandler.UpdateBalance).Methods("PUT")
		admin("/accounts/{clientId}/trading/{enabled}", accountHandler.SetTrading).Methods("POST")
		admin("/accounts/{clientId}/reset-baseline", accountHandler.ResetBaseline).Methods("POST")
	}

	// Order routes
	if deps.OrderService != nil {
		orderHandler := handlers.NewOrderHandler(deps.OrderService)

		api.HandleFunc("/orders/webhook", orderHandler.Webhook).Methods("POST")
		api.HandleFunc("/orders/account/{clientId}", orderHandler.GetAccountOrders).Methods("GET")
		api.HandleFunc("/orders/open/{clientId}", orderHandler.GetOpenOrders).Methods("GET")
		api.HandleFunc("/orders/stats/{clientId}", orderHandler.GetStats).Methods("GET")
		api.HandleFunc("/orders/close-all/{clientId}", orderHandler.CloseAll).Methods("POST")
		api.HandleFunc("/orders/{orderId}", orderHandler.GetOrder).Methods("GET")
	}

	// Risk routes
	if deps.RiskService != nil {
		riskHandler := handlers.NewRiskHandler(deps.RiskService)

		api.HandleFunc("/risk/check/{clientId}", riskHandler.CheckRisk).Methods("POST")
		api.HandleFunc("/risk/check-all", riskHandler.CheckAll).Methods("POST")
		api.HandleFunc("/risk/events", riskHandler.GetAllEvents).Methods("GET")
		api.HandleFunc("/risk/events/{clientId}", riskHandler.GetAccountEvents).Methods("GET")

		admin("/risk/reset-trading/{clientId}", riskHandler.ResetTrading).Methods("POST")
		admin("/risk/reset-trading", riskHandler.ResetDaily).Methods("POST")
	}

	// Monitoring routes
	if deps.Monitor != nil {
		monitoringHandler := handlers.NewMonitoringHandler(deps.Monitor)

		api.HandleFunc("/monitoring/status", monitoringHandler.Status).Methods("GET")
		api.HandleFunc("/monitoring/health", monitoringHandler.Health).Methods("GET")

		admin("/monitoring/enable", monitoringHandler.Enable).Methods("POST")
		admin("/monitoring/disable", monitoringHandler.Disable).Methods("POST")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Preflight: ответ формирует CORS middleware
	router.MatcherFunc(isPreflight).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}

func isPreflight(r *http.Request, _ *mux.RouteMatch) bool {
	return r.Method == http.MethodOptions
}
