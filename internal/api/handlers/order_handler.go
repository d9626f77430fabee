package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"riskguard/internal/models"
	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

// OrderHandler отвечает за прием сигналов и просмотр ордеров
//
// Функции:
// - Прием торгового сигнала (POST /api/v1/orders/webhook)
// - Ордера аккаунта, открытые ордера, статистика
// - Принудительное закрытие всех открытых ордеров
//
// Отказ стратегии (pyramid) и отказ биржи - не ошибки HTTP:
// возвращается 200 со status "rejected" или "failed".
type OrderHandler struct {
	orders service.OrderServiceInterface
	logger *utils.Logger
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(orders service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: utils.L().WithComponent("order_handler"),
	}
}

// OrderListResponse - список ордеров аккаунта
type OrderListResponse struct {
	ClientID string          `json:"client_id"`
	Orders   []*models.Order `json:"orders"`
	Total    int             `json:"total"`
}

// OrderResponse - один ордер
type OrderResponse struct {
	Status string        `json:"status"`
	Order  *models.Order `json:"order"`
}

// CloseAllResponse - итог принудительного закрытия
type CloseAllResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Result  *models.CloseAllResult `json:"result"`
}

// Webhook обрабатывает торговый сигнал
// POST /api/v1/orders/webhook
//
// Request Body:
//
//	{
//	  "clientId": "1234567890",
//	  "symbol": "PF_XBTUSD",
//	  "strategy": "breakout",
//	  "maxriskperday%": 2,
//	  "action": "BUY",
//	  "orderQty": 0.01,
//	  "inverse": false,
//	  "pyramid": false,
//	  "stopLoss%": 1.5
//	}
//
// Response:
// - 200 OK: status success / failed / rejected
// - 400 Bad Request: невалидный сигнал
// - 403 Forbidden: торговля по аккаунту выключена
// - 404 Not Found: аккаунт не найден
func (h *OrderHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var sig models.Signal
	if !decodeJSON(w, r, &sig) {
		return
	}

	result, err := h.orders.ProcessSignal(r.Context(), &sig)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetAccountOrders возвращает все ордера аккаунта, новые первыми
// GET /api/v1/orders/account/{clientId}
func (h *OrderHandler) GetAccountOrders(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDVar(r)
	orders, err := h.orders.GetAccountOrders(clientID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.respondWithOrders(w, clientID, orders)
}

// GetOpenOrders возвращает открытые ордера аккаунта
// GET /api/v1/orders/open/{clientId}
func (h *OrderHandler) GetOpenOrders(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDVar(r)
	orders, err := h.orders.GetOpenOrders(clientID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.respondWithOrders(w, clientID, orders)
}

func (h *OrderHandler) respondWithOrders(w http.ResponseWriter, clientID string, orders []*models.Order) {
	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, OrderListResponse{
		ClientID: clientID,
		Orders:   orders,
		Total:    len(orders),
	})
}

// GetOrder возвращает ордер по id
// GET /api/v1/orders/{orderId}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(mux.Vars(r)["orderId"])
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, OrderResponse{Status: "success", Order: order})
}

// CloseAll закрывает все открытые ордера аккаунта
// POST /api/v1/orders/close-all/{clientId}
func (h *OrderHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.CloseAllOrders(r.Context(), clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, CloseAllResponse{
		Status:  "success",
		Message: "All open orders closed",
		Result:  result,
	})
}

// GetStats возвращает статистику ордеров аккаунта
// GET /api/v1/orders/stats/{clientId}
func (h *OrderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.GetOrderStats(clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
