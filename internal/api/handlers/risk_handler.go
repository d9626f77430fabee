package handlers

import (
	"fmt"
	"net/http"

	"riskguard/internal/models"
	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

// RiskHandler - ручной запуск проверок риска, сброс блокировок и журнал событий
type RiskHandler struct {
	risk   service.RiskServiceInterface
	logger *utils.Logger
}

// NewRiskHandler создает новый RiskHandler
func NewRiskHandler(risk service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{
		risk:   risk,
		logger: utils.L().WithComponent("risk_handler"),
	}
}

// CheckAllResponse - итог обхода всех аккаунтов
type CheckAllResponse struct {
	Status       string                 `json:"status"`
	Message      string                 `json:"message"`
	Results      []*models.RiskSnapshot `json:"results"`
	UsersChecked int                    `json:"users_checked"`
}

// ResetDailyResponse - итог ежедневного сброса
type ResetDailyResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UsersReset int    `json:"users_reset"`
}

// RiskEventsResponse - журнал risk-событий
type RiskEventsResponse struct {
	ClientID string              `json:"client_id,omitempty"`
	Events   []*models.RiskEvent `json:"events"`
	Total    int                 `json:"total"`
}

// CheckRisk проверяет риск одного аккаунта
// POST /api/v1/risk/check/{clientId}
func (h *RiskHandler) CheckRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.risk.CheckRisk(r.Context(), clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, snap)
}

// CheckAll проверяет риск всех активных аккаунтов
// POST /api/v1/risk/check-all
func (h *RiskHandler) CheckAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.risk.CheckAllRisk(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if results == nil {
		results = []*models.RiskSnapshot{}
	}

	respondWithJSON(w, http.StatusOK, CheckAllResponse{
		Status:       "success",
		Message:      "Risk check completed for all users",
		Results:      results,
		UsersChecked: len(results),
	})
}

// ResetTrading включает торговлю аккаунту вручную
// POST /api/v1/risk/reset-trading/{clientId}
func (h *RiskHandler) ResetTrading(w http.ResponseWriter, r *http.Request) {
	acc, err := h.risk.ResetTradingStatus(r.Context(), clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, AccountResponse{
		Status:  "success",
		Message: fmt.Sprintf("Trading status reset for user %s", acc.ClientID),
		Account: acc,
	})
}

// ResetDaily включает торговлю всем аккаунтам с истекшей блокировкой
// POST /api/v1/risk/reset-trading
func (h *RiskHandler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	n, err := h.risk.ResetDailyTrading(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ResetDailyResponse{
		Status:     "success",
		Message:    "Daily trading reset completed",
		UsersReset: n,
	})
}

// GetAllEvents возвращает все risk-события, новые первыми
// GET /api/v1/risk/events
func (h *RiskHandler) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.risk.GetAllRiskEvents()
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newRiskEventsResponse("", events))
}

// GetAccountEvents возвращает события одного аккаунта
// GET /api/v1/risk/events/{clientId}
func (h *RiskHandler) GetAccountEvents(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDVar(r)
	events, err := h.risk.GetAccountRiskEvents(clientID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newRiskEventsResponse(clientID, events))
}

func newRiskEventsResponse(clientID string, events []*models.RiskEvent) RiskEventsResponse {
	if events == nil {
		events = []*models.RiskEvent{}
	}
	return RiskEventsResponse{ClientID: clientID, Events: events, Total: len(events)}
}
