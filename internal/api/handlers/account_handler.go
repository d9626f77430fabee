package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"riskguard/internal/models"
	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

// AccountHandler отвечает за регистрацию и управление аккаунтами
//
// Функции:
// - Регистрация аккаунта с ключами Kraken (POST /api/v1/accounts)
// - Список и получение аккаунтов (GET /api/v1/accounts[/{clientId}])
// - Изменение лимитов риска (PUT /api/v1/accounts/{clientId})
// - Удаление аккаунта вместе с ордерами и событиями (DELETE)
// - Ручная установка баланса с немедленной проверкой риска (PUT .../balance)
// - Текущий баланс (GET .../balance)
// - Включение/выключение торговли (POST .../trading/{enabled})
// - Сброс точки отсчета просадки (POST .../reset-baseline)
type AccountHandler struct {
	accounts service.AccountServiceInterface
	risk     service.RiskServiceInterface
	logger   *utils.Logger
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accounts service.AccountServiceInterface, risk service.RiskServiceInterface) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		risk:     risk,
		logger:   utils.L().WithComponent("account_handler"),
	}
}

// RegisterResponse - ответ на регистрацию
type RegisterResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	ClientID string          `json:"client_id"`
	Account  *models.Account `json:"account"`
}

// AccountResponse - ответ с одним аккаунтом
type AccountResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Account *models.Account `json:"account"`
}

// AccountListResponse - список аккаунтов
type AccountListResponse struct {
	Accounts []*models.Account `json:"accounts"`
	Total    int               `json:"total"`
}

// BalanceOverrideResponse - результат ручной установки баланса
type BalanceOverrideResponse struct {
	Status   string               `json:"status"`
	Message  string               `json:"message"`
	Account  *models.Account      `json:"account"`
	RiskInfo *models.RiskSnapshot `json:"risk_info"`
}

// Register регистрирует аккаунт
// POST /api/v1/accounts
//
// Request Body:
//
//	{
//	  "apiKey": "...",
//	  "privateKey": "base64...",
//	  "dailyRiskAbsolute": 1000,
//	  "dailyRiskPercentage": 2.5
//	}
//
// Response:
// - 201 Created: аккаунт создан, client_id в ответе
// - 400 Bad Request: невалидные параметры или биржа отклонила ключи
// - 409 Conflict: аккаунт уже существует
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Register(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, RegisterResponse{
		Status:   "success",
		Message:  "Account registered successfully",
		ClientID: acc.ClientID,
		Account:  acc,
	})
}

// ListAccounts возвращает все аккаунты
// GET /api/v1/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts()
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}

	respondWithJSON(w, http.StatusOK, AccountListResponse{Accounts: accounts, Total: len(accounts)})
}

// GetAccount возвращает аккаунт по client id
// GET /api/v1/accounts/{clientId}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.GetAccount(clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, AccountResponse{Status: "success", Account: acc})
}

// UpdateAccount изменяет лимиты риска и активность
// PUT /api/v1/accounts/{clientId}
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.UpdateAccount(clientIDVar(r), &req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, AccountResponse{
		Status:  "success",
		Message: "Account updated successfully",
		Account: acc,
	})
}

// DeleteAccount удаляет аккаунт (ордера и события удаляются каскадно)
// DELETE /api/v1/accounts/{clientId}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(clientIDVar(r)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateBalance устанавливает текущий баланс и сразу проверяет риск
// PUT /api/v1/accounts/{clientId}/balance
//
// Request Body: {"balance": 48500}
//
// Если проверка выявила нарушение, ордера уже закрыты и торговля выключена
// к моменту ответа.
func (h *AccountHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req models.BalanceUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	clientID := clientIDVar(r)
	if _, err := h.accounts.UpdateBalance(clientID, req.Balance); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	snap, err := h.risk.CheckRisk(r.Context(), clientID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	// перечитываем: проверка могла выключить торговлю и выставить baseline
	acc, err := h.accounts.GetAccount(clientID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	message := fmt.Sprintf("Balance updated for user %s", clientID)
	if snap.RiskStatus == models.RiskStatusExceeded {
		message += " - RISK LIMIT EXCEEDED"
	}

	respondWithJSON(w, http.StatusOK, BalanceOverrideResponse{
		Status:   "success",
		Message:  message,
		Account:  acc,
		RiskInfo: snap,
	})
}

// GetBalance возвращает текущий баланс (сохраненный или с биржи)
// GET /api/v1/accounts/{clientId}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	info, err := h.accounts.GetCurrentBalance(r.Context(), clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, info)
}

// SetTrading включает или выключает торговлю
// POST /api/v1/accounts/{clientId}/trading/{enabled}
func (h *AccountHandler) SetTrading(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(mux.Vars(r)["enabled"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_enabled", "enabled must be true or false", "")
		return
	}

	acc, err := h.accounts.SetTradingEnabled(clientIDVar(r), enabled)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	respondWithJSON(w, http.StatusOK, AccountResponse{
		Status:  "success",
		Message: fmt.Sprintf("Trading %s for user %s", state, acc.ClientID),
		Account: acc,
	})
}

// ResetBaseline переносит точку отсчета просадки на текущий баланс
// POST /api/v1/accounts/{clientId}/reset-baseline
func (h *AccountHandler) ResetBaseline(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.ResetInitialBalance(clientIDVar(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, AccountResponse{
		Status:  "success",
		Message: "Initial balance reset to current balance",
		Account: acc,
	})
}
