package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes - ограничение размера тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func handleServiceError(w http.ResponseWriter, logger *utils.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "validation_error", "Validation failed", err.Error())

	case errors.Is(err, service.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "account_not_found", "Account not found", "")

	case errors.Is(err, service.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "order_not_found", "Order not found", "")

	case errors.Is(err, service.ErrTradingDisabled):
		respondWithError(w, http.StatusForbidden, "trading_disabled", "Trading is disabled for this account", "")

	case errors.Is(err, service.ErrAccountExists):
		respondWithError(w, http.StatusConflict, "account_exists", "Account with these credentials already exists", "")

	case errors.Is(err, service.ErrCredentialsRejected):
		respondWithError(w, http.StatusBadRequest, "credentials_rejected",
			"Failed to register account. Please check your Kraken API credentials", err.Error())

	default:
		logger.Error("request failed", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

// decodeJSON читает тело запроса в dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "invalid_request", "Request body is required", "")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// clientIDVar возвращает {clientId} из пути
func clientIDVar(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["clientId"])
}
