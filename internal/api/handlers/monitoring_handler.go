package handlers

import (
	"net/http"
	"time"

	"riskguard/internal/monitor"
)

// ServiceName и ServiceVersion возвращаются в health
const (
	ServiceName    = "Risk Management Service"
	ServiceVersion = "1.0.0"
)

// MonitorController - управление фоновым монитором
type MonitorController interface {
	Status() monitor.Status
	Enable()
	Disable()
	IsEnabled() bool
}

var _ MonitorController = (*monitor.Monitor)(nil)

// MonitoringHandler - состояние и переключение монитора риска
type MonitoringHandler struct {
	monitor MonitorController
}

// NewMonitoringHandler создает новый MonitoringHandler
func NewMonitoringHandler(m MonitorController) *MonitoringHandler {
	return &MonitoringHandler{monitor: m}
}

// MonitoringToggleResponse - ответ на enable/disable
type MonitoringToggleResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	MonitoringEnabled bool   `json:"monitoring_enabled"`
}

// HealthResponse - ответ health
type HealthResponse struct {
	Status            string    `json:"status"`
	Service           string    `json:"service"`
	Version           string    `json:"version"`
	MonitoringEnabled bool      `json:"monitoring_enabled"`
	Timestamp         time.Time `json:"timestamp"`
	Uptime            string    `json:"uptime"`
}

// Status возвращает состояние монитора
// GET /api/v1/monitoring/status
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.monitor.Status())
}

// Enable включает периодические проверки
// POST /api/v1/monitoring/enable
func (h *MonitoringHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.monitor.Enable()
	respondWithJSON(w, http.StatusOK, MonitoringToggleResponse{
		Status:            "success",
		Message:           "Risk monitoring enabled",
		MonitoringEnabled: true,
	})
}

// Disable выключает периодические проверки
// POST /api/v1/monitoring/disable
func (h *MonitoringHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.monitor.Disable()
	respondWithJSON(w, http.StatusOK, MonitoringToggleResponse{
		Status:            "success",
		Message:           "Risk monitoring disabled",
		MonitoringEnabled: false,
	})
}

// Health - проверка живости сервиса
// GET /api/v1/monitoring/health
func (h *MonitoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.monitor.Status()
	respondWithJSON(w, http.StatusOK, HealthResponse{
		Status:            "healthy",
		Service:           ServiceName,
		Version:           ServiceVersion,
		MonitoringEnabled: st.MonitoringEnabled,
		Timestamp:         st.CurrentTimeUTC,
		Uptime:            st.Uptime,
	})
}
