package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"riskguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorBody - формат ошибки, совпадает с handlers.ErrorResponse
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, пишет в лог значение и stack trace,
// клиенту возвращает 500 без деталей паники.
func Recovery(logger *utils.Logger) mux.MiddlewareFunc {
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					logger.Error("panic in http handler",
						utils.RequestID(RequestIDFromContext(r.Context())),
						utils.String("method", r.Method),
						utils.String("path", r.URL.Path),
						utils.String("panic", fmt.Sprint(rec)),
						utils.String("stack", string(debug.Stack())),
					)

					writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
