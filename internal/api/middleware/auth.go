package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"
)

// AdminAuth - middleware для admin-маршрутов
//
// Проверяет заголовок "Authorization: Bearer <token>" против bcrypt-хеша
// из ADMIN_TOKEN_HASH. Если хеш не задан, пропускает все запросы
// (локальное развертывание без auth).
//
// Использование:
//
//	admin := api.NewRoute().Subrouter()
//	admin.Use(middleware.AdminAuth(cfg.Security.AdminTokenHash, logger))
func AdminAuth(tokenHash string, logger *utils.Logger) mux.MiddlewareFunc {
	logger = logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		if tokenHash == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="riskguard-admin"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "Admin bearer token required")
				return
			}

			if err := crypto.VerifyToken(token, tokenHash); err != nil {
				logger.Warn("admin token rejected",
					utils.RequestID(RequestIDFromContext(r.Context())),
					utils.String("path", r.URL.Path),
					utils.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="riskguard-admin", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
