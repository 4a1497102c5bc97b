// src/handlers/middleware.go
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/utils"
)

type contextKey string

const (
	userIDContextKey    contextKey = "userID"
	requestIDContextKey contextKey = "requestID"
)

// ContextualLoggerMiddleware attaches a logger carrying a fresh request id to every request.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext returns the id stored by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// bearerToken extracts the token from an Authorization header, with or without the Bearer prefix.
func bearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return authHeader
}

// AuthMiddleware validates the JWT and puts the user id on the context and the logger.
func (h *UserHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		tokenString := bearerToken(r)
		if tokenString == "" {
			ctxLogger.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		userID, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			ctxLogger.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		enrichedLogger := ctxLogger.With(slog.Int64("userID", userID))
		ctx := logger.ToContext(r.Context(), enrichedLogger)
		ctx = context.WithValue(ctx, userIDContextKey, userID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware lets through only users whose row carries is_admin. Deleted
// users are rejected even if their token is still valid.
func (h *UserHandler) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		user, err := model.GetUserByID(database.DB, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				utils.SendJSONError(w, "User not found", http.StatusUnauthorized)
				return
			}
			ctxLogger.Error("AdminMiddleware: user lookup failed", "error", err)
			utils.SendJSONError(w, "Failed to verify permissions", http.StatusInternalServerError)
			return
		}
		if !user.IsAdmin {
			ctxLogger.Warn("AdminMiddleware: non-admin access attempt", "path", r.URL.Path)
			utils.SendJSONError(w, "Forbidden: administrator access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
