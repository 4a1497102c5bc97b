package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/security/validation"
	"github.com/username/conciliador/src/utils"
)

const errInvalidCredentials = "Invalid username or password"

// LoginUserHandler checks username and password, and the TOTP code when the
// user has MFA enabled, then issues an access token.
func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTPCode string `json:"totp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		ctxLogger.Warn("Invalid request body for login", "error", err)
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	credentials.Username = validation.SanitizeText(strings.TrimSpace(credentials.Username))

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			ctxLogger.Error("User lookup failed for login", "error", err)
		} else {
			ctxLogger.Warn("Login attempt for unknown user", "username", credentials.Username)
		}
		utils.SendJSONError(w, errInvalidCredentials, http.StatusUnauthorized)
		return
	}

	if err := h.authService.CompareHashAndPassword(user.Password, credentials.Password); err != nil {
		ctxLogger.Warn("Password check failed for login", "userID", user.ID)
		utils.SendJSONError(w, errInvalidCredentials, http.StatusUnauthorized)
		return
	}

	if user.MfaEnabled {
		code := strings.TrimSpace(credentials.TOTPCode)
		if code == "" {
			utils.SendJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "MFA code required",
				"code":  "MFA_REQUIRED",
			})
			return
		}
		if !h.mfaService.ValidateCode(user.MfaSecret, code) {
			ctxLogger.Warn("MFA check failed for login", "userID", user.ID)
			utils.SendJSONError(w, "Invalid MFA code", http.StatusUnauthorized)
			return
		}
	}

	if err := user.RecordLogin(database.DB, r.RemoteAddr); err != nil {
		ctxLogger.Error("Failed to record login", "userID", user.ID, "error", err)
	}

	accessToken, err := h.authService.GenerateToken(user.ID)
	if err != nil {
		ctxLogger.Error("Failed to generate access token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to generate access token", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("User login successful", "userID", user.ID)
	utils.SendJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"user":         user,
	})
}

// LogoutUserHandler drops the user's dashboard session. Tokens are stateless
// and simply expire.
func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	if userID, ok := GetUserIDFromContext(r.Context()); ok {
		h.sessions.Delete(userID)
		logger.FromContext(r.Context()).Info("Session cleared on logout")
	}
	w.WriteHeader(http.StatusNoContent)
}
