// src/handlers/user_handler.go
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/security"
	"github.com/username/conciliador/src/security/validation"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

type UserHandler struct {
	authService *security.AuthService
	mfaService  *services.MFAService
	sessions    *services.SessionStore
}

func NewUserHandler(authService *security.AuthService, mfaService *services.MFAService, sessions *services.SessionStore) *UserHandler {
	return &UserHandler{
		authService: authService,
		mfaService:  mfaService,
		sessions:    sessions,
	}
}

type userRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  *bool  `json:"is_admin"`
}

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

// HandleGetMe returns the authenticated user.
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		utils.SendJSONError(w, "User not found", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, http.StatusOK, user)
}

// --- ADMIN FUNCTIONS ---

func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := model.ListUsers(database.DB)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list users", "error", err)
		utils.SendJSONError(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	utils.SendJSON(w, http.StatusOK, users)
}

func (h *UserHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = validation.SanitizeText(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(req.Email)))

	if err := validation.ValidateUsername(req.Username); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		ctxLogger.Error("Failed to hash password", "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hash,
		IsAdmin:  req.IsAdmin != nil && *req.IsAdmin,
	}
	if err := user.CreateUser(database.DB); err != nil {
		if errors.Is(err, model.ErrUsernameTaken) {
			utils.SendJSONError(w, "Username already exists", http.StatusConflict)
			return
		}
		ctxLogger.Error("Failed to create user", "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("User created", "newUserID", user.ID, "isAdmin", user.IsAdmin)
	utils.SendJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	targetID, err := userIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "User not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to load user for update", "targetUserID", targetID, "error", err)
		utils.SendJSONError(w, "Failed to update user", http.StatusInternalServerError)
		return
	}

	callerID, _ := GetUserIDFromContext(r.Context())
	if req.IsAdmin != nil {
		if callerID == targetID && !*req.IsAdmin {
			utils.SendJSONError(w, "You cannot remove your own administrator access", http.StatusBadRequest)
			return
		}
		user.IsAdmin = *req.IsAdmin
	}
	if req.Email != "" {
		email := strings.ToLower(validation.SanitizeText(strings.TrimSpace(req.Email)))
		if err := validation.ValidateEmail(email); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		user.Email = email
	}

	if req.Password != "" {
		if err := validation.ValidatePassword(req.Password); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		hash, err := h.authService.HashPassword(req.Password)
		if err != nil {
			ctxLogger.Error("Failed to hash password", "error", err)
			utils.SendJSONError(w, "Failed to update user", http.StatusInternalServerError)
			return
		}
		if err := user.UpdatePassword(database.DB, hash); err != nil {
			ctxLogger.Error("Failed to update password", "targetUserID", targetID, "error", err)
			utils.SendJSONError(w, "Failed to update user", http.StatusInternalServerError)
			return
		}
	}

	if err := user.UpdateUser(database.DB); err != nil {
		ctxLogger.Error("Failed to update user", "targetUserID", targetID, "error", err)
		utils.SendJSONError(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("User updated", "targetUserID", targetID)
	utils.SendJSON(w, http.StatusOK, user)
}

func (h *UserHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	targetID, err := userIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if callerID, _ := GetUserIDFromContext(r.Context()); callerID == targetID {
		utils.SendJSONError(w, "You cannot delete your own account", http.StatusBadRequest)
		return
	}

	if err := model.DeleteUser(database.DB, targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.SendJSONError(w, "User not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to delete user", "targetUserID", targetID, "error", err)
		utils.SendJSONError(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	h.sessions.Delete(targetID)
	ctxLogger.Info("User deleted", "targetUserID", targetID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetupMFA stores a new TOTP secret without enabling it; HandleEnableMFA
// turns it on once the user proves the authenticator app works.
func (h *UserHandler) HandleSetupMFA(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		utils.SendJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	enrollment, err := h.mfaService.Enroll(user.Username)
	if err != nil {
		ctxLogger.Error("Failed to generate MFA secret", "error", err)
		utils.SendJSONError(w, "Failed to generate MFA", http.StatusInternalServerError)
		return
	}
	if err := user.UpdateMfaSecret(database.DB, enrollment.Secret); err != nil {
		ctxLogger.Error("Failed to save MFA secret", "error", err)
		utils.SendJSONError(w, "Failed to save MFA secret", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("MFA setup started", "issuer", h.mfaService.Issuer())
	utils.SendJSON(w, http.StatusOK, enrollment)
}

func (h *UserHandler) HandleEnableMFA(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		utils.SendJSONError(w, "A verification code is required", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		utils.SendJSONError(w, "User not found", http.StatusNotFound)
		return
	}
	if user.MfaSecret == "" {
		utils.SendJSONError(w, "MFA setup has not been started", http.StatusBadRequest)
		return
	}
	if !h.mfaService.ValidateCode(user.MfaSecret, req.Code) {
		utils.SendJSONError(w, "Invalid code", http.StatusUnauthorized)
		return
	}

	if err := user.UpdateMfaEnabled(database.DB, true); err != nil {
		ctxLogger.Error("Failed to enable MFA", "error", err)
		utils.SendJSONError(w, "Failed to enable MFA", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("MFA enabled")
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "MFA enabled"})
}
