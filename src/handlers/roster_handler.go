package handlers

import (
	"errors"
	"net/http"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

type RosterHandler struct {
	roster   services.RosterService
	maxBytes int64
}

func NewRosterHandler(roster services.RosterService, maxBytes int64) *RosterHandler {
	return &RosterHandler{roster: roster, maxBytes: maxBytes}
}

func (h *RosterHandler) HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	entries, err := h.roster.List()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list roster", "error", err)
		utils.SendJSONError(w, "Failed to load roster", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.RosterEntry{}
	}
	utils.SendJSON(w, http.StatusOK, entries)
}

// HandleUploadRoster replaces the roster with an uploaded CSV.
func (h *RosterHandler) HandleUploadRoster(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	if !parseUploadForm(w, r, h.maxBytes) {
		return
	}
	file, _, ok := readUpload(w, r, models.SourceCSVUpload, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	result, err := h.roster.Import(file, userID)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) || errors.Is(err, services.ErrInvalidRequest) {
			utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, result)
			return
		}
		ctxLogger.Error("Roster import failed", "error", err)
		utils.SendJSONError(w, "Failed to import roster", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, result)
}
