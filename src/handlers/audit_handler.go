package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

type AuditHandler struct {
	audit    services.AuditService
	exporter services.ExportService
	sessions *services.SessionStore
	maxBytes int64
}

func NewAuditHandler(audit services.AuditService, exporter services.ExportService, sessions *services.SessionStore, maxBytes int64) *AuditHandler {
	return &AuditHandler{
		audit:    audit,
		exporter: exporter,
		sessions: sessions,
		maxBytes: maxBytes,
	}
}

// HandleAudit audits a JSON batch sent as the request body or as a multipart
// "file". ?modo= picks the comparison rounding (half_up, down, ceiling).
func (h *AuditHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	mode, err := models.ParseRoundingMode(r.URL.Query().Get("modo"))
	if err != nil {
		utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, map[string]any{"modos": models.AllRoundingModes})
		return
	}

	var body io.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if !parseUploadForm(w, r, h.maxBytes) {
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	} else {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	report, err := h.audit.Run(body, mode)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) || errors.Is(err, services.ErrInvalidRequest) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Audit failed", "error", err)
		utils.SendJSONError(w, "Failed to run audit", http.StatusInternalServerError)
		return
	}

	h.sessions.Update(userID, func(current *models.Session) (*models.Session, error) {
		next := current.Clone()
		next.Audit = &report
		return next, nil
	})

	ctxLogger.Info("Audit finished", "mode", mode, "audited", report.Summary.Audited, "skipped", report.Summary.Skipped, "divergent", report.Summary.Divergent)
	utils.SendJSON(w, http.StatusOK, report.Display())
}

// HandleAuditExport downloads the last audit of the session.
func (h *AuditHandler) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	q := r.URL.Query()

	session := h.sessions.Get(userID)
	if session.Audit == nil {
		utils.SendJSONError(w, "No audit has been run in this session", http.StatusNotFound)
		return
	}
	format, err := services.ParseExportFormat(q.Get("formato"))
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.ExportAudit(&buf, *session.Audit, listParam(q, "colunas"), format); err != nil {
		if errors.Is(err, services.ErrInvalidColumns) {
			utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, map[string]any{"colunas": models.AuditColumns})
			return
		}
		logger.FromContext(r.Context()).Error("Audit export failed", "error", err)
		utils.SendJSONError(w, "Failed to export audit", http.StatusInternalServerError)
		return
	}
	writeDownload(w, "auditoria", format, buf.Bytes())
}
