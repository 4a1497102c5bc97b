// src/handlers/transaction_handler.go
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/processors"
	"github.com/username/conciliador/src/security/validation"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

type TransactionHandler struct {
	consolidation services.ConsolidationService
	summaries     processors.SummaryProcessor
	exporter      services.ExportService
	sessions      *services.SessionStore
}

func NewTransactionHandler(
	consolidation services.ConsolidationService,
	summaries processors.SummaryProcessor,
	exporter services.ExportService,
	sessions *services.SessionStore,
) *TransactionHandler {
	return &TransactionHandler{
		consolidation: consolidation,
		summaries:     summaries,
		exporter:      exporter,
		sessions:      sessions,
	}
}

type loadResponse struct {
	Session     *models.Session `json:"sessao"`
	TotalLinhas int             `json:"total_linhas"`
}

type transactionsResponse struct {
	Linhas []models.ConsolidatedRow `json:"linhas"`
	Total  int                      `json:"total"`
}

func (h *TransactionHandler) HandleGetSources(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	utils.SendJSON(w, http.StatusOK, h.consolidation.Sources(h.sessions.Get(userID)))
}

// HandleLoad runs the consolidated load for {"de", "ate", "fontes", "refresh"}.
func (h *TransactionHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	var body struct {
		De      string   `json:"de"`
		Ate     string   `json:"ate"`
		Fontes  []string `json:"fontes"`
		Refresh bool     `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	from, to, err := validation.ValidateDateRange(body.De, body.Ate)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sources, err := parseSources(body.Fontes)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	next, err := h.sessions.Update(userID, func(current *models.Session) (*models.Session, error) {
		return h.consolidation.Load(r.Context(), current, services.LoadRequest{
			From: from, To: to, Sources: sources, Refresh: body.Refresh,
		})
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Consolidated load failed", "error", err)
		utils.SendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Consolidated load finished", "rows", len(next.Rows), "sources", len(next.Results), "duration", time.Since(start))
	utils.SendJSON(w, http.StatusOK, loadResponse{Session: next, TotalLinhas: len(next.Rows)})
}

// HandleGetTransactions returns the filtered consolidated table with an ETag.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	filter, err := parseTableFilter(r.URL.Query())
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows := h.summaries.Filter(h.sessions.Get(userID).Rows, filter)
	response := transactionsResponse{Linhas: rows, Total: len(rows)}

	currentETag, etagErr := utils.GenerateETag(response)
	if etagErr != nil {
		ctxLogger.Error("Failed to generate ETag for transactions", "error", etagErr)
	}
	w.Header().Set("Cache-Control", "no-cache, private")
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}
	utils.SendJSON(w, http.StatusOK, response)
}

// HandleGetSummary groups the filtered table by ?dimensao= (default plataforma).
func (h *TransactionHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	q := r.URL.Query()

	filter, err := parseTableFilter(q)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	dimension := strings.TrimSpace(q.Get("dimensao"))
	if dimension == "" {
		dimension = models.DimensionPlataforma
	}

	rows := h.summaries.Filter(h.sessions.Get(userID).Rows, filter)
	summary, err := h.summaries.Summarize(rows, dimension)
	if err != nil {
		utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, map[string]any{"dimensoes": models.SummaryDimensions})
		return
	}
	utils.SendJSON(w, http.StatusOK, summary)
}

// HandleExport downloads the filtered table with the selected ?colunas= in ?formato=csv|xlsx.
func (h *TransactionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())
	q := r.URL.Query()

	filter, err := parseTableFilter(q)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	format, err := services.ParseExportFormat(q.Get("formato"))
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows := h.summaries.Filter(h.sessions.Get(userID).Rows, filter)
	var buf bytes.Buffer
	if err := h.exporter.ExportTable(&buf, rows, listParam(q, "colunas"), format); err != nil {
		if errors.Is(err, services.ErrInvalidColumns) {
			utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, map[string]any{"colunas": models.ConsolidatedColumns})
			return
		}
		ctxLogger.Error("Export failed", "error", err)
		utils.SendJSONError(w, "Failed to export transactions", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Transactions exported", "rows", len(rows), "format", format)
	writeDownload(w, "transacoes", format, buf.Bytes())
}

func writeDownload(w http.ResponseWriter, baseName string, format services.ExportFormat, data []byte) {
	contentType := "text/csv; charset=utf-8"
	if format == services.ExportXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	filename := fmt.Sprintf("%s_%s.%s", baseName, time.Now().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
