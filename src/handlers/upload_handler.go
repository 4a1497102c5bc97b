// src/handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/processors"
	"github.com/username/conciliador/src/security/validation"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

type UploadHandler struct {
	consolidation services.ConsolidationService
	sessions      *services.SessionStore
	maxBytes      int64
}

func NewUploadHandler(consolidation services.ConsolidationService, sessions *services.SessionStore, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		consolidation: consolidation,
		sessions:      sessions,
		maxBytes:      maxBytes,
	}
}

// parseUploadForm reads the multipart form under the upload size limit.
func parseUploadForm(w http.ResponseWriter, r *http.Request, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		logger.FromContext(r.Context()).Warn("Failed to parse multipart form or request too large", "error", err, "limit", maxBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to read the upload or the file is too large (max %d MB)", maxBytes/(1024*1024)), http.StatusBadRequest)
		return false
	}
	return true
}

// readUpload returns the "file" part of a parsed form after checking its size,
// declared type and content.
func readUpload(w http.ResponseWriter, r *http.Request, source models.SourceType, maxBytes int64) (multipart.File, *multipart.FileHeader, bool) {
	ctxLogger := logger.FromContext(r.Context())
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return nil, nil, false
	}
	if fileHeader.Size > maxBytes {
		file.Close()
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", maxBytes/(1024*1024)), http.StatusBadRequest)
		return nil, nil, false
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(source, clientContentType); err != nil {
		file.Close()
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file, source)
	if err != nil {
		file.Close()
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	ctxLogger.Info("File content validated", "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)
	return file, fileHeader, true
}

// HandleUpload accepts a file for the csv_upload or spreadsheet source and
// reloads the session table with it.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, _ := GetUserIDFromContext(r.Context())

	if !parseUploadForm(w, r, h.maxBytes) {
		return
	}
	sourceTag := r.URL.Query().Get("source")
	if sourceTag == "" {
		sourceTag = r.FormValue("source")
	}
	source, err := models.ParseSourceType(sourceTag)
	if err != nil || !source.IsUpload() {
		utils.SendJSONError(w, "source must be csv_upload or spreadsheet", http.StatusBadRequest)
		return
	}

	file, fileHeader, ok := readUpload(w, r, source, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	next, err := h.sessions.Update(userID, func(current *models.Session) (*models.Session, error) {
		return h.consolidation.Upload(r.Context(), current, source, file)
	})
	if err != nil {
		var schemaErr *processors.SchemaError
		switch {
		case errors.As(err, &schemaErr):
			utils.SendJSONErrorWithDetails(w, "The file is missing required columns", http.StatusUnprocessableEntity, map[string]any{
				"error_kind":        models.ErrorKindMapping,
				"missing_columns":   schemaErr.Missing,
				"available_columns": schemaErr.Available,
			})
		case errors.Is(err, services.ErrParsingFailed):
			utils.SendJSONErrorWithDetails(w, err.Error(), http.StatusBadRequest, map[string]any{"error_kind": models.ErrorKindMalformed})
		case errors.Is(err, services.ErrInvalidRequest):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			ctxLogger.Error("Upload processing failed", "source", source, "error", err)
			utils.SendJSONError(w, "Failed to process upload", http.StatusInternalServerError)
		}
		return
	}

	upload := next.Uploads[source]
	ctxLogger.Info("Upload processed", "source", source, "filename", fileHeader.Filename, "rows", upload.RowCount, "dropped", upload.Report.TotalDropped())
	utils.SendJSON(w, http.StatusOK, map[string]any{
		"upload":       upload,
		"sessao":       next,
		"total_linhas": len(next.Rows),
	})
}
