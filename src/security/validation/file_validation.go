// src/security/validation/file_validation.go
package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// xlsx files are zip containers.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// allowedClientContentTypes lists the client-declared MIME types per upload source.
var allowedClientContentTypes = map[models.SourceType]map[string]bool{
	models.SourceCSVUpload: {
		"text/csv":                 true,
		"application/csv":          true,
		"application/vnd.ms-excel": true, // Excel on Windows labels CSVs this way
		"text/plain":               true,
	},
	models.SourceSpreadsheet: {
		xlsxContentType:            true,
		"application/zip":          true,
		"application/octet-stream": true,
	},
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(source models.SourceType, contentType string) error {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !allowedClientContentTypes[source][mediaType] {
		logger.L.Warn("Disallowed client-declared Content-Type", "source", source, "contentType", contentType)
		return fmt.Errorf("%w: file type '%s' is not allowed for %s uploads", ErrValidationFailed, contentType, source)
	}
	return nil
}

// ValidateFileContentByMagicBytes inspects the first KB of an upload and
// rewinds it for the parser. CSVs must be text (any single byte encoding);
// spreadsheets must be zip containers.
func ValidateFileContentByMagicBytes(file io.ReadSeeker, source models.SourceType) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 1024)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}
	head := buffer[:n]

	switch source {
	case models.SourceSpreadsheet:
		if !bytes.HasPrefix(head, zipMagic) {
			logger.L.Warn("File rejected: spreadsheet upload is not a zip container")
			return "", fmt.Errorf("%w: file is not an .xlsx workbook", ErrValidationFailed)
		}
		return xlsxContentType, nil
	case models.SourceCSVUpload:
		if bytes.IndexByte(head, 0) != -1 {
			logger.L.Warn("File rejected: binary content detected in text upload")
			return "application/octet-stream", fmt.Errorf("%w: file appears to be binary, not text/CSV", ErrValidationFailed)
		}
		detected := strings.ToLower(strings.Split(http.DetectContentType(head), ";")[0])
		switch detected {
		case "text/plain", "text/csv", "application/csv":
			logger.L.Debug("File content type validated", "detectedContentType", detected)
			return detected, nil
		}
		logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected)
		return detected, fmt.Errorf("%w: detected file content type '%s' is not allowed", ErrValidationFailed, detected)
	}
	return "", fmt.Errorf("%w: source %s does not accept uploads", ErrValidationFailed, source)
}
