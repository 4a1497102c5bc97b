package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/conciliador/src/logger"
)

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SendJSONError writes {"error": message} with the given status code.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	SendJSONErrorWithDetails(w, message, statusCode, nil)
}

// SendJSONErrorWithDetails adds a "details" object next to the error message.
func SendJSONErrorWithDetails(w http.ResponseWriter, message string, statusCode int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	body := map[string]any{"error": message}
	if details != nil {
		body["details"] = details
	}
	json.NewEncoder(w).Encode(body)
}

// SendJSON writes data as a JSON response.
func SendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error encoding JSON response", "error", err)
	}
}
