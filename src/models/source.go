package models

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies where a batch of transactions came from.
type SourceType string

const (
	SourceCSVUpload     SourceType = "csv_upload"
	SourceSpreadsheet   SourceType = "spreadsheet"
	SourceMerchantAPI   SourceType = "merchant_api"
	SourceAccountingAPI SourceType = "accounting_api"
	SourceLegacyPOS     SourceType = "legacy_pos"
)

// AllSourceTypes lists every supported source in display order.
var AllSourceTypes = []SourceType{
	SourceCSVUpload, SourceSpreadsheet, SourceMerchantAPI, SourceAccountingAPI, SourceLegacyPOS,
}

// ParseSourceType validates a source tag coming from a request.
func ParseSourceType(s string) (SourceType, error) {
	candidate := SourceType(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllSourceTypes {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source type '%s'", s)
}

// IsUpload reports whether the source arrives as a user uploaded file.
func (s SourceType) IsUpload() bool {
	return s == SourceCSVUpload || s == SourceSpreadsheet
}

// Error kinds surfaced to the dashboard per source.
const (
	ErrorKindAuth          = "auth"
	ErrorKindConnectivity  = "connectivity"
	ErrorKindMalformed     = "malformed"
	ErrorKindMapping       = "mapping"
	ErrorKindNotConfigured = "not_configured"
	ErrorKindUnknown       = "unknown"
)

// Source statuses.
const (
	SourceStatusOK     = "ok"
	SourceStatusEmpty  = "sem_dados"
	SourceStatusFailed = "erro"
)

// SourceResult is what one source contributed to a consolidated load.
type SourceResult struct {
	Source           SourceType             `json:"source"`
	Platform         string                 `json:"plataforma"`
	Status           string                 `json:"status"`
	Rows             []CanonicalTransaction `json:"-"`
	RowCount         int                    `json:"row_count"`
	Report           NormalizeReport        `json:"report"`
	ErrorKind        string                 `json:"error_kind,omitempty"`
	Error            string                 `json:"error,omitempty"`
	MissingColumns   []string               `json:"missing_columns,omitempty"`
	AvailableColumns []string               `json:"available_columns,omitempty"`
	FetchedAt        time.Time              `json:"fetched_at"`
	FromCache        bool                   `json:"from_cache"`
}

// Failed reports whether the source errored and therefore contributes no rows.
func (r SourceResult) Failed() bool {
	return r.ErrorKind != ""
}
