// src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/username/conciliador/src/models"
)

// Define common service errors
var (
	ErrParsingFailed  = errors.New("file parsing failed")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidColumns = errors.New("invalid column selection")
)

// FetchRequest is the period asked of a REST source.
type FetchRequest struct {
	From time.Time
	To   time.Time
}

// SourceClient fetches every raw record of one external source for a period.
type SourceClient interface {
	Fetch(ctx context.Context, req FetchRequest) ([]models.RawRecord, error)
}

// LoadRequest selects the period and sources of a consolidated load.
type LoadRequest struct {
	From    time.Time
	To      time.Time
	Sources []models.SourceType
	// Refresh bypasses the fetch cache for the requested sources.
	Refresh bool
}

// SourceInfo describes a source for the status panel.
type SourceInfo struct {
	Source          models.SourceType    `json:"source"`
	Platform        string               `json:"plataforma"`
	Kind            string               `json:"tipo"`
	Configured      bool                 `json:"configurada"`
	RequiredColumns []string             `json:"colunas_obrigatorias,omitempty"`
	LastResult      *models.SourceResult `json:"ultimo_resultado,omitempty"`
}

// ConsolidationService owns the load -> normalize -> consolidate -> roster join pipeline.
type ConsolidationService interface {
	Load(ctx context.Context, state *models.Session, req LoadRequest) (*models.Session, error)
	Upload(ctx context.Context, state *models.Session, source models.SourceType, file io.Reader) (*models.Session, error)
	Sources(state *models.Session) []SourceInfo
}

// RosterProvider supplies the roster used by the join.
type RosterProvider interface {
	List() ([]models.RosterEntry, error)
}

// RosterImportResult reports what a roster upload stored.
type RosterImportResult struct {
	Imported int      `json:"importados"`
	Rejected []string `json:"rejeitados"`
}

// RosterService manages the merchant roster.
type RosterService interface {
	RosterProvider
	Import(file io.Reader, updatedBy int64) (RosterImportResult, error)
}

// AuditService decodes audit batches and runs the rounding auditor.
type AuditService interface {
	Run(file io.Reader, mode models.RoundingMode) (models.AuditReport, error)
}

// ExportFormat is a download format.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportService writes the consolidated or audit table with the on-screen column selection.
type ExportService interface {
	ExportTable(w io.Writer, rows []models.ConsolidatedRow, columns []string, format ExportFormat) error
	ExportAudit(w io.Writer, report models.AuditReport, columns []string, format ExportFormat) error
}
