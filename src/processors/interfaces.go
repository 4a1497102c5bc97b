package processors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/username/conciliador/src/models"
)

// ErrFieldMapping is wrapped by every schema mismatch between a source and its mapping.
var ErrFieldMapping = errors.New("field mapping failed")

// SchemaError lists the mapped columns a batch does not carry at all.
type SchemaError struct {
	Source    models.SourceType
	Missing   []string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("source %s: missing columns [%s] (available: [%s])",
		e.Source, strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrFieldMapping
}

// Normalizer converts raw source records into canonical transactions.
type Normalizer interface {
	Normalize(source models.SourceType, batch []models.RawRecord) ([]models.CanonicalTransaction, models.NormalizeReport, error)
}

// RosterProcessor attributes canonical rows to account owners.
type RosterProcessor interface {
	Join(rows []models.CanonicalTransaction, roster []models.RosterEntry) []models.ConsolidatedRow
}

// SummaryProcessor filters and aggregates the consolidated table.
type SummaryProcessor interface {
	Filter(rows []models.ConsolidatedRow, filter models.TableFilter) []models.ConsolidatedRow
	Summarize(rows []models.ConsolidatedRow, dimension string) (models.Summary, error)
}

// Auditor recomputes recorded totals and discounts under banker's rounding.
type Auditor interface {
	Audit(records []models.RawRecord, mode models.RoundingMode) models.AuditReport
}
