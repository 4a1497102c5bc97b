package services

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/processors"
)

// auditRecordsKeys are the envelope keys accepted around an audit batch.
var auditRecordsKeys = []string{"registros", "data", "records"}

type auditServiceImpl struct {
	auditor   processors.Auditor
	maxRecord int
}

// NewAuditService wraps an auditor. maxRecords <= 0 means no limit.
func NewAuditService(auditor processors.Auditor, maxRecords int) AuditService {
	return &auditServiceImpl{auditor: auditor, maxRecord: maxRecords}
}

// Run decodes a JSON batch (a bare array or an envelope object) and audits it.
// Array items that are not objects are kept as empty records so they count as skipped.
func (s *auditServiceImpl) Run(file io.Reader, mode models.RoundingMode) (models.AuditReport, error) {
	dec := json.NewDecoder(file)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return models.AuditReport{}, fmt.Errorf("%w: invalid JSON: %v", ErrParsingFailed, err)
	}

	items, err := auditItems(payload)
	if err != nil {
		return models.AuditReport{}, err
	}
	if s.maxRecord > 0 && len(items) > s.maxRecord {
		return models.AuditReport{}, fmt.Errorf("%w: batch has %d records, limit is %d", ErrInvalidRequest, len(items), s.maxRecord)
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		records = append(records, models.RawRecord(obj))
	}
	return s.auditor.Audit(records, mode), nil
}

func auditItems(payload any) ([]any, error) {
	switch v := payload.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range auditRecordsKeys {
			if raw, ok := v[key]; ok {
				arr, ok := raw.([]any)
				if !ok {
					return nil, fmt.Errorf("%w: '%s' is not an array", ErrParsingFailed, key)
				}
				return arr, nil
			}
		}
		return nil, fmt.Errorf("%w: expected an array or an object with 'registros'", ErrParsingFailed)
	}
	return nil, fmt.Errorf("%w: expected an array or an object with 'registros'", ErrParsingFailed)
}
