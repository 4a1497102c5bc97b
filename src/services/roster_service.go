package services

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/parsers"
	"github.com/username/conciliador/src/security/validation"
)

type rosterServiceImpl struct {
	db *sql.DB
}

// NewRosterService returns the roster service backed by db.
func NewRosterService(db *sql.DB) RosterService {
	return &rosterServiceImpl{db: db}
}

func (s *rosterServiceImpl) List() ([]models.RosterEntry, error) {
	return model.ListRoster(s.db)
}

// Import replaces the roster with the valid rows of a CSV file. Rows whose CNPJ
// fails the check digits are rejected and reported; the rest are stored.
func (s *rosterServiceImpl) Import(file io.Reader, updatedBy int64) (RosterImportResult, error) {
	entries, err := parsers.ParseRoster(file)
	if err != nil {
		return RosterImportResult{}, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	result := RosterImportResult{Rejected: []string{}}
	valid := make([]models.RosterEntry, 0, len(entries))
	for _, e := range entries {
		if err := validation.ValidateCNPJ(e.Cnpj); err != nil {
			result.Rejected = append(result.Rejected, e.Cnpj)
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return result, fmt.Errorf("%w: no valid roster rows", ErrInvalidRequest)
	}

	if err := model.ReplaceRoster(s.db, valid, updatedBy); err != nil {
		return result, fmt.Errorf("failed to store roster: %w", err)
	}
	result.Imported = len(valid)
	logger.L.Info("Roster replaced", "imported", result.Imported, "rejected", len(result.Rejected), "updatedBy", updatedBy)
	return result, nil
}
