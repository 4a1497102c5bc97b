package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/conciliador/src/models"
)

// ListRoster returns the merchant roster ordered by cnpj.
func ListRoster(db *sql.DB) ([]models.RosterEntry, error) {
	rows, err := db.Query(`SELECT cnpj, responsavel_comercial, produto FROM merchant_roster ORDER BY cnpj`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.RosterEntry{}
	for rows.Next() {
		var e models.RosterEntry
		if err := rows.Scan(&e.Cnpj, &e.ResponsavelComercial, &e.Produto); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplaceRoster swaps the whole roster inside one transaction. A zero
// updatedBy stores no author.
func ReplaceRoster(db *sql.DB, entries []models.RosterEntry, updatedBy int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin roster transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM merchant_roster`); err != nil {
		return fmt.Errorf("failed to clear roster: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO merchant_roster (cnpj, responsavel_comercial, produto, updated_by, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(cnpj) DO UPDATE SET
	    responsavel_comercial = excluded.responsavel_comercial,
	    produto = excluded.produto,
	    updated_by = excluded.updated_by,
	    updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	author := sql.NullInt64{Int64: updatedBy, Valid: updatedBy > 0}
	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := stmt.Exec(e.Cnpj, e.ResponsavelComercial, e.Produto, author, now); err != nil {
			return fmt.Errorf("failed to insert roster entry %s: %w", e.Cnpj, err)
		}
	}
	return tx.Commit()
}
