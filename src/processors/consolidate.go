package processors

import "github.com/username/conciliador/src/models"

// Consolidate unions the rows of every source that loaded. Failed sources
// contribute nothing; the result is never nil.
func Consolidate(results []models.SourceResult) []models.CanonicalTransaction {
	total := 0
	for _, r := range results {
		if !r.Failed() {
			total += len(r.Rows)
		}
	}
	rows := make([]models.CanonicalTransaction, 0, total)
	for _, r := range results {
		if r.Failed() {
			continue
		}
		rows = append(rows, r.Rows...)
	}
	return rows
}
