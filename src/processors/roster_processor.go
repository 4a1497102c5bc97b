package processors

import (
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

type rosterProcessorImpl struct{}

func NewRosterProcessor() RosterProcessor {
	return &rosterProcessorImpl{}
}

// Join left-joins rows against the roster on cnpj. Merchants missing from the
// roster are "Não Atribuído" and their product falls back to the platform.
func (p *rosterProcessorImpl) Join(rows []models.CanonicalTransaction, roster []models.RosterEntry) []models.ConsolidatedRow {
	byCnpj := make(map[string]models.RosterEntry, len(roster))
	for _, entry := range roster {
		if key := utils.NormalizeCNPJ(entry.Cnpj); key != "" {
			byCnpj[key] = entry
		}
	}

	out := make([]models.ConsolidatedRow, 0, len(rows))
	for _, tx := range rows {
		row := models.ConsolidatedRow{
			CanonicalTransaction: tx,
			ResponsavelComercial: models.UnassignedOwner,
			Produto:              tx.Plataforma,
		}
		if entry, ok := byCnpj[tx.Cnpj]; ok {
			if entry.ResponsavelComercial != "" {
				row.ResponsavelComercial = entry.ResponsavelComercial
			}
			if entry.Produto != "" {
				row.Produto = entry.Produto
			}
		}
		out = append(out, row)
	}
	return out
}
