// src/parsers/roster.go
package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/parsers/csvupload"
	"github.com/username/conciliador/src/security/validation"
	"github.com/username/conciliador/src/utils"
)

var rosterColumnAliases = map[string][]string{
	models.ColCnpj:                 {"cnpj", "documento"},
	models.ColResponsavelComercial: {"responsavel_comercial", "responsavel comercial", "responsavel", "executivo"},
	models.ColProduto:              {"produto", "product"},
}

// ParseRoster reads a roster CSV (cnpj;responsavel_comercial;produto). Rows
// without a cnpj or carrying script content are skipped; a later row for the
// same cnpj wins.
func ParseRoster(file io.Reader) ([]models.RosterEntry, error) {
	header, rows, err := csvupload.ReadTable(file)
	if err != nil {
		return nil, fmt.Errorf("roster parser: %w", err)
	}

	index := map[string]int{}
	for canonical, aliases := range rosterColumnAliases {
		for i, col := range header {
			if containsFolded(aliases, col) {
				index[canonical] = i
				break
			}
		}
	}
	if _, ok := index[models.ColCnpj]; !ok {
		return nil, fmt.Errorf("roster parser: no cnpj column in header [%v]", header)
	}

	raw := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	cell := func(row []string, col string) string {
		return validation.SanitizeText(raw(row, col))
	}

	order := []string{}
	byCnpj := map[string]models.RosterEntry{}
	for _, row := range rows {
		cnpj := utils.NormalizeCNPJ(cell(row, models.ColCnpj))
		if cnpj == "" {
			continue
		}
		if validation.CheckXSSPatterns(raw(row, models.ColResponsavelComercial), models.ColResponsavelComercial, cnpj) != nil ||
			validation.CheckXSSPatterns(raw(row, models.ColProduto), models.ColProduto, cnpj) != nil {
			continue
		}
		if _, seen := byCnpj[cnpj]; !seen {
			order = append(order, cnpj)
		}
		byCnpj[cnpj] = models.RosterEntry{
			Cnpj:                 cnpj,
			ResponsavelComercial: cell(row, models.ColResponsavelComercial),
			Produto:              cell(row, models.ColProduto),
		}
	}

	entries := make([]models.RosterEntry, 0, len(order))
	for _, cnpj := range order {
		entries = append(entries, byCnpj[cnpj])
	}
	return entries, nil
}

func containsFolded(aliases []string, col string) bool {
	folded := utils.FoldText(col)
	for _, a := range aliases {
		if folded == a {
			return true
		}
	}
	return false
}
