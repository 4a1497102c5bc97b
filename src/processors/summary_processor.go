package processors

import (
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

const (
	colGrupo    = "grupo"
	colGMVSum   = "bruto_SUM"
	colRevSum   = "receita_SUM"
	colCount    = "bruto_COUNT"
	monthLayout = "2006-01"
)

type summaryProcessorImpl struct{}

func NewSummaryProcessor() SummaryProcessor {
	return &summaryProcessorImpl{}
}

// Filter keeps the rows matching every non-empty criterion.
func (p *summaryProcessorImpl) Filter(rows []models.ConsolidatedRow, filter models.TableFilter) []models.ConsolidatedRow {
	plataformas := toSet(filter.Plataformas)
	categorias := toSet(filter.Categorias)
	responsaveis := toSet(filter.Responsaveis)

	out := make([]models.ConsolidatedRow, 0, len(rows))
	for _, row := range rows {
		if len(plataformas) > 0 && !plataformas[row.Plataforma] {
			continue
		}
		if len(categorias) > 0 && !categorias[row.CategoriaPagamento] {
			continue
		}
		if len(responsaveis) > 0 && !responsaveis[row.ResponsavelComercial] {
			continue
		}
		if filter.From != nil && row.Venda.Before(*filter.From) {
			continue
		}
		if filter.To != nil && row.Venda.After(utils.EndOfDay(*filter.To)) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Summarize groups rows by one dimension into GMV, revenue and transaction
// count. Groups are ordered by GMV descending, except months which are
// chronological.
func (p *summaryProcessorImpl) Summarize(rows []models.ConsolidatedRow, dimension string) (models.Summary, error) {
	summary := models.Summary{Dimension: dimension, Rows: []models.SummaryRow{}}
	if !isDimension(dimension) {
		return summary, fmt.Errorf("unknown summary dimension '%s'", dimension)
	}
	if len(rows) == 0 {
		return summary, nil
	}

	groups := make([]string, len(rows))
	gross := make([]float64, len(rows))
	revenue := make([]float64, len(rows))
	for i, row := range rows {
		groups[i] = groupKey(row, dimension)
		gross[i] = row.Bruto
		revenue[i] = row.Receita
	}

	df := dataframe.New(
		series.New(groups, series.String, colGrupo),
		series.New(gross, series.Float, models.ColBruto),
		series.New(revenue, series.Float, models.ColReceita),
	)
	agg := df.GroupBy(colGrupo).Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_SUM, dataframe.Aggregation_SUM, dataframe.Aggregation_COUNT},
		[]string{models.ColBruto, models.ColReceita, models.ColBruto},
	)
	if agg.Err != nil {
		return summary, fmt.Errorf("failed to aggregate by %s: %w", dimension, agg.Err)
	}

	for _, m := range agg.Maps() {
		sr := models.SummaryRow{
			Grupo:      fmt.Sprint(m[colGrupo]),
			GMV:        utils.RoundFloat(asFloat(m[colGMVSum]), 2),
			Receita:    utils.RoundFloat(asFloat(m[colRevSum]), 2),
			Transacoes: int(asFloat(m[colCount])),
		}
		summary.Rows = append(summary.Rows, sr)
		summary.TotalGMV += sr.GMV
		summary.TotalReceita += sr.Receita
		summary.TotalTransacoes += sr.Transacoes
	}
	summary.TotalGMV = utils.RoundFloat(summary.TotalGMV, 2)
	summary.TotalReceita = utils.RoundFloat(summary.TotalReceita, 2)

	if dimension == models.DimensionMes {
		sort.Slice(summary.Rows, func(i, j int) bool { return summary.Rows[i].Grupo < summary.Rows[j].Grupo })
	} else {
		sort.SliceStable(summary.Rows, func(i, j int) bool {
			if summary.Rows[i].GMV != summary.Rows[j].GMV {
				return summary.Rows[i].GMV > summary.Rows[j].GMV
			}
			return summary.Rows[i].Grupo < summary.Rows[j].Grupo
		})
	}
	return summary, nil
}

func groupKey(row models.ConsolidatedRow, dimension string) string {
	switch dimension {
	case models.DimensionPlataforma:
		return row.Plataforma
	case models.DimensionCategoriaPagamento:
		return row.CategoriaPagamento
	case models.DimensionResponsavelComercial:
		return row.ResponsavelComercial
	case models.DimensionProduto:
		return row.Produto
	case models.DimensionBandeira:
		if row.Bandeira == "" {
			return models.DefaultEc
		}
		return row.Bandeira
	case models.DimensionMes:
		return row.Venda.Format(monthLayout)
	}
	return ""
}

func isDimension(d string) bool {
	for _, known := range models.SummaryDimensions {
		if d == known {
			return true
		}
	}
	return false
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return 0
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = true
		}
	}
	return set
}
