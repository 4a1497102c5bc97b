package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode is the alternative rule compared against banker's rounding.
type RoundingMode string

const (
	RoundingHalfUp  RoundingMode = "half_up"
	RoundingDown    RoundingMode = "down"
	RoundingCeiling RoundingMode = "ceiling"
)

// AllRoundingModes lists the comparison rules offered to the user.
var AllRoundingModes = []RoundingMode{RoundingHalfUp, RoundingDown, RoundingCeiling}

// ParseRoundingMode accepts a mode tag, defaulting to half_up when empty.
func ParseRoundingMode(s string) (RoundingMode, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return RoundingHalfUp, nil
	}
	for _, m := range AllRoundingModes {
		if string(m) == trimmed {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown rounding mode '%s'", s)
}

// AuditInput holds the raw values of one record, already extracted as exact decimals.
type AuditInput struct {
	ID                 string
	Quantidade         decimal.Decimal
	ValorUnitario      decimal.Decimal
	TaxaAdministrativa decimal.Decimal
	ValorTotal         decimal.Decimal // recorded by the system of record
	Desconto           decimal.Decimal // recorded by the system of record
}

// AuditRecord is one audited record with its normative recomputation and gaps.
type AuditRecord struct {
	AuditInput
	NormativeTotal    decimal.Decimal
	GapTotal          decimal.Decimal
	NormativeDiscount decimal.Decimal
	GapDiscount       decimal.Decimal
	SimulatedDiscount decimal.Decimal
	GapSimulated      decimal.Decimal
	Divergent         bool
}

// AuditRecordView is the float presentation of an AuditRecord.
type AuditRecordView struct {
	ID                 string  `json:"id"`
	Quantidade         float64 `json:"quantidade"`
	ValorUnitario      float64 `json:"valor_unitario"`
	TaxaAdministrativa float64 `json:"taxa_administrativa"`
	ValorTotal         float64 `json:"valor_total"`
	Desconto           float64 `json:"desconto"`
	NormativeTotal     float64 `json:"total_normativo"`
	GapTotal           float64 `json:"gap_total"`
	NormativeDiscount  float64 `json:"desconto_normativo"`
	GapDiscount        float64 `json:"gap_desconto"`
	SimulatedDiscount  float64 `json:"desconto_simulado"`
	GapSimulated       float64 `json:"gap_simulado"`
	Divergent          bool    `json:"divergente"`
}

// Display converts the record for presentation. This is the only place audit
// values leave decimal arithmetic.
func (r AuditRecord) Display() AuditRecordView {
	return AuditRecordView{
		ID:                 r.ID,
		Quantidade:         r.Quantidade.InexactFloat64(),
		ValorUnitario:      r.ValorUnitario.InexactFloat64(),
		TaxaAdministrativa: r.TaxaAdministrativa.InexactFloat64(),
		ValorTotal:         r.ValorTotal.InexactFloat64(),
		Desconto:           r.Desconto.InexactFloat64(),
		NormativeTotal:     r.NormativeTotal.InexactFloat64(),
		GapTotal:           r.GapTotal.InexactFloat64(),
		NormativeDiscount:  r.NormativeDiscount.InexactFloat64(),
		GapDiscount:        r.GapDiscount.InexactFloat64(),
		SimulatedDiscount:  r.SimulatedDiscount.InexactFloat64(),
		GapSimulated:       r.GapSimulated.InexactFloat64(),
		Divergent:          r.Divergent,
	}
}

// AuditSummary aggregates the gaps of the surviving records.
type AuditSummary struct {
	Mode            RoundingMode
	Audited         int
	Skipped         int
	Divergent       int
	Tolerance       decimal.Decimal
	SumGapDiscount  decimal.Decimal
	SumGapTotal     decimal.Decimal
	SumGapSimulated decimal.Decimal
}

// AuditSummaryView is the float presentation of an AuditSummary.
type AuditSummaryView struct {
	Mode            RoundingMode `json:"modo"`
	Audited         int          `json:"auditados"`
	Skipped         int          `json:"ignorados"`
	Divergent       int          `json:"divergentes"`
	Tolerance       float64      `json:"tolerancia"`
	SumGapDiscount  float64      `json:"soma_gap_desconto"`
	SumGapTotal     float64      `json:"soma_gap_total"`
	SumGapSimulated float64      `json:"soma_gap_simulado"`
}

func (s AuditSummary) Display() AuditSummaryView {
	return AuditSummaryView{
		Mode:            s.Mode,
		Audited:         s.Audited,
		Skipped:         s.Skipped,
		Divergent:       s.Divergent,
		Tolerance:       s.Tolerance.InexactFloat64(),
		SumGapDiscount:  s.SumGapDiscount.InexactFloat64(),
		SumGapTotal:     s.SumGapTotal.InexactFloat64(),
		SumGapSimulated: s.SumGapSimulated.InexactFloat64(),
	}
}

// AuditReport is the full result of one audit run.
type AuditReport struct {
	Records []AuditRecord
	Summary AuditSummary
}

// AuditReportView is what the audit endpoint returns.
type AuditReportView struct {
	Records []AuditRecordView `json:"registros"`
	Summary AuditSummaryView  `json:"resumo"`
}

func (r AuditReport) Display() AuditReportView {
	views := make([]AuditRecordView, 0, len(r.Records))
	for _, rec := range r.Records {
		views = append(views, rec.Display())
	}
	return AuditReportView{Records: views, Summary: r.Summary.Display()}
}

// AuditColumns is the column order of the audit table and its exports.
var AuditColumns = []string{
	"id", "quantidade", "valor_unitario", "taxa_administrativa", "valor_total", "desconto",
	"total_normativo", "gap_total", "desconto_normativo", "gap_desconto", "desconto_simulado", "gap_simulado", "divergente",
}

// AuditCell returns the exact string form of an audit column.
func (r AuditRecord) AuditCell(column string) string {
	switch column {
	case "id":
		return r.ID
	case "quantidade":
		return r.Quantidade.String()
	case "valor_unitario":
		return r.ValorUnitario.String()
	case "taxa_administrativa":
		return r.TaxaAdministrativa.String()
	case "valor_total":
		return r.ValorTotal.StringFixed(2)
	case "desconto":
		return r.Desconto.StringFixed(2)
	case "total_normativo":
		return r.NormativeTotal.StringFixed(2)
	case "gap_total":
		return r.GapTotal.StringFixed(2)
	case "desconto_normativo":
		return r.NormativeDiscount.StringFixed(2)
	case "gap_desconto":
		return r.GapDiscount.StringFixed(2)
	case "desconto_simulado":
		return r.SimulatedDiscount.StringFixed(2)
	case "gap_simulado":
		return r.GapSimulated.StringFixed(2)
	case "divergente":
		if r.Divergent {
			return "sim"
		}
		return "nao"
	}
	return ""
}
