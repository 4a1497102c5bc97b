// src/models/canonical.go
package models

import (
	"strconv"
	"time"
)

// RawRecord is one record as delivered by a source: CSV rows hold strings,
// JSON payloads hold json.Number, strings, bools and nested maps.
type RawRecord map[string]any

// Canonical column names, in display order.
const (
	ColCnpj                 = "cnpj"
	ColEc                   = "ec"
	ColVenda                = "venda"
	ColBruto                = "bruto"
	ColReceita              = "receita"
	ColPlataforma           = "plataforma"
	ColTipo                 = "tipo"
	ColBandeira             = "bandeira"
	ColCategoriaPagamento   = "categoria_pagamento"
	ColResponsavelComercial = "responsavel_comercial"
	ColProduto              = "produto"
)

// CanonicalColumns is the exact field set every normalized row carries.
var CanonicalColumns = []string{
	ColCnpj, ColEc, ColVenda, ColBruto, ColReceita, ColPlataforma, ColTipo, ColBandeira, ColCategoriaPagamento,
}

// ConsolidatedColumns adds the roster attribution columns.
var ConsolidatedColumns = append(append([]string{}, CanonicalColumns...), ColResponsavelComercial, ColProduto)

// Payment categories.
const (
	CategoriaPix     = "Pix"
	CategoriaCredito = "Crédito"
	CategoriaDebito  = "Débito"
	CategoriaBoleto  = "Boleto"
	CategoriaOutros  = "Outros"
)

const (
	// DefaultEc is used when a source has no merchant display name.
	DefaultEc = "N/A"
	// UnassignedOwner marks merchants missing from the roster.
	UnassignedOwner = "Não Atribuído"
)

// CanonicalTransaction is the unified row every source is normalized into.
type CanonicalTransaction struct {
	Cnpj               string    `json:"cnpj"`
	Bruto              float64   `json:"bruto"`   // Gross transacted amount
	Receita            float64   `json:"receita"` // Platform revenue, derived per source
	Venda              time.Time `json:"venda"`   // Transaction date
	Ec                 string    `json:"ec"`      // Merchant display name
	Plataforma         string    `json:"plataforma"`
	Tipo               string    `json:"tipo"`
	Bandeira           string    `json:"bandeira"`
	CategoriaPagamento string    `json:"categoria_pagamento"`
}

// ConsolidatedRow is a canonical row after the roster left join.
type ConsolidatedRow struct {
	CanonicalTransaction
	ResponsavelComercial string `json:"responsavel_comercial"`
	Produto              string `json:"produto"`
}

// CellValue returns the typed value of a consolidated column: float64 for money,
// time.Time for the date and string otherwise.
func (r ConsolidatedRow) CellValue(column string) (any, bool) {
	switch column {
	case ColCnpj:
		return r.Cnpj, true
	case ColEc:
		return r.Ec, true
	case ColVenda:
		return r.Venda, true
	case ColBruto:
		return r.Bruto, true
	case ColReceita:
		return r.Receita, true
	case ColPlataforma:
		return r.Plataforma, true
	case ColTipo:
		return r.Tipo, true
	case ColBandeira:
		return r.Bandeira, true
	case ColCategoriaPagamento:
		return r.CategoriaPagamento, true
	case ColResponsavelComercial:
		return r.ResponsavelComercial, true
	case ColProduto:
		return r.Produto, true
	}
	return nil, false
}

// CellString formats a column the way the dashboard shows it.
func (r ConsolidatedRow) CellString(column string) string {
	v, ok := r.CellValue(column)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	case time.Time:
		return val.Format("02/01/2006")
	case string:
		return val
	}
	return ""
}

// Drop reasons reported by the normalizer.
const (
	DropInvalidDate   = "data_invalida"
	DropInvalidCnpj   = "cnpj_invalido"
	DropNegativeGross = "bruto_negativo"
	DropRecordError   = "erro_registro"
)

// NormalizeReport tells the caller what the normalizer did with a batch.
type NormalizeReport struct {
	Source    SourceType     `json:"source"`
	Input     int            `json:"input"`
	Output    int            `json:"output"`
	Dropped   map[string]int `json:"dropped"`   // reason -> rows
	Defaulted map[string]int `json:"defaulted"` // canonical field -> rows that fell back to a default
}

// NewNormalizeReport returns an empty report with initialized maps.
func NewNormalizeReport(source SourceType, input int) NormalizeReport {
	return NormalizeReport{
		Source:    source,
		Input:     input,
		Dropped:   map[string]int{},
		Defaulted: map[string]int{},
	}
}

// TotalDropped sums the dropped counters.
func (r NormalizeReport) TotalDropped() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}
