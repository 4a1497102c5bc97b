package processors

import (
	"sort"

	"github.com/username/conciliador/src/models"
)

// RevenueRule says how a source's revenue is derived from its fields.
type RevenueRule string

const (
	RevenueGrossMinusNet  RevenueRule = "gross_minus_net"  // bruto - RevenueField
	RevenueGrossTimesRate RevenueRule = "gross_times_rate" // bruto * RevenueField / 100
	RevenueFixedRate      RevenueRule = "fixed_rate"       // bruto * RevenueRate / 100
	RevenueDirectField    RevenueRule = "direct_field"     // RevenueField as reported by the platform
)

// SourceMapping declares how one source's raw fields feed the canonical row.
// Nested JSON fields use dotted paths ("merchant.document").
type SourceMapping struct {
	Source        models.SourceType
	Platform      string
	CnpjField     string
	GrossField    string
	DateField     string
	EcField       string
	TipoField     string
	BandeiraField string
	// PaymentFields are tried in order; the first non-empty value is categorized.
	PaymentFields []string
	Revenue       RevenueRule
	RevenueField  string
	RevenueRate   float64
	// RecordsKey is the JSON key holding the record list in API responses.
	RecordsKey string
	// Placeholder sources have no usable implementation and always yield no rows.
	Placeholder bool
}

// RequiredColumns are the fields that must exist in at least one record of a batch.
func (m SourceMapping) RequiredColumns() []string {
	cols := []string{m.CnpjField, m.GrossField, m.DateField}
	if m.Revenue != RevenueFixedRate && m.RevenueField != "" {
		cols = append(cols, m.RevenueField)
	}
	return cols
}

var sourceMappings = map[models.SourceType]SourceMapping{
	models.SourceCSVUpload: {
		Source:        models.SourceCSVUpload,
		Platform:      "Maquininha",
		CnpjField:     "CNPJ",
		GrossField:    "Valor Bruto",
		DateField:     "Data da Venda",
		EcField:       "Estabelecimento",
		TipoField:     "Tipo de Transação",
		BandeiraField: "Bandeira",
		PaymentFields: []string{"Forma de Pagamento", "Tipo de Transação"},
		Revenue:       RevenueGrossMinusNet,
		RevenueField:  "Valor Líquido",
	},
	models.SourceSpreadsheet: {
		Source:        models.SourceSpreadsheet,
		Platform:      "Planilha",
		CnpjField:     "CNPJ",
		GrossField:    "Valor Bruto",
		DateField:     "Data",
		EcField:       "EC",
		TipoField:     "_aba",
		BandeiraField: "Bandeira",
		PaymentFields: []string{"Meio de Pagamento", "_aba"},
		Revenue:       RevenueDirectField,
		RevenueField:  "Receita",
	},
	models.SourceMerchantAPI: {
		Source:        models.SourceMerchantAPI,
		Platform:      "Gateway",
		CnpjField:     "merchant.document",
		GrossField:    "amount",
		DateField:     "created_at",
		EcField:       "merchant.trade_name",
		TipoField:     "type",
		BandeiraField: "card.brand",
		PaymentFields: []string{"payment_method"},
		Revenue:       RevenueGrossTimesRate,
		RevenueField:  "mdr_percent",
		RecordsKey:    "data",
	},
	models.SourceAccountingAPI: {
		Source:        models.SourceAccountingAPI,
		Platform:      "ERP",
		CnpjField:     "cliente.cnpj",
		GrossField:    "valor_total",
		DateField:     "data_emissao",
		EcField:       "cliente.razao_social",
		TipoField:     "tipo_documento",
		PaymentFields: []string{"forma_pagamento"},
		Revenue:       RevenueFixedRate,
		RevenueRate:   2.5,
		RecordsKey:    "registros",
	},
	models.SourceLegacyPOS: {
		Source:      models.SourceLegacyPOS,
		Platform:    "POS Legado",
		Placeholder: true,
	},
}

// MappingFor returns the declared mapping of a source.
func MappingFor(source models.SourceType) (SourceMapping, bool) {
	m, ok := sourceMappings[source]
	return m, ok
}

// Mappings returns every declared mapping in source display order.
func Mappings() []SourceMapping {
	out := make([]SourceMapping, 0, len(sourceMappings))
	for _, st := range models.AllSourceTypes {
		if m, ok := sourceMappings[st]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Platforms lists the known platform names.
func Platforms() []string {
	names := make([]string, 0, len(sourceMappings))
	for _, m := range sourceMappings {
		names = append(names, m.Platform)
	}
	sort.Strings(names)
	return names
}
