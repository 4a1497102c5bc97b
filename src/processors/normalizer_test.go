package processors

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/models"
)

func csvRecord(cnpj, bruto, liquido, data string) models.RawRecord {
	return models.RawRecord{
		"CNPJ":               cnpj,
		"Valor Bruto":        bruto,
		"Valor Líquido":      liquido,
		"Data da Venda":      data,
		"Estabelecimento":    "Padaria Central",
		"Tipo de Transação":  "Venda",
		"Bandeira":           "Visa",
		"Forma de Pagamento": "Cartão de Crédito",
	}
}

func TestNormalize_CSVUpload(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{
		csvRecord("12.345.678/0001-90", "1.234,56", "1.200,00", "05/03/2024"),
	}

	rows, report, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "12345678000190", row.Cnpj)
	assert.Equal(t, 1234.56, row.Bruto)
	assert.Equal(t, 34.56, row.Receita)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), row.Venda)
	assert.Equal(t, "Padaria Central", row.Ec)
	assert.Equal(t, "Maquininha", row.Plataforma)
	assert.Equal(t, "Venda", row.Tipo)
	assert.Equal(t, "Visa", row.Bandeira)
	assert.Equal(t, models.CategoriaCredito, row.CategoriaPagamento)

	assert.Equal(t, 1, report.Input)
	assert.Equal(t, 1, report.Output)
	assert.Zero(t, report.TotalDropped())
}

func TestNormalize_DropRules(t *testing.T) {
	n := NewNormalizer()
	noCnpj := csvRecord("", "100", "98", "01/01/2024")
	noCnpj["CNPJ"] = nil
	batch := []models.RawRecord{
		noCnpj,
		csvRecord("11222333000181", "100", "98", "not a date"),
		csvRecord("11222333000181", "-5", "0", "01/01/2024"),
		csvRecord("11222333000181", "100", "98", "01/01/2024"),
	}

	rows, report, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "11222333000181", rows[0].Cnpj)
	assert.Equal(t, 1, report.Dropped[models.DropInvalidCnpj])
	assert.Equal(t, 1, report.Dropped[models.DropInvalidDate])
	assert.Equal(t, 1, report.Dropped[models.DropNegativeGross])
	assert.Equal(t, 4, report.Input)
	assert.Equal(t, 1, report.Output)
}

func TestNormalize_NonNumericGrossIsZero(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{csvRecord("11222333000181", "abc", "abc", "01/01/2024")}

	rows, report, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Bruto)
	assert.Zero(t, rows[0].Receita)
	assert.Equal(t, 1, report.Defaulted[models.ColBruto])
	assert.Equal(t, 1, report.Defaulted[models.ColReceita])
}

func TestNormalize_MissingEcDefaults(t *testing.T) {
	n := NewNormalizer()
	rec := csvRecord("11222333000181", "10", "9", "01/01/2024")
	delete(rec, "Estabelecimento")

	rows, report, err := n.Normalize(models.SourceCSVUpload, []models.RawRecord{rec})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DefaultEc, rows[0].Ec)
	assert.Equal(t, 1, report.Defaulted[models.ColEc])
}

func TestNormalize_HeaderLookupIgnoresCaseAndAccents(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{{
		"cnpj":          "11222333000181",
		"VALOR BRUTO":   "50,00",
		"valor liquido": "49,00",
		"data da venda": "02/02/2024 10:15",
	}}

	rows, _, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 50.0, rows[0].Bruto)
	assert.Equal(t, 1.0, rows[0].Receita)
	assert.Equal(t, models.CategoriaOutros, rows[0].CategoriaPagamento)
}

func TestNormalize_SchemaError(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{{"CNPJ": "11222333000181", "Amount": "10"}}

	rows, _, err := n.Normalize(models.SourceCSVUpload, batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFieldMapping))
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, models.SourceCSVUpload, schemaErr.Source)
	assert.ElementsMatch(t, []string{"Valor Bruto", "Data da Venda", "Valor Líquido"}, schemaErr.Missing)
	assert.Equal(t, []string{"Amount", "CNPJ"}, schemaErr.Available)
}

func TestNormalize_MerchantAPINested(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{{
		"id":             "tx-1",
		"amount":         json.Number("200.00"),
		"mdr_percent":    json.Number("2.5"),
		"created_at":     "2024-04-10T14:00:00Z",
		"type":           "sale",
		"payment_method": "PIX",
		"merchant": map[string]any{
			"document":   "11.222.333/0001-81",
			"trade_name": "Loja Azul",
		},
		"card": map[string]any{"brand": nil},
	}}

	rows, _, err := n.Normalize(models.SourceMerchantAPI, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "11222333000181", rows[0].Cnpj)
	assert.Equal(t, 200.0, rows[0].Bruto)
	assert.Equal(t, 5.0, rows[0].Receita)
	assert.Equal(t, "Loja Azul", rows[0].Ec)
	assert.Equal(t, "Gateway", rows[0].Plataforma)
	assert.Equal(t, "", rows[0].Bandeira)
	assert.Equal(t, models.CategoriaPix, rows[0].CategoriaPagamento)
}

func TestNormalize_AmountsRoundHalfAwayFromZeroExactly(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{
		csvRecord("11222333000181", "1,005", "0,9", "05/03/2024"),
		csvRecord("11222333000181", "2.675", "2.67", "05/03/2024"),
	}

	rows, _, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.01, rows[0].Bruto)
	assert.Equal(t, 0.11, rows[0].Receita)
	assert.Equal(t, 2.68, rows[1].Bruto)
	assert.Equal(t, 0.01, rows[1].Receita)

	merchant := []models.RawRecord{{
		"amount":      json.Number("100.5"),
		"mdr_percent": json.Number("1"),
		"created_at":  "2024-04-10",
		"merchant":    map[string]any{"document": "11222333000181"},
	}}
	rows, _, err = n.Normalize(models.SourceMerchantAPI, merchant)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.01, rows[0].Receita)
}

func TestNormalize_AccountingAPIFixedRate(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{{
		"valor_total":     json.Number("1000"),
		"data_emissao":    "15/01/2024",
		"tipo_documento":  "NF-e",
		"forma_pagamento": "Boleto Bancário",
		"cliente":         map[string]any{"cnpj": "11222333000181", "razao_social": "ACME LTDA"},
	}}

	rows, _, err := n.Normalize(models.SourceAccountingAPI, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25.0, rows[0].Receita)
	assert.Equal(t, "ERP", rows[0].Plataforma)
	assert.Equal(t, models.CategoriaBoleto, rows[0].CategoriaPagamento)
}

func TestNormalize_SpreadsheetSerialDateAndSheetTag(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{{
		"CNPJ":        "1222333000181", // leading zero lost in a numeric cell
		"Valor Bruto": "300.5",
		"Receita":     "6",
		"Data":        "45292",
		"EC":          "Mercado",
		"_aba":        "Vendas Pix",
	}}

	rows, _, err := n.Normalize(models.SourceSpreadsheet, batch)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "01222333000181", rows[0].Cnpj)
	assert.Equal(t, "2024-01-01", rows[0].Venda.Format("2006-01-02"))
	assert.Equal(t, "Vendas Pix", rows[0].Tipo)
	assert.Equal(t, models.CategoriaPix, rows[0].CategoriaPagamento)
	assert.Equal(t, 6.0, rows[0].Receita)
}

func TestNormalize_PlaceholderSource(t *testing.T) {
	n := NewNormalizer()
	rows, report, err := n.Normalize(models.SourceLegacyPOS, []models.RawRecord{{"anything": 1}})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.Zero(t, report.Input)
	assert.Zero(t, report.Output)
}

func TestNormalize_UnknownSource(t *testing.T) {
	n := NewNormalizer()
	_, _, err := n.Normalize(models.SourceType("fax"), nil)
	assert.ErrorIs(t, err, ErrFieldMapping)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewNormalizer()
	batch := []models.RawRecord{
		csvRecord("11222333000181", "100", "97,5", "01/01/2024"),
		csvRecord("44555666000199", "R$ 2.000,00", "1.950,00", "31/12/2023"),
		csvRecord("", "1", "1", "01/01/2024"),
	}

	first, firstReport, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	second, secondReport, err := n.Normalize(models.SourceCSVUpload, batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstReport, secondReport)
}

func TestNormalize_UniformSchemaAcrossSources(t *testing.T) {
	n := NewNormalizer()
	batches := map[models.SourceType][]models.RawRecord{
		models.SourceCSVUpload: {csvRecord("11222333000181", "10", "9", "01/01/2024")},
		models.SourceSpreadsheet: {{
			"CNPJ": "11222333000181", "Valor Bruto": "10", "Receita": "1", "Data": "01/01/2024", "_aba": "Boletos",
		}},
		models.SourceMerchantAPI: {{
			"amount": json.Number("10"), "mdr_percent": json.Number("1"), "created_at": "2024-01-01",
			"merchant": map[string]any{"document": "11222333000181"},
		}},
		models.SourceAccountingAPI: {{
			"valor_total": json.Number("10"), "data_emissao": "01/01/2024",
			"cliente": map[string]any{"cnpj": "11222333000181"},
		}},
	}

	known := map[string]bool{}
	for _, c := range []string{models.CategoriaPix, models.CategoriaCredito, models.CategoriaDebito, models.CategoriaBoleto, models.CategoriaOutros} {
		known[c] = true
	}
	for source, batch := range batches {
		rows, _, err := n.Normalize(source, batch)
		require.NoError(t, err, source)
		require.Len(t, rows, 1, source)
		row := rows[0]
		assert.NotEmpty(t, row.Cnpj, source)
		assert.False(t, row.Venda.IsZero(), source)
		assert.NotEmpty(t, row.Ec, source)
		assert.NotEmpty(t, row.Plataforma, source)
		assert.True(t, known[row.CategoriaPagamento], source)
	}
}
