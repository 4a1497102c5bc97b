package spreadsheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes each sheet's rows starting at A1.
func buildWorkbook(t *testing.T, sheets map[string][][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParse_ReadsExpectedSheetsOnly(t *testing.T) {
	header := []any{"CNPJ", "Valor Bruto", "Receita", "Data", "EC"}
	buf := buildWorkbook(t, map[string][][]any{
		"Vendas Cartão": {
			header,
			{"11222333000181", 100.5, 2, "05/03/2024", "Loja A"},
			{nil, nil, nil, nil, nil},
			{"44555666000199", 10, 0.2, "06/03/2024", "Loja B"},
		},
		"vendas pix": {
			header,
			{"11222333000181", 50, 0.5, "07/03/2024", "Loja A"},
		},
		"Resumo": {
			{"Total", 160.5},
		},
	})

	records, err := NewParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "Vendas Cartão", records[0][SheetField])
	assert.Equal(t, "11222333000181", records[0]["CNPJ"])
	assert.Equal(t, "100.5", records[0]["Valor Bruto"])
	assert.Equal(t, "Loja B", records[1]["EC"])
	assert.Equal(t, "Vendas Pix", records[2][SheetField])
	assert.Equal(t, "07/03/2024", records[2]["Data"])
}

func TestParse_NoExpectedSheets(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]any{
		"Planilha1": {{"a", "b"}},
	})
	_, err := NewParser().Parse(buf)
	assert.ErrorIs(t, err, ErrNoExpectedSheets)
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := NewParser().Parse(bytes.NewReader([]byte("CNPJ;Data\n")))
	assert.Error(t, err)
}
