package csvupload

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   rune
	}{
		{"semicolon", "CNPJ;Valor Bruto;Data da Venda", ';'},
		{"comma", "CNPJ,Valor Bruto,Data da Venda", ','},
		{"tab", "CNPJ\tValor Bruto\tData da Venda", '\t'},
		{"pipe", "CNPJ|Valor Bruto|Data da Venda", '|'},
		{"quoted commas ignored", `"Valor, Bruto";"Data, Venda";CNPJ`, ';'},
		{"single column", "CNPJ", ';'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter(tt.header))
		})
	}
}

func TestParse_SemicolonUTF8WithBOM(t *testing.T) {
	content := "\xEF\xBB\xBFCNPJ;Valor Bruto;Valor Líquido;Data da Venda\n" +
		"11.222.333/0001-81;1.234,56;1.200,00;05/03/2024\n" +
		";;;\n" +
		"\n" +
		"44555666000199;10,00;9,50;06/03/2024\n"

	records, err := NewParser().Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "11.222.333/0001-81", records[0]["CNPJ"])
	assert.Equal(t, "1.234,56", records[0]["Valor Bruto"])
	assert.Equal(t, "1.200,00", records[0]["Valor Líquido"])
	assert.Equal(t, "06/03/2024", records[1]["Data da Venda"])
}

func TestParse_Windows1252(t *testing.T) {
	// "Transação" and "Cartão" encoded as Windows-1252.
	content := []byte("CNPJ,Tipo de Transa\xe7\xe3o,Forma de Pagamento\n11222333000181,Venda,Cart\xe3o\n")

	records, err := NewParser().Parse(bytes.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Venda", records[0]["Tipo de Transação"])
	assert.Equal(t, "Cartão", records[0]["Forma de Pagamento"])
}

func TestParse_ShortRowsAndEmptyHeaders(t *testing.T) {
	content := "CNPJ;;Valor Bruto;CNPJ\n11222333000181;x\n"

	header, rows, err := ReadTable(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []string{"CNPJ", "coluna_2", "Valor Bruto", "CNPJ_2"}, header)
	require.Len(t, rows, 1)

	records, err := NewParser().Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0]["coluna_2"])
	_, hasGross := records[0]["Valor Bruto"]
	assert.False(t, hasGross)
}

func TestParse_EmptyFile(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}
