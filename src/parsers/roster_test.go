package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/models"
)

func TestParseRoster(t *testing.T) {
	content := "CNPJ;Responsável Comercial;Produto\n" +
		"11.222.333/0001-81;Ana;Link de Pagamento\n" +
		";Sem Documento;X\n" +
		"44555666000199;<b>Bruno</b>;Maquininha\n" +
		"77888999000100;<script>alert(1)</script>;Maquininha\n" +
		"11222333000181;Ana Souza;Link de Pagamento\n"

	entries, err := ParseRoster(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.RosterEntry{Cnpj: "11222333000181", ResponsavelComercial: "Ana Souza", Produto: "Link de Pagamento"}, entries[0])
	assert.Equal(t, "Bruno", entries[1].ResponsavelComercial)
}

func TestParseRoster_MissingCnpjColumn(t *testing.T) {
	_, err := ParseRoster(strings.NewReader("nome,produto\nAna,X\n"))
	assert.Error(t, err)
}

func TestGetParser(t *testing.T) {
	for _, source := range []models.SourceType{models.SourceCSVUpload, models.SourceSpreadsheet} {
		p, err := GetParser(source)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
	_, err := GetParser(models.SourceMerchantAPI)
	assert.Error(t, err)
}
