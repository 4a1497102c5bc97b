package processors

import (
	"strings"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

// paymentRules are checked in order against the folded text. Débito comes
// before the card rule so "Cartão de Débito" is not counted as credit.
var paymentRules = []struct {
	category string
	needles  []string
}{
	{models.CategoriaPix, []string{"pix", "transferencia"}},
	{models.CategoriaDebito, []string{"debito", "debit"}},
	{models.CategoriaCredito, []string{"cartao", "credito", "credit", "card"}},
	{models.CategoriaBoleto, []string{"boleto"}},
}

// CategorizePayment maps free payment text onto the fixed category set,
// ignoring case and accents.
func CategorizePayment(text string) string {
	folded := utils.FoldText(text)
	if folded == "" {
		return models.CategoriaOutros
	}
	for _, rule := range paymentRules {
		for _, needle := range rule.needles {
			if strings.Contains(folded, needle) {
				return rule.category
			}
		}
	}
	return models.CategoriaOutros
}
