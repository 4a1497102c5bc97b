package models

// RosterEntry attributes a merchant to an account owner and product.
type RosterEntry struct {
	Cnpj                 string `json:"cnpj"`
	ResponsavelComercial string `json:"responsavel_comercial"`
	Produto              string `json:"produto"`
}
