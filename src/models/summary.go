package models

import "time"

// Summary dimensions accepted by the group-by endpoint.
const (
	DimensionPlataforma           = "plataforma"
	DimensionCategoriaPagamento   = "categoria_pagamento"
	DimensionResponsavelComercial = "responsavel_comercial"
	DimensionProduto              = "produto"
	DimensionBandeira             = "bandeira"
	DimensionMes                  = "mes"
)

// SummaryDimensions lists the valid group-by dimensions.
var SummaryDimensions = []string{
	DimensionPlataforma, DimensionCategoriaPagamento, DimensionResponsavelComercial,
	DimensionProduto, DimensionBandeira, DimensionMes,
}

// TableFilter narrows the consolidated table. Empty lists match everything.
type TableFilter struct {
	Plataformas  []string
	Categorias   []string
	Responsaveis []string
	From         *time.Time
	To           *time.Time
}

// SummaryRow is one group of the aggregated table.
type SummaryRow struct {
	Grupo      string  `json:"grupo"`
	GMV        float64 `json:"gmv"`
	Receita    float64 `json:"receita"`
	Transacoes int     `json:"transacoes"`
}

// Summary is the grouped view used by the dashboard charts.
type Summary struct {
	Dimension       string       `json:"dimensao"`
	Rows            []SummaryRow `json:"grupos"`
	TotalGMV        float64      `json:"gmv_total"`
	TotalReceita    float64      `json:"receita_total"`
	TotalTransacoes int          `json:"transacoes_total"`
}
