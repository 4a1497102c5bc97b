package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

// Spreadsheet cells read unformatted carry dates as serial day numbers.
const (
	minExcelSerialDate = 20000 // 1954-10-03
	maxExcelSerialDate = 80000 // 2119-01-12
)

type normalizerImpl struct{}

// NewNormalizer returns the table-driven source normalizer.
func NewNormalizer() Normalizer {
	return &normalizerImpl{}
}

// Normalize maps a raw batch of one source into canonical rows. Records that
// cannot be normalized are skipped and counted in the report; a mapped column
// missing from every record fails the whole batch with a *SchemaError.
func (n *normalizerImpl) Normalize(source models.SourceType, batch []models.RawRecord) ([]models.CanonicalTransaction, models.NormalizeReport, error) {
	report := models.NewNormalizeReport(source, len(batch))
	rows := make([]models.CanonicalTransaction, 0, len(batch))

	mapping, ok := MappingFor(source)
	if !ok {
		return rows, report, fmt.Errorf("%w: no mapping declared for source '%s'", ErrFieldMapping, source)
	}
	if mapping.Placeholder {
		report.Input = 0
		return rows, report, nil
	}
	if len(batch) == 0 {
		return rows, report, nil
	}

	records := make([]fieldSet, 0, len(batch))
	for _, raw := range batch {
		records = append(records, newFieldSet(raw))
	}
	if err := checkColumns(mapping, records); err != nil {
		return rows, report, err
	}

	for i, rec := range records {
		tx, defaulted, dropReason := normalizeRecord(mapping, rec)
		if dropReason != "" {
			report.Dropped[dropReason]++
			logger.L.Debug("Dropping record", "source", source, "index", i, "reason", dropReason)
			continue
		}
		for _, field := range defaulted {
			report.Defaulted[field]++
		}
		rows = append(rows, tx)
	}
	report.Output = len(rows)

	if dropped := report.TotalDropped(); dropped > 0 {
		logger.L.Info("Normalization dropped records", "source", source, "input", report.Input, "output", report.Output, "dropped", report.Dropped)
	}
	return rows, report, nil
}

func checkColumns(mapping SourceMapping, records []fieldSet) error {
	var missing []string
	for _, col := range mapping.RequiredColumns() {
		found := false
		for _, rec := range records {
			if rec.has(col) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var available []string
	for _, rec := range records {
		for _, k := range rec.keys() {
			if !seen[k] {
				seen[k] = true
				available = append(available, k)
			}
		}
	}
	sort.Strings(available)
	return &SchemaError{Source: mapping.Source, Missing: missing, Available: available}
}

// normalizeRecord returns the canonical row, the fields that fell back to a
// default, and a drop reason when the record must be skipped.
func normalizeRecord(m SourceMapping, rec fieldSet) (tx models.CanonicalTransaction, defaulted []string, dropReason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Warn("Recovered while normalizing record", "source", m.Source, "panic", r)
			tx, defaulted, dropReason = models.CanonicalTransaction{}, nil, models.DropRecordError
		}
	}()

	venda, ok := parseDate(rec.lookup(m.DateField))
	if !ok {
		return tx, nil, models.DropInvalidDate
	}

	cnpj := utils.NormalizeCNPJ(rec.text(m.CnpjField))
	if cnpj == "" {
		return tx, nil, models.DropInvalidCnpj
	}

	bruto, ok := fieldDecimal(rec, m.GrossField)
	if !ok {
		defaulted = append(defaulted, models.ColBruto)
	}
	if bruto.IsNegative() {
		return tx, nil, models.DropNegativeGross
	}

	receita, ok := deriveRevenue(m, rec, bruto)
	if !ok {
		defaulted = append(defaulted, models.ColReceita)
	}

	ec := rec.text(m.EcField)
	if ec == "" {
		ec = models.DefaultEc
		defaulted = append(defaulted, models.ColEc)
	}

	paymentText := ""
	for _, field := range m.PaymentFields {
		if paymentText = rec.text(field); paymentText != "" {
			break
		}
	}

	tx = models.CanonicalTransaction{
		Cnpj:               cnpj,
		Bruto:              bruto.Round(2).InexactFloat64(),
		Receita:            receita.Round(2).InexactFloat64(),
		Venda:              venda,
		Ec:                 ec,
		Plataforma:         m.Platform,
		Tipo:               rec.text(m.TipoField),
		Bandeira:           rec.text(m.BandeiraField),
		CategoriaPagamento: CategorizePayment(paymentText),
	}
	return tx, defaulted, ""
}

var hundred = decimal.NewFromInt(100)

// deriveRevenue applies the source's revenue rule. ok is false when the
// revenue input was absent or non-numeric and treated as zero.
func deriveRevenue(m SourceMapping, rec fieldSet, bruto decimal.Decimal) (decimal.Decimal, bool) {
	switch m.Revenue {
	case RevenueGrossMinusNet:
		net, ok := fieldDecimal(rec, m.RevenueField)
		return bruto.Sub(net), ok
	case RevenueGrossTimesRate:
		rate, ok := fieldDecimal(rec, m.RevenueField)
		return bruto.Mul(rate).Div(hundred), ok
	case RevenueFixedRate:
		return bruto.Mul(decimal.NewFromFloat(m.RevenueRate)).Div(hundred), true
	case RevenueDirectField:
		return fieldDecimal(rec, m.RevenueField)
	}
	return decimal.Zero, false
}

// fieldDecimal coerces a mapped money field from its literal; anything
// non-numeric or out of range is zero.
func fieldDecimal(rec fieldSet, field string) (decimal.Decimal, bool) {
	v, ok := rec.lookup(field)
	if !ok {
		return decimal.Zero, false
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseDate(v any, present bool) (time.Time, bool) {
	if !present {
		return time.Time{}, false
	}
	if t, ok := v.(time.Time); ok {
		return t, !t.IsZero()
	}
	s := valueText(v)
	if t, err := utils.ParseDayFirstDate(s); err == nil {
		return t, true
	}
	if serial, ok := numberValue(v); ok && serial >= minExcelSerialDate && serial <= maxExcelSerialDate {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
