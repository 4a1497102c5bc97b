package processors

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

// Field names of an audit record.
const (
	auditFieldID            = "id"
	auditFieldQuantidade    = "quantidade"
	auditFieldValorUnitario = "valor_unitario"
	auditFieldTaxa          = "taxa_administrativa"
	auditFieldValorTotal    = "valor_total"
	auditFieldDesconto      = "desconto"
)

// Bounds on an audited value. Rounding rescales by 10^|exponent|, so larger
// values are rejected and the record is skipped.
const (
	maxAuditExponent = 30
	maxAuditDigits   = 40
	maxAuditLiteral  = 64
)

// DefaultAuditTolerance is the |gap| above which a discount is divergent.
var DefaultAuditTolerance = decimal.New(5, -3)

type auditorImpl struct {
	tolerance decimal.Decimal
}

// NewAuditor returns an auditor flagging discount gaps above tolerance.
func NewAuditor(tolerance decimal.Decimal) Auditor {
	if tolerance.IsNegative() {
		tolerance = tolerance.Abs()
	}
	return &auditorImpl{tolerance: tolerance}
}

// Audit recomputes every record under banker's rounding and compares the
// discount with the selected alternative rule. Records that cannot be read are
// skipped and only counted.
func (a *auditorImpl) Audit(records []models.RawRecord, mode models.RoundingMode) models.AuditReport {
	report := models.AuditReport{
		Records: make([]models.AuditRecord, 0, len(records)),
		Summary: models.AuditSummary{
			Mode:            mode,
			Tolerance:       a.tolerance,
			SumGapDiscount:  decimal.Zero,
			SumGapTotal:     decimal.Zero,
			SumGapSimulated: decimal.Zero,
		},
	}

	for i, raw := range records {
		rec, err := a.auditRecord(raw, mode)
		if err != nil {
			logger.L.Debug("Skipping audit record", "index", i, "error", err)
			report.Summary.Skipped++
			continue
		}
		report.Records = append(report.Records, rec)
		report.Summary.Audited++
		report.Summary.SumGapDiscount = report.Summary.SumGapDiscount.Add(rec.GapDiscount)
		report.Summary.SumGapTotal = report.Summary.SumGapTotal.Add(rec.GapTotal)
		report.Summary.SumGapSimulated = report.Summary.SumGapSimulated.Add(rec.GapSimulated)
		if rec.Divergent {
			report.Summary.Divergent++
		}
	}
	return report
}

func (a *auditorImpl) auditRecord(raw models.RawRecord, mode models.RoundingMode) (rec models.AuditRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit record panicked: %v", r)
		}
	}()

	in, err := extractAuditInput(newFieldSet(raw))
	if err != nil {
		return rec, err
	}
	simulate, err := roundingFunc(mode)
	if err != nil {
		return rec, err
	}

	rec.AuditInput = in
	rec.NormativeTotal = in.Quantidade.Mul(in.ValorUnitario).RoundBank(2)
	rec.GapTotal = in.ValorTotal.Sub(rec.NormativeTotal)

	rawDiscount := in.ValorTotal.Mul(in.TaxaAdministrativa.Abs()).Shift(-2)
	rec.NormativeDiscount = rawDiscount.RoundBank(2)
	rec.GapDiscount = in.Desconto.Sub(rec.NormativeDiscount)

	rec.SimulatedDiscount = simulate(rawDiscount)
	rec.GapSimulated = rec.SimulatedDiscount.Sub(rec.NormativeDiscount)

	rec.Divergent = rec.GapDiscount.Abs().GreaterThan(a.tolerance)
	return rec, nil
}

func extractAuditInput(f fieldSet) (models.AuditInput, error) {
	var in models.AuditInput
	targets := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{auditFieldQuantidade, &in.Quantidade},
		{auditFieldValorUnitario, &in.ValorUnitario},
		{auditFieldTaxa, &in.TaxaAdministrativa},
		{auditFieldValorTotal, &in.ValorTotal},
		{auditFieldDesconto, &in.Desconto},
	}
	for _, t := range targets {
		v, ok := f.lookup(t.field)
		if !ok {
			return in, fmt.Errorf("missing field '%s'", t.field)
		}
		d, err := toDecimal(v)
		if err != nil {
			return in, fmt.Errorf("field '%s': %w", t.field, err)
		}
		*t.dst = d
	}
	in.ID = f.text(auditFieldID)
	return in, nil
}

// toDecimal reads a raw value without passing through float64 when the
// source kept the literal (json.Number or text). The normalizer uses it for
// money fields as well.
func toDecimal(v any) (decimal.Decimal, error) {
	d, err := parseDecimal(v)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := d.Exponent(); exp > maxAuditExponent || exp < -maxAuditExponent {
		return decimal.Zero, fmt.Errorf("value out of range: exponent %d", exp)
	}
	if d.NumDigits() > maxAuditDigits {
		return decimal.Zero, fmt.Errorf("value out of range: %d digits", d.NumDigits())
	}
	return d, nil
}

func parseDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case json.Number:
		if len(val) > maxAuditLiteral {
			return decimal.Zero, fmt.Errorf("number literal too long (%d chars)", len(val))
		}
		return decimal.NewFromString(val.String())
	case string:
		if len(val) > maxAuditLiteral {
			return decimal.Zero, fmt.Errorf("number text too long (%d chars)", len(val))
		}
		normalized, ok := utils.NormalizeDecimalString(val)
		if !ok {
			return decimal.Zero, fmt.Errorf("not a number: '%s'", val)
		}
		return decimal.NewFromString(normalized)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(val), nil
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case nil:
		return decimal.Zero, fmt.Errorf("null value")
	}
	return decimal.Zero, fmt.Errorf("unsupported value type %T", v)
}

func roundingFunc(mode models.RoundingMode) (func(decimal.Decimal) decimal.Decimal, error) {
	switch mode {
	case models.RoundingHalfUp:
		return func(d decimal.Decimal) decimal.Decimal { return d.Round(2) }, nil
	case models.RoundingDown:
		return func(d decimal.Decimal) decimal.Decimal { return d.Truncate(2) }, nil
	case models.RoundingCeiling:
		return func(d decimal.Decimal) decimal.Decimal { return d.RoundCeil(2) }, nil
	}
	return nil, fmt.Errorf("unknown rounding mode '%s'", mode)
}
