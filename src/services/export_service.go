// src/services/export_service.go
package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/security/validation"
)

const (
	tableSheetName = "Transacoes"
	auditSheetName = "Auditoria"
)

// exportTable is the format-independent view an export is written from.
type exportTable struct {
	sheet   string
	columns []string
	rows    int
	cell    func(row int, column string) string
	value   func(row int, column string) any
	isText  func(column string) bool
}

type exportServiceImpl struct{}

// NewExportService returns the CSV/XLSX exporter.
func NewExportService() ExportService {
	return &exportServiceImpl{}
}

// ParseExportFormat validates a format query value; empty means csv.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", fmt.Errorf("%w: unknown export format '%s'", ErrInvalidRequest, s)
}

// ResolveColumns checks a column selection against the known columns. An empty
// selection means all of them; repeated names are kept once.
func ResolveColumns(requested, known []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), known...), nil
	}
	valid := make(map[string]bool, len(known))
	for _, c := range known {
		valid[c] = true
	}
	seen := map[string]bool{}
	var out, unknown []string
	for _, c := range requested {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if !valid[c] {
			unknown = append(unknown, c)
			continue
		}
		out = append(out, c)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown columns %s", ErrInvalidColumns, strings.Join(unknown, ", "))
	}
	if len(out) == 0 {
		return append([]string(nil), known...), nil
	}
	return out, nil
}

func (s *exportServiceImpl) ExportTable(w io.Writer, rows []models.ConsolidatedRow, columns []string, format ExportFormat) error {
	cols, err := ResolveColumns(columns, models.ConsolidatedColumns)
	if err != nil {
		return err
	}
	t := exportTable{
		sheet:   tableSheetName,
		columns: cols,
		rows:    len(rows),
		cell: func(i int, c string) string {
			return rows[i].CellString(c)
		},
		value: func(i int, c string) any {
			if c == models.ColVenda {
				return rows[i].CellString(c)
			}
			v, _ := rows[i].CellValue(c)
			return v
		},
		isText: func(c string) bool {
			return c != models.ColBruto && c != models.ColReceita && c != models.ColVenda
		},
	}
	return writeExport(w, t, format)
}

func (s *exportServiceImpl) ExportAudit(w io.Writer, report models.AuditReport, columns []string, format ExportFormat) error {
	cols, err := ResolveColumns(columns, models.AuditColumns)
	if err != nil {
		return err
	}
	records := report.Records
	t := exportTable{
		sheet:   auditSheetName,
		columns: cols,
		rows:    len(records),
		cell: func(i int, c string) string {
			return records[i].AuditCell(c)
		},
		value: func(i int, c string) any {
			cell := records[i].AuditCell(c)
			if c == "id" || c == "divergente" {
				return cell
			}
			d, err := decimal.NewFromString(cell)
			if err != nil {
				return cell
			}
			return d.InexactFloat64()
		},
		isText: func(c string) bool {
			return c == "id" || c == "divergente"
		},
	}
	return writeExport(w, t, format)
}

func writeExport(w io.Writer, t exportTable, format ExportFormat) error {
	switch format {
	case ExportCSV, "":
		return writeCSV(w, t)
	case ExportXLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("%w: unknown export format '%s'", ErrInvalidRequest, format)
}

func writeCSV(w io.Writer, t exportTable) error {
	if t.rows == 0 {
		// gota cannot build a frame without rows, so the bare header is written directly.
		cw := csv.NewWriter(w)
		if err := cw.Write(t.columns); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}

	records := make([][]string, 0, t.rows+1)
	records = append(records, t.columns)
	for i := 0; i < t.rows; i++ {
		record := make([]string, len(t.columns))
		for j, c := range t.columns {
			cell := t.cell(i, c)
			if t.isText(c) {
				cell = validation.SanitizeForFormulaInjection(cell)
			}
			record[j] = cell
		}
		records = append(records, record)
	}

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return fmt.Errorf("failed to build export frame: %w", df.Err)
	}
	return df.WriteCSV(w)
}

func writeXLSX(w io.Writer, t exportTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", t.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(t.columns))
	for j, c := range t.columns {
		header[j] = c
	}
	if err := f.SetSheetRow(t.sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(t.sheet, 1, 1, style)
	}

	for i := 0; i < t.rows; i++ {
		row := make([]any, len(t.columns))
		for j, c := range t.columns {
			v := t.value(i, c)
			if s, ok := v.(string); ok && t.isText(c) {
				v = validation.SanitizeForFormulaInjection(s)
			}
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
