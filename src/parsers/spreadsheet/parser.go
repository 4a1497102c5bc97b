// src/parsers/spreadsheet/parser.go
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

// SheetField tags every record with the sheet it was read from.
const SheetField = "_aba"

// ExpectedSheets are the tabs of the sales workbook, in reading order.
var ExpectedSheets = []string{"Vendas Cartão", "Vendas Pix", "Boletos"}

// ErrNoExpectedSheets is returned when a workbook has none of ExpectedSheets.
var ErrNoExpectedSheets = errors.New("workbook has none of the expected sheets")

// SpreadsheetParser reads the multi-tab sales workbook.
type SpreadsheetParser struct{}

func NewParser() *SpreadsheetParser {
	return &SpreadsheetParser{}
}

// Parse reads every expected sheet; other sheets are ignored and missing ones
// are logged. Cells are read unformatted so numbers and dates keep their raw value.
func (p *SpreadsheetParser) Parse(file io.Reader) ([]models.RawRecord, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet parser: failed to open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.L.Warn("Failed to close workbook", "error", cerr)
		}
	}()

	available := f.GetSheetList()
	var records []models.RawRecord
	found := 0
	for _, expected := range ExpectedSheets {
		sheet, ok := matchSheet(available, expected)
		if !ok {
			logger.L.Warn("Expected sheet not found in workbook", "sheet", expected, "available", available)
			continue
		}
		found++

		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("spreadsheet parser: failed to read sheet '%s': %w", sheet, err)
		}
		records = append(records, sheetRecords(expected, rows)...)
	}
	if found == 0 {
		return nil, fmt.Errorf("spreadsheet parser: %w (available: %s)", ErrNoExpectedSheets, strings.Join(available, ", "))
	}
	if records == nil {
		records = []models.RawRecord{}
	}
	return records, nil
}

// matchSheet finds a sheet by name ignoring case and accents, since
// workbooks saved by other tools often lose the "ã".
func matchSheet(available []string, expected string) (string, bool) {
	want := utils.FoldText(expected)
	for _, name := range available {
		if utils.FoldText(name) == want {
			return name, true
		}
	}
	return "", false
}

func sheetRecords(sheet string, rows [][]string) []models.RawRecord {
	var header []string
	var records []models.RawRecord
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, cell := range row {
				header[i] = strings.TrimSpace(cell)
			}
			continue
		}
		rec := models.RawRecord{SheetField: sheet}
		for i, col := range header {
			if col == "" || i >= len(row) {
				continue
			}
			rec[col] = row[i]
		}
		records = append(records, rec)
	}
	return records
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
