// src/parsers/csvupload/parser.go
package csvupload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
)

// ErrEmptyFile is returned when a file has no header line.
var ErrEmptyFile = errors.New("file has no header")

var (
	utf8BOM             = []byte{0xEF, 0xBB, 0xBF}
	candidateDelimiters = []rune{';', ',', '\t', '|'}
)

// CSVUploadParser reads the card machine CSV exported by the acquirer portal.
type CSVUploadParser struct{}

// NewParser creates a new instance of the CSVUploadParser.
func NewParser() *CSVUploadParser {
	return &CSVUploadParser{}
}

// Parse returns one record per non-blank row, keyed by header.
func (p *CSVUploadParser) Parse(file io.Reader) ([]models.RawRecord, error) {
	header, rows, err := ReadTable(file)
	if err != nil {
		return nil, fmt.Errorf("csv parser: %w", err)
	}

	records := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		rec := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	logger.L.Debug("CSV upload parsed", "columns", len(header), "rows", len(records))
	return records, nil
}

// ReadTable decodes a delimited text file whose encoding and delimiter are not
// known in advance. Blank rows are skipped and headers are trimmed; empty
// header cells are named after their position.
func ReadTable(file io.Reader) ([]string, [][]string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode Windows-1252 content: %w", err)
		}
		data = decoded
	}

	headerLine := firstNonBlankLine(data)
	if headerLine == "" {
		return nil, nil, ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = SniffDelimiter(headerLine)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV records: %w", err)
	}

	var header []string
	rows := make([][]string, 0, len(all))
	for _, record := range all {
		if isBlank(record) {
			continue
		}
		if header == nil {
			header = normalizeHeader(record)
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, nil, ErrEmptyFile
	}
	return header, rows, nil
}

// SniffDelimiter picks the candidate appearing most often outside quotes in
// the header line. Ties go to the earlier candidate; no match means ';'.
func SniffDelimiter(headerLine string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range headerLine {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := candidateDelimiters[0], 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

func firstNonBlankLine(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func normalizeHeader(record []string) []string {
	header := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for i, cell := range record {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("coluna_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		header[i] = name
	}
	return header
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
