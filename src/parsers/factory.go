// src/parsers/factory.go
package parsers

import (
	"fmt"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/parsers/csvupload"
	"github.com/username/conciliador/src/parsers/spreadsheet"
)

func GetParser(source models.SourceType) (Parser, error) {
	switch source {
	case models.SourceCSVUpload:
		return csvupload.NewParser(), nil
	case models.SourceSpreadsheet:
		return spreadsheet.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
