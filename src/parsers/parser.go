// src/parsers/parser.go
package parsers

import (
	"io"

	"github.com/username/conciliador/src/models"
)

// Parser turns an uploaded file into raw records keyed by the file's own headers.
type Parser interface {
	Parse(file io.Reader) ([]models.RawRecord, error)
}
