package services

import (
	"context"
	"errors"
	"net"

	"golang.org/x/oauth2"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/processors"
)

var (
	// ErrSourceAuth means the source rejected our credentials (401/403 or token endpoint failure).
	ErrSourceAuth = errors.New("source authentication failed")
	// ErrSourceUnavailable covers transport failures and non-2xx answers.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceMalformed means the body could not be decoded or lacked the records key.
	ErrSourceMalformed = errors.New("source response malformed")
	// ErrSourceNotConfigured is returned for REST sources without a base URL.
	ErrSourceNotConfigured = errors.New("source not configured")
)

// ClassifySourceError maps a load error to the kind shown on the status panel.
func ClassifySourceError(err error) string {
	var retrieveErr *oauth2.RetrieveError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceAuth), errors.As(err, &retrieveErr):
		return models.ErrorKindAuth
	case errors.Is(err, ErrSourceNotConfigured):
		return models.ErrorKindNotConfigured
	case errors.Is(err, processors.ErrFieldMapping):
		return models.ErrorKindMapping
	case errors.Is(err, ErrSourceMalformed), errors.Is(err, ErrParsingFailed):
		return models.ErrorKindMalformed
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return models.ErrorKindConnectivity
	}
	return models.ErrorKindUnknown
}
