package handlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/security/validation"
)

// listParam reads a repeated or comma separated query parameter.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// parseTableFilter reads the dashboard filters: plataforma, categoria,
// responsavel (lists) and de / ate (dd/mm/yyyy).
func parseTableFilter(q url.Values) (models.TableFilter, error) {
	filter := models.TableFilter{
		Plataformas:  listParam(q, "plataforma"),
		Categorias:   listParam(q, "categoria"),
		Responsaveis: listParam(q, "responsavel"),
	}
	if s := strings.TrimSpace(q.Get("de")); s != "" {
		from, err := validation.ValidateDateString(s, "de")
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if s := strings.TrimSpace(q.Get("ate")); s != "" {
		to, err := validation.ValidateDateString(s, "ate")
		if err != nil {
			return filter, err
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, fmt.Errorf("%w: 'ate' must not be before 'de'", validation.ErrValidationFailed)
	}
	return filter, nil
}

func parseSources(values []string) ([]models.SourceType, error) {
	sources := make([]models.SourceType, 0, len(values))
	for _, v := range values {
		st, err := models.ParseSourceType(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", validation.ErrValidationFailed, err)
		}
		sources = append(sources, st)
	}
	return sources, nil
}
