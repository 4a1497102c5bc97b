// src/services/consolidation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/parsers"
	"github.com/username/conciliador/src/processors"
)

const (
	ckSourceFetch          = "fetch_%s_%s_%s"
	DefaultCacheExpiration = 10 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

const (
	SourceKindUpload      = "upload"
	SourceKindAPI         = "api"
	SourceKindPlaceholder = "placeholder"
)

type consolidationServiceImpl struct {
	clients         map[models.SourceType]SourceClient
	normalizer      processors.Normalizer
	rosterProcessor processors.RosterProcessor
	roster          RosterProvider
	fetchCache      *cache.Cache
	now             func() time.Time
}

// NewConsolidationService wires the pipeline. clients holds the configured REST
// sources; a REST source without a client reports not_configured. Fetch results
// stay in fetchCache for the cache's default expiration.
func NewConsolidationService(
	clients map[models.SourceType]SourceClient,
	normalizer processors.Normalizer,
	rosterProcessor processors.RosterProcessor,
	roster RosterProvider,
	fetchCache *cache.Cache,
) ConsolidationService {
	if clients == nil {
		clients = map[models.SourceType]SourceClient{}
	}
	return &consolidationServiceImpl{
		clients:         clients,
		normalizer:      normalizer,
		rosterProcessor: rosterProcessor,
		roster:          roster,
		fetchCache:      fetchCache,
		now:             time.Now,
	}
}

// Load fetches and normalizes each requested source, then consolidates and joins
// the roster. A failing source is recorded in its SourceResult and never aborts
// the others. The returned session is a new value; state is left untouched.
func (s *consolidationServiceImpl) Load(ctx context.Context, state *models.Session, req LoadRequest) (*models.Session, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil session", ErrInvalidRequest)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRequest)
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = models.AllSourceTypes
	}
	sources = dedupeSources(sources)

	log := logger.FromContext(ctx)
	next := state.Clone()
	results := make([]models.SourceResult, 0, len(sources))
	for _, source := range sources {
		result := s.loadSource(ctx, next, source, req)
		if result.Failed() {
			log.Warn("Source failed to load", "source", source, "kind", result.ErrorKind, "error", result.Error)
		} else {
			log.Info("Source loaded", "source", source, "rows", result.RowCount, "dropped", result.Report.TotalDropped(), "fromCache", result.FromCache)
		}
		results = append(results, result)
	}

	next.From = req.From
	next.To = req.To
	next.Sources = sources
	next.Results = results
	next.Rows = s.join(ctx, processors.Consolidate(results))
	next.LoadedAt = s.now()
	return next, nil
}

func (s *consolidationServiceImpl) loadSource(ctx context.Context, state *models.Session, source models.SourceType, req LoadRequest) models.SourceResult {
	mapping, ok := processors.MappingFor(source)
	if !ok {
		return failedResult(source, "", fmt.Errorf("%w: unknown source '%s'", processors.ErrFieldMapping, source))
	}

	if source.IsUpload() {
		if up, found := state.Uploads[source]; found {
			up.FromCache = true
			return up
		}
		return models.SourceResult{
			Source:   source,
			Platform: mapping.Platform,
			Status:   models.SourceStatusEmpty,
			Rows:     []models.CanonicalTransaction{},
			Report:   models.NewNormalizeReport(source, 0),
		}
	}

	if mapping.Placeholder {
		result, _ := s.normalize(source, mapping.Platform, []models.RawRecord{}, false)
		return result
	}

	client, ok := s.clients[source]
	if !ok {
		return failedResult(source, mapping.Platform, fmt.Errorf("%w: %s", ErrSourceNotConfigured, source))
	}

	records, fromCache, err := s.fetch(ctx, client, source, req)
	if err != nil {
		return failedResult(source, mapping.Platform, err)
	}
	result, _ := s.normalize(source, mapping.Platform, records, fromCache)
	return result
}

// fetch goes through the cache keyed by source and period.
func (s *consolidationServiceImpl) fetch(ctx context.Context, client SourceClient, source models.SourceType, req LoadRequest) ([]models.RawRecord, bool, error) {
	key := fmt.Sprintf(ckSourceFetch, source, req.From.Format("20060102"), req.To.Format("20060102"))
	if req.Refresh {
		s.fetchCache.Delete(key)
	} else if cached, found := s.fetchCache.Get(key); found {
		return cached.([]models.RawRecord), true, nil
	}

	records, err := client.Fetch(ctx, FetchRequest{From: req.From, To: req.To})
	if err != nil {
		return nil, false, err
	}
	s.fetchCache.Set(key, records, cache.DefaultExpiration)
	return records, false, nil
}

// normalize always returns a usable result; the error is the normalizer's, for callers that need it.
func (s *consolidationServiceImpl) normalize(source models.SourceType, platform string, records []models.RawRecord, fromCache bool) (models.SourceResult, error) {
	rows, report, err := s.normalizer.Normalize(source, records)
	if err != nil {
		res := failedResult(source, platform, err)
		res.Report = report
		return res, err
	}
	status := models.SourceStatusOK
	if len(rows) == 0 {
		status = models.SourceStatusEmpty
	}
	return models.SourceResult{
		Source:    source,
		Platform:  platform,
		Status:    status,
		Rows:      rows,
		RowCount:  len(rows),
		Report:    report,
		FetchedAt: s.now(),
		FromCache: fromCache,
	}, nil
}

func (s *consolidationServiceImpl) join(ctx context.Context, rows []models.CanonicalTransaction) []models.ConsolidatedRow {
	var roster []models.RosterEntry
	if s.roster != nil {
		entries, err := s.roster.List()
		if err != nil {
			logger.FromContext(ctx).Error("Failed to load roster, joining without it", "error", err)
		} else {
			roster = entries
		}
	}
	return s.rosterProcessor.Join(rows, roster)
}

// Upload parses and normalizes a file for an upload source, stores it on the
// session and reloads the current period so the table includes it. A parse or
// mapping failure returns the error and leaves any previous upload in place.
func (s *consolidationServiceImpl) Upload(ctx context.Context, state *models.Session, source models.SourceType, file io.Reader) (*models.Session, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil session", ErrInvalidRequest)
	}
	if !source.IsUpload() {
		return nil, fmt.Errorf("%w: source '%s' does not accept uploads", ErrInvalidRequest, source)
	}
	mapping, _ := processors.MappingFor(source)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	records, err := parser.Parse(file)
	if err != nil {
		logger.FromContext(ctx).Warn("Upload parsing failed", "source", source, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	result, err := s.normalize(source, mapping.Platform, records, false)
	if err != nil {
		logger.FromContext(ctx).Warn("Upload could not be mapped", "source", source, "error", err)
		return nil, err
	}

	next := state.Clone()
	next.Uploads[source] = result

	sources := next.Sources
	if len(sources) == 0 {
		sources = []models.SourceType{source}
	} else {
		sources = dedupeSources(append(append([]models.SourceType(nil), sources...), source))
	}
	return s.Load(ctx, next, LoadRequest{From: next.From, To: next.To, Sources: sources})
}

// Sources describes every known source along with its last result on the session.
func (s *consolidationServiceImpl) Sources(state *models.Session) []SourceInfo {
	infos := make([]SourceInfo, 0, len(models.AllSourceTypes))
	for _, mapping := range processors.Mappings() {
		info := SourceInfo{
			Source:   mapping.Source,
			Platform: mapping.Platform,
		}
		switch {
		case mapping.Placeholder:
			info.Kind = SourceKindPlaceholder
			info.Configured = true
		case mapping.Source.IsUpload():
			info.Kind = SourceKindUpload
			info.Configured = true
			info.RequiredColumns = mapping.RequiredColumns()
		default:
			info.Kind = SourceKindAPI
			_, info.Configured = s.clients[mapping.Source]
			info.RequiredColumns = mapping.RequiredColumns()
		}
		if state != nil {
			for i := range state.Results {
				if state.Results[i].Source == mapping.Source {
					r := state.Results[i]
					info.LastResult = &r
					break
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func failedResult(source models.SourceType, platform string, err error) models.SourceResult {
	res := models.SourceResult{
		Source:    source,
		Platform:  platform,
		Status:    models.SourceStatusFailed,
		Rows:      []models.CanonicalTransaction{},
		Report:    models.NewNormalizeReport(source, 0),
		ErrorKind: ClassifySourceError(err),
		Error:     err.Error(),
	}
	var schemaErr *processors.SchemaError
	if errors.As(err, &schemaErr) {
		res.MissingColumns = schemaErr.Missing
		res.AvailableColumns = schemaErr.Available
	}
	return res
}

func dedupeSources(sources []models.SourceType) []models.SourceType {
	seen := make(map[models.SourceType]bool, len(sources))
	out := make([]models.SourceType, 0, len(sources))
	for _, s := range sources {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
