// src/services/source_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

const maxResponseBytes = 32 << 20

// APISourceConfig configures one paginated REST source. Exactly one of the
// auth blocks is used: client credentials, a static bearer token, or basic auth.
type APISourceConfig struct {
	Source     models.SourceType
	BaseURL    string
	RecordsKey string

	BearerToken  string
	ClientID     string
	ClientSecret string
	TokenURL     string
	BasicUser    string
	BasicPass    string

	PageSize          int
	MaxPages          int
	Timeout           time.Duration
	RequestsPerSecond float64
}

type apiSourceClient struct {
	cfg        APISourceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPISourceClient builds the HTTP client for a REST source.
func NewAPISourceClient(cfg APISourceConfig) (SourceClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotConfigured, cfg.Source)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url for %s: %w", cfg.Source, err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	base := &http.Client{Jar: jar, Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	client := base
	switch {
	case cfg.ClientID != "" && cfg.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(ctx)
	case cfg.BearerToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"}))
	}
	client.Jar = jar
	client.Timeout = cfg.Timeout

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &apiSourceClient{
		cfg:        cfg,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Fetch walks the pages until one comes back short or empty, or the page ceiling is hit.
func (c *apiSourceClient) Fetch(ctx context.Context, req FetchRequest) ([]models.RawRecord, error) {
	log := logger.FromContext(ctx).With("source", c.cfg.Source)
	records := []models.RawRecord{}

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		batch, returned, err := c.fetchPage(ctx, req, page)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
		log.Debug("Fetched source page", "page", page, "returned", returned, "records", len(batch))
		if returned < c.cfg.PageSize {
			return records, nil
		}
	}

	log.Warn("Source page ceiling reached, result may be truncated", "maxPages", c.cfg.MaxPages, "records", len(records))
	return records, nil
}

// fetchPage returns the usable records of one page and how many items the API sent.
func (c *apiSourceClient) fetchPage(ctx context.Context, req FetchRequest, page int) ([]models.RawRecord, int, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceNotConfigured, err)
	}
	q := u.Query()
	q.Set("periodo", utils.FormatDateRange(req.From, req.To))
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.BasicUser != "" {
		httpReq.SetBasicAuth(c.cfg.BasicUser, c.cfg.BasicPass)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, 0, fmt.Errorf("%w: token request failed: %v", ErrSourceAuth, err)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, fmt.Errorf("%w: status %d", ErrSourceAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, 0, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading body: %v", ErrSourceUnavailable, err)
	}
	return decodeRecords(body, c.cfg.RecordsKey)
}

// decodeRecords accepts a bare JSON array or an object holding the array under recordsKey.
// Numbers stay json.Number so that amounts are parsed exactly downstream. returned
// counts every item of the array, including the non-object ones that are skipped.
func decodeRecords(body []byte, recordsKey string) (records []models.RawRecord, returned int, err error) {
	payload, err := decodeJSON(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		raw, ok := v[recordsKey]
		if recordsKey == "" || !ok {
			return nil, 0, fmt.Errorf("%w: missing records key '%s'", ErrSourceMalformed, recordsKey)
		}
		if raw == nil {
			return []models.RawRecord{}, 0, nil
		}
		arr, ok := raw.([]any)
		if !ok {
			return nil, 0, fmt.Errorf("%w: '%s' is not an array", ErrSourceMalformed, recordsKey)
		}
		items = arr
	default:
		return nil, 0, fmt.Errorf("%w: unexpected payload type %T", ErrSourceMalformed, payload)
	}

	records = make([]models.RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			logger.L.Warn("Skipping non-object record", "index", i)
			continue
		}
		records = append(records, models.RawRecord(obj))
	}
	return records, len(items), nil
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
