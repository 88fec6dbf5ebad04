package rum

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/errors"
	"calltriage-server/pkg/version"
)

const (
	// DefaultSite is the telemetry backend site queried when none is
	// configured.
	DefaultSite = "datadoghq.com"

	searchPath     = "/api/v2/rum/events/search"
	defaultTimeout = 30 * time.Second

	// DefaultPageLimit and DefaultMaxPages apply when a search request
	// leaves them unset.
	DefaultPageLimit = 200
	DefaultMaxPages  = 5

	// MaxPageLimit and MaxPages cap what a request may ask for.
	MaxPageLimit = 1000
	MaxPages     = 50
)

// Config holds the credentials and site of the telemetry backend.
type Config struct {
	APIKey  string
	AppKey  string
	Site    string
	Timeout time.Duration
}

// Client queries the RUM event search API. Safe for concurrent use.
type Client struct {
	apiKey     string
	appKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a search client, validating that both keys are set.
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.AppKey == "" {
		return nil, errors.NewMissingCredentials("both DD_API_KEY and DD_APP_KEY must be set")
	}

	site := cfg.Site
	if site == "" {
		site = DefaultSite
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  cfg.APIKey,
		appKey:  cfg.AppKey,
		baseURL: "https://api." + site,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// NewClientWithBaseURL creates a client against an explicit base URL.
// Used by tests to point at a local server.
func NewClientWithBaseURL(cfg Config, baseURL string, logger *logrus.Logger) (*Client, error) {
	c, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.baseURL = baseURL
	return c, nil
}

// SearchParams describes one event search: a backend query string, an
// ISO-8601 UTC time range, and pagination limits.
type SearchParams struct {
	Query     string `json:"query"`
	From      string `json:"from_ts"`
	To        string `json:"to_ts"`
	PageLimit int    `json:"limit_per_page"`
	MaxPages  int    `json:"max_pages"`
}

// normalized returns a copy with defaults filled in and caps applied.
func (p SearchParams) normalized() SearchParams {
	if p.Query == "" {
		p.Query = "*"
	}
	if p.PageLimit <= 0 {
		p.PageLimit = DefaultPageLimit
	}
	if p.PageLimit > MaxPageLimit {
		p.PageLimit = MaxPageLimit
	}
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	if p.MaxPages > MaxPages {
		p.MaxPages = MaxPages
	}
	return p
}

// Validate checks the time range without mutating the params.
func (p SearchParams) Validate() error {
	if p.From == "" || p.To == "" {
		return errors.NewInvalidTimeRange("from_ts and to_ts are required")
	}
	return nil
}

// Result is the accumulated outcome of a paginated search. Events keep
// the backend's newest-first order. Cursor carries the pagination
// cursor left when the page cap stopped the fetch early.
type Result struct {
	Events []json.RawMessage
	Pages  int
	Cursor string
}

type searchFilter struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Query string `json:"query"`
}

type searchPage struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

type searchBody struct {
	Filter searchFilter `json:"filter"`
	Page   searchPage   `json:"page"`
	Sort   string       `json:"sort"`
}

type searchResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Page struct {
			After string `json:"after"`
		} `json:"page"`
	} `json:"meta"`
}

// Search runs one event search, following pagination cursors until the
// backend runs out of results or the page cap is reached.
func (c *Client) Search(ctx context.Context, params SearchParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := params.normalized()

	result := &Result{}
	cursor := ""

	for page := 0; page < p.MaxPages; page++ {
		resp, err := c.searchPage(ctx, p, cursor)
		if err != nil {
			return nil, err
		}

		result.Events = append(result.Events, resp.Data...)
		result.Pages++

		cursor = resp.Meta.Page.After
		if cursor == "" {
			break
		}
	}

	result.Cursor = cursor

	c.logger.WithFields(logrus.Fields{
		"query":  p.Query,
		"pages":  result.Pages,
		"events": len(result.Events),
	}).Debug("Event search completed")

	return result, nil
}

func (c *Client) searchPage(ctx context.Context, p SearchParams, cursor string) (*searchResponse, error) {
	body := searchBody{
		Filter: searchFilter{
			From:  p.From,
			To:    p.To,
			Query: p.Query,
		},
		Page: searchPage{
			Limit:  p.PageLimit,
			Cursor: cursor,
		},
		Sort: "-timestamp",
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", c.appKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamFailure(err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.NewUpstreamFailure("failed to read search response: " + err.Error())
	}

	if resp.StatusCode >= 400 {
		return nil, errors.NewUpstreamFailure("search request rejected", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   truncate(string(payload), 512),
		})
	}

	var decoded searchResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errors.NewUpstreamFailure("failed to decode search response: " + err.Error())
	}

	return &decoded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
