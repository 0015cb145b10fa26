// Package serper is a client for the Serper.dev Google search, news and page
// scrape endpoints. It builds request bodies from configured defaults and
// per-call options, retries transient failures, classifies error responses and
// narrows successful responses to the result shapes of the backends package.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"serper/backends"
)

// Config holds everything a Provider needs. It is copied by New and never
// modified afterwards.
type Config struct {
	APIKey   string
	Defaults Defaults

	// NewsTimeRange is the tbs filter SearchNews applies, e.g. "qdr:h"
	NewsTimeRange string

	SearchURL string
	NewsURL   string
	ScrapeURL string

	// Timeout bounds each attempt when HTTPClient is nil
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      *RetryPolicy
	Logger     *zerolog.Logger
}

// Provider calls the Serper search, news and scrape endpoints. It is safe for
// concurrent use.
type Provider struct {
	name      string
	cfg       Config
	builder   PayloadBuilder
	transport *Transport
	log       zerolog.Logger
}

var _ backends.SearchBackend = (*Provider)(nil)

// New creates a Provider registered under name
func New(name string, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serper provider %q: %w", name, ErrAPIKeyRequired)
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.NewsURL == "" {
		cfg.NewsURL = DefaultNewsURL
	}
	if cfg.ScrapeURL == "" {
		cfg.ScrapeURL = DefaultScrapeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	policy := DefaultRetryPolicy
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("provider", name).Logger()
	}

	return &Provider{
		name:      name,
		cfg:       cfg,
		builder:   PayloadBuilder{Defaults: cfg.Defaults},
		transport: NewTransport(hc, policy, log),
		log:       log,
	}, nil
}

// Name returns the name the provider was configured under
func (p *Provider) Name() string {
	return p.name
}

// IsAvailable checks if the API key is configured
func (p *Provider) IsAvailable() bool {
	return p.cfg.APIKey != ""
}

// GoogleSearchRaw performs a web search and returns the response before narrowing
func (p *Provider) GoogleSearchRaw(ctx context.Context, query string, opts SearchOptions) (RawResponse, error) {
	return p.call(ctx, p.cfg.SearchURL, "Serper search", query, opts.overrides())
}

// GoogleNewsRaw performs a news search and returns the response before narrowing
func (p *Provider) GoogleNewsRaw(ctx context.Context, query string, opts NewsOptions) (RawResponse, error) {
	return p.call(ctx, p.cfg.NewsURL, "Serper news", query, opts.overrides())
}

// GoogleSearch performs a web search
func (p *Provider) GoogleSearch(ctx context.Context, query string, opts SearchOptions) (*backends.WebSearchResult, error) {
	raw, err := p.GoogleSearchRaw(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return NarrowSearch(raw)
}

// GoogleNews performs a news search
func (p *Provider) GoogleNews(ctx context.Context, query string, opts NewsOptions) (*backends.NewsSearchResult, error) {
	raw, err := p.GoogleNewsRaw(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return NarrowNews(raw)
}

// SearchWeb implements backends.SearchBackend
func (p *Provider) SearchWeb(ctx context.Context, query string, opts backends.SearchOptions) (*backends.WebSearchResult, error) {
	return p.GoogleSearch(ctx, query, SearchOptions{
		GL:       opts.CountryCode,
		HL:       opts.Language,
		Location: opts.Location,
		Num:      opts.Num,
		Page:     opts.Page,
	})
}

// SearchNews implements backends.SearchBackend
func (p *Provider) SearchNews(ctx context.Context, query string, opts backends.SearchOptions) (*backends.NewsSearchResult, error) {
	return p.GoogleNews(ctx, query, NewsOptions{
		GL:        opts.CountryCode,
		HL:        opts.Language,
		Location:  opts.Location,
		Num:       opts.Num,
		Page:      opts.Page,
		TimeRange: p.cfg.NewsTimeRange,
	})
}

func (p *Provider) call(ctx context.Context, url, label, query string, overrides Params) (RawResponse, error) {
	payload, err := p.builder.Build(query, overrides)
	if err != nil {
		return RawResponse{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return RawResponse{}, fmt.Errorf("%s: encode request: %w", label, err)
	}

	start := time.Now()
	out, err := p.transport.PostWithRetry(ctx, url, p.headers(), body)
	if err != nil {
		return RawResponse{}, fmt.Errorf("%s: %w", label, err)
	}
	p.log.Debug().
		Str("query", query).
		Int("status", out.StatusCode).
		Dur("took", time.Since(start)).
		Msg(label)
	return Interpret(out, label)
}

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("X-API-KEY", p.cfg.APIKey)
	h.Set("Content-Type", "application/json")
	return h
}

// NarrowSearch keeps the fields of a search response the result shape carries.
// A body with nothing to narrow is returned in Raw.
func NarrowSearch(raw RawResponse) (*backends.WebSearchResult, error) {
	res := &backends.WebSearchResult{}
	if text, ok := passthrough(raw); ok {
		res.Raw = text
	} else if !raw.IsEmpty() {
		if err := raw.Decode(res); err != nil {
			return nil, fmt.Errorf("Serper search: %w", err)
		}
	}
	if res.Organic == nil {
		res.Organic = []backends.OrganicResult{}
	}
	return res, nil
}

// NarrowNews keeps the fields of a news response the result shape carries.
// A body with nothing to narrow is returned in Raw.
func NarrowNews(raw RawResponse) (*backends.NewsSearchResult, error) {
	res := &backends.NewsSearchResult{}
	if text, ok := passthrough(raw); ok {
		res.Raw = text
	} else if !raw.IsEmpty() {
		if err := raw.Decode(res); err != nil {
			return nil, fmt.Errorf("Serper news: %w", err)
		}
	}
	if res.News == nil {
		res.News = []backends.NewsItem{}
	}
	return res, nil
}

// passthrough returns a success body that is not a JSON object: plain text,
// or a JSON scalar or array in its encoded form
func passthrough(raw RawResponse) (string, bool) {
	if !raw.IsJSON() {
		return raw.Text, raw.Text != ""
	}
	trimmed := bytes.TrimSpace(raw.JSON)
	if len(trimmed) == 0 || trimmed[0] == '{' || string(trimmed) == "null" {
		return "", false
	}
	return string(trimmed), true
}
