package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SearchOptions contains the provider-neutral parameters of a search query
type SearchOptions struct {
	CountryCode string
	Language    string
	Location    string
	Num         int
	Page        int
}

// PageOptions contains parameters for a page fetch
type PageOptions struct {
	// Timeout bounds the whole fetch. Zero means no deadline is installed.
	Timeout time.Duration
}

// KnowledgeGraph is the entity panel shown next to web results
type KnowledgeGraph struct {
	Title             string            `json:"title"`
	Type              string            `json:"type"`
	Website           string            `json:"website,omitempty"`
	ImageURL          string            `json:"imageUrl,omitempty"`
	Description       string            `json:"description,omitempty"`
	DescriptionSource string            `json:"descriptionSource,omitempty"`
	DescriptionLink   string            `json:"descriptionLink,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// Sitelink is a deep link listed under an organic result
type Sitelink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// OrganicResult represents a single web search result
type OrganicResult struct {
	Title      string            `json:"title"`
	Link       string            `json:"link"`
	Snippet    string            `json:"snippet"`
	Date       string            `json:"date,omitempty"`
	Position   int               `json:"position"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Sitelinks  []Sitelink        `json:"sitelinks,omitempty"`
}

// PeopleAlsoAsk is a related question with its answer snippet
type PeopleAlsoAsk struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet"`
	Title    string `json:"title"`
	Link     string `json:"link"`
}

// RelatedSearch is a suggested follow-up query
type RelatedSearch struct {
	Query string `json:"query"`
}

// NewsItem represents a single news search result
type NewsItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date"`
	Source   string `json:"source"`
	ImageURL string `json:"imageUrl,omitempty"`
	Position int    `json:"position"`
}

// WebSearchResult is the uniform shape of a web search
type WebSearchResult struct {
	KnowledgeGraph  *KnowledgeGraph `json:"knowledgeGraph,omitempty"`
	Organic         []OrganicResult `json:"organic"`
	PeopleAlsoAsk   []PeopleAlsoAsk `json:"peopleAlsoAsk,omitempty"`
	RelatedSearches []RelatedSearch `json:"relatedSearches,omitempty"`

	// Raw holds a success body that had no fields to narrow, as received
	Raw string `json:"raw,omitempty"`
}

// NewsSearchResult is the uniform shape of a news search
type NewsSearchResult struct {
	News []NewsItem `json:"news"`
	Raw  string     `json:"raw,omitempty"`
}

// WebPageResult is the uniform shape of a fetched page
type WebPageResult struct {
	Markdown string            `json:"markdown"`
	Metadata map[string]string `json:"metadata"`
}

// SearchBackend is the interface that all search providers must implement
type SearchBackend interface {
	// Name returns the name the provider was configured under
	Name() string

	// IsAvailable checks if the provider is properly configured
	IsAvailable() bool

	// SearchWeb performs a web search
	SearchWeb(ctx context.Context, query string, opts SearchOptions) (*WebSearchResult, error)

	// SearchNews performs a news search
	SearchNews(ctx context.Context, query string, opts SearchOptions) (*NewsSearchResult, error)

	// FetchPage returns the readable content of a page
	FetchPage(ctx context.Context, url string, opts PageOptions) (*WebPageResult, error)
}

// BackendError represents an error from a specific backend
type BackendError struct {
	Backend string
	Err     error
	Code    int // HTTP status code or custom error code
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error
func (e *BackendError) Unwrap() error {
	return e.Err
}

// FallbackError reports that the primary backend and every fallback failed.
// Errs holds one *BackendError per backend tried, primary first.
type FallbackError struct {
	Errs []error
}

func (e *FallbackError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "all backends failed:\n  " + strings.Join(msgs, "\n  ")
}

// Unwrap exposes every backend failure to errors.Is and errors.As
func (e *FallbackError) Unwrap() []error {
	return e.Errs
}

var errNotConfigured = errors.New("not configured")

// StatusCoder is implemented by errors that carry an HTTP status
type StatusCoder interface {
	HTTPStatus() int
}

// Error codes for backend failures that have no HTTP status
const (
	ErrCodeUnavailable = iota // Backend not configured
	ErrCodeNetwork            // Network/connectivity issue
)

func wrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	code := ErrCodeNetwork
	var sc StatusCoder
	if errors.As(err, &sc) {
		code = sc.HTTPStatus()
	}
	return &BackendError{Backend: backend, Err: err, Code: code}
}
