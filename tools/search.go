package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"serper/backends"
	"serper/serper"
)

const (
	GoogleSerpSearchName = "serper/googleSerpSearch"
	GoogleNewsSearchName = "serper/googleNewsSearch"
)

// Searcher is the part of the Serper provider the tools call
type Searcher interface {
	GoogleSearch(ctx context.Context, query string, opts serper.SearchOptions) (*backends.WebSearchResult, error)
	GoogleNews(ctx context.Context, query string, opts serper.NewsOptions) (*backends.NewsSearchResult, error)
}

const commonProperties = `
		"query": {"type": "string", "minLength": 1, "description": "Search query"},
		"gl": {"type": "string", "description": "Country code, e.g. 'us'"},
		"hl": {"type": "string", "description": "Language code, e.g. 'en'"},
		"location": {"type": "string", "description": "Free-form location string"},
		"num": {"type": "integer", "minimum": 1, "description": "Number of results"},
		"page": {"type": "integer", "minimum": 1, "description": "Page number (1-based)"},
		"extraParams": {
			"type": "object",
			"additionalProperties": {"type": ["string", "number", "boolean"]},
			"description": "Additional request params"
		}`

var (
	serpSchema = newInputSchema(`{
	"type": "object",
	"properties": {` + commonProperties + `,
		"autocorrect": {"type": "boolean", "description": "Enable autocorrect"}
	},
	"required": ["query"]
}`)

	newsSchema = newInputSchema(`{
	"type": "object",
	"properties": {` + commonProperties + `
	},
	"required": ["query"]
}`)
)

type searchArgs struct {
	Query       string         `json:"query"`
	GL          string         `json:"gl"`
	HL          string         `json:"hl"`
	Location    string         `json:"location"`
	Num         int            `json:"num"`
	Page        int            `json:"page"`
	Autocorrect *bool          `json:"autocorrect"`
	ExtraParams map[string]any `json:"extraParams"`
}

type toolResult[T any] struct {
	Results T `json:"results"`
}

// searchTool holds what both search tools share
type searchTool struct {
	name        string
	description string
	schema      *inputSchema
	searcher    Searcher
	log         zerolog.Logger
}

func (t *searchTool) Name() string                 { return t.name }
func (t *searchTool) Description() string          { return t.description }
func (t *searchTool) InputSchema() json.RawMessage { return t.schema.raw }

// parse decodes and validates args. Errors are prefixed with the tool name.
func (t *searchTool) parse(args json.RawMessage) (searchArgs, error) {
	var a searchArgs
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return a, t.errorf("invalid arguments: %v", err)
	}
	if a.Query == "" {
		return a, t.errorf("query is required")
	}
	violations, err := t.schema.validate(args)
	if err != nil {
		return a, t.errorf("%v", err)
	}
	if len(violations) > 0 {
		return a, t.errorf("invalid arguments: %s", strings.Join(violations, "; "))
	}
	return a, nil
}

func (t *searchTool) errorf(format string, args ...any) error {
	return fmt.Errorf("[%s] "+format, append([]any{t.name}, args...)...)
}

func encodeResult[T any](t *searchTool, results T) (string, error) {
	out, err := json.Marshal(toolResult[T]{Results: results})
	if err != nil {
		return "", t.errorf("encoding results: %v", err)
	}
	return string(out), nil
}

// GoogleSerpSearch is the structured Google web search tool
type GoogleSerpSearch struct {
	searchTool
}

// NewGoogleSerpSearch creates the web search tool
func NewGoogleSerpSearch(s Searcher, log zerolog.Logger) *GoogleSerpSearch {
	return &GoogleSerpSearch{searchTool{
		name:        GoogleSerpSearchName,
		description: "Google SERP structured search via Serper.dev. Returns structured JSON.",
		schema:      serpSchema,
		searcher:    s,
		log:         log,
	}}
}

func (t *GoogleSerpSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	a, err := t.parse(args)
	if err != nil {
		return "", err
	}

	t.log.Info().Str("tool", t.name).Msgf("Searching: %s", a.Query)
	res, err := t.searcher.GoogleSearch(ctx, a.Query, serper.SearchOptions{
		GL:          a.GL,
		HL:          a.HL,
		Location:    a.Location,
		Num:         a.Num,
		Page:        a.Page,
		Autocorrect: a.Autocorrect,
		ExtraParams: a.ExtraParams,
	})
	if err != nil {
		return "", t.errorf("%v", err)
	}
	if res.Raw != "" {
		return encodeResult(&t.searchTool, res.Raw)
	}
	return encodeResult(&t.searchTool, res)
}

// GoogleNewsSearch is the structured Google News search tool
type GoogleNewsSearch struct {
	searchTool
}

// NewGoogleNewsSearch creates the news search tool
func NewGoogleNewsSearch(s Searcher, log zerolog.Logger) *GoogleNewsSearch {
	return &GoogleNewsSearch{searchTool{
		name:        GoogleNewsSearchName,
		description: "Google News structured search via Serper.dev. Returns structured JSON.",
		schema:      newsSchema,
		searcher:    s,
		log:         log,
	}}
}

func (t *GoogleNewsSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	a, err := t.parse(args)
	if err != nil {
		return "", err
	}

	t.log.Info().Str("tool", t.name).Msgf("Searching: %s", a.Query)
	res, err := t.searcher.GoogleNews(ctx, a.Query, serper.NewsOptions{
		GL:          a.GL,
		HL:          a.HL,
		Location:    a.Location,
		Num:         a.Num,
		Page:        a.Page,
		ExtraParams: a.ExtraParams,
	})
	if err != nil {
		return "", t.errorf("%v", err)
	}
	if res.Raw != "" {
		return encodeResult(&t.searchTool, res.Raw)
	}
	return encodeResult(&t.searchTool, res)
}
