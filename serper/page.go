package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"serper/backends"
)

type scrapeRequest struct {
	URL             string `json:"url"`
	IncludeMarkdown bool   `json:"includeMarkdown"`
}

type scrapeResponse struct {
	Text     string       `json:"text"`
	Markdown string       `json:"markdown"`
	Metadata pageMetadata `json:"metadata"`
}

// pageMetadata flattens scrape metadata to strings. Non-string values keep
// their JSON encoding.
type pageMetadata map[string]string

func (m *pageMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(pageMetadata, len(raw))
	for k, v := range raw {
		if string(v) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	*m = out
	return nil
}

// readPage is readOutcome for the single-attempt scrape call: a failed body
// read is reported instead of leaving the body empty.
func readPage(resp *http.Response) (*Outcome, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Outcome{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// FetchPage scrapes url through the scrape endpoint and returns its markdown
// and metadata. It makes a single attempt; a positive opts.Timeout bounds it.
func (p *Provider) FetchPage(ctx context.Context, url string, opts backends.PageOptions) (*backends.WebPageResult, error) {
	res, err := p.fetchPage(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	return res, nil
}

func (p *Provider) fetchPage(ctx context.Context, url string, opts backends.PageOptions) (*backends.WebPageResult, error) {
	if url == "" {
		return nil, newValidationError(ErrURLRequired)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(scrapeRequest{URL: url, IncludeMarkdown: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ScrapeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = p.headers()

	resp, err := p.transport.HTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, err
	}

	out, err := readPage(resp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, err
	}
	raw, err := Interpret(out, "Serper scrape")
	if err != nil {
		return nil, err
	}
	var scraped scrapeResponse
	if err := raw.Decode(&scraped); err != nil {
		return nil, err
	}
	markdown := scraped.Markdown
	if markdown == "" {
		markdown = scraped.Text
	}
	if scraped.Metadata == nil {
		scraped.Metadata = pageMetadata{}
	}
	p.log.Debug().Str("url", url).Int("chars", len(markdown)).Msg("page fetched")
	return &backends.WebPageResult{
		Markdown: markdown,
		Metadata: scraped.Metadata,
	}, nil
}
