package serper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serper/backends"
)

func TestFetchPage_Success(t *testing.T) {
	rt := script(scripted{200, `{
		"text": "Example Domain",
		"markdown": "# Example Domain\n\nThis domain is for use in examples.",
		"metadata": {"title": "Example Domain", "viewport": "width=device-width", "statusCode": 200, "og:image": null},
		"credits": 1
	}`})
	p := newTestProvider(t, rt)

	res, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, "# Example Domain\n\nThis domain is for use in examples.", res.Markdown)
	assert.Equal(t, map[string]string{
		"title":      "Example Domain",
		"viewport":   "width=device-width",
		"statusCode": "200",
	}, res.Metadata)

	require.Equal(t, 1, rt.calls())
	req := rt.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, DefaultScrapeURL, req.URL)
	assert.Equal(t, "test-key", req.Header.Get("X-API-KEY"))
	assert.JSONEq(t, `{"url":"https://example.com","includeMarkdown":true}`, string(req.Body))
}

func TestFetchPage_MarkdownFallsBackToText(t *testing.T) {
	p := newTestProvider(t, script(scripted{200, `{"text": "only text"}`}))

	res, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, "only text", res.Markdown)
	assert.NotNil(t, res.Metadata)
}

func TestFetchPage_Timeout(t *testing.T) {
	p := newTestProvider(t, blockingTransport{})

	start := time.Now()
	_, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{Timeout: time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Contains(t, err.Error(), "request timeout")
	assert.Contains(t, err.Error(), "failed to fetch page")
}

func TestFetchPage_TimeoutWhileReadingBody(t *testing.T) {
	p := newTestProvider(t, stallingBodyTransport{})

	_, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Contains(t, err.Error(), "request timeout")
	assert.NotContains(t, err.Error(), "not JSON")
}

func TestFetchPage_NoTimeoutInstallsNoDeadline(t *testing.T) {
	var hasDeadline bool
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		_, hasDeadline = req.Context().Deadline()
		return script(scripted{200, `{"markdown":"ok"}`}).RoundTrip(req)
	})
	p := newTestProvider(t, rt)

	_, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{})
	require.NoError(t, err)
	assert.False(t, hasDeadline)
}

func TestFetchPage_IsNotRetried(t *testing.T) {
	rt := script(scripted{503, "unavailable"})
	p := newTestProvider(t, rt)

	_, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, rt.calls())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.Equal(t, "unavailable", apiErr.Snippet)
	assert.Contains(t, err.Error(), "failed to fetch page")
}

func TestFetchPage_TransportFailure(t *testing.T) {
	p := newTestProvider(t, &scriptedTransport{err: errors.New("connection reset")})

	_, err := p.FetchPage(context.Background(), "https://example.com", backends.PageOptions{Timeout: time.Second})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRequestTimeout)
	assert.Contains(t, err.Error(), "failed to fetch page")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFetchPage_EmptyURL(t *testing.T) {
	rt := script(scripted{200, `{}`})
	p := newTestProvider(t, rt)

	_, err := p.FetchPage(context.Background(), "", backends.PageOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrURLRequired)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, rt.calls())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
