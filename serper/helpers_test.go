package serper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fastRetry keeps the retry shape of DefaultRetryPolicy without the waits
var fastRetry = RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

type scripted struct {
	status int
	body   string
}

type recordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// scriptedTransport answers each round trip with the next scripted response,
// repeating the last one once the script runs out
type scriptedTransport struct {
	mu        sync.Mutex
	responses []scripted
	err       error
	requests  []recordedRequest
}

func script(responses ...scripted) *scriptedTransport {
	return &scriptedTransport{responses: responses}
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, recordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	if s.err != nil {
		return nil, s.err
	}

	r := s.responses[min(len(s.requests)-1, len(s.responses)-1)]
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedTransport) lastPayload(t *testing.T) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(s.requests[len(s.requests)-1].Body, &payload))
	return payload
}

// blockingTransport never answers; it returns once the request is canceled
type blockingTransport struct{}

func (blockingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

// stallingBodyTransport answers 200 at once but its body blocks until the
// request is canceled
type stallingBodyTransport struct{}

func (stallingBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(stallingReader{req.Context()}),
		Request:    req,
	}, nil
}

type stallingReader struct{ ctx context.Context }

func (r stallingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func newTestProvider(t *testing.T, rt http.RoundTripper, mutate ...func(*Config)) *Provider {
	t.Helper()
	retry := fastRetry
	cfg := Config{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
		Retry:      &retry,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := New("serper", cfg)
	require.NoError(t, err)
	return p
}
