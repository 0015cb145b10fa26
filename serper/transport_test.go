package serper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy
	for n, base := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second} {
		for i := 0; i < 100; i++ {
			d := p.Delay(n)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+250*time.Millisecond)
		}
	}
}

func TestRetryPolicy_DelayWithoutJitter(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 40*time.Millisecond, p.Delay(2))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{599, true},
		{600, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.status), "status %d", tt.status)
	}
}

func newTestTransport(rt http.RoundTripper, policy RetryPolicy) *Transport {
	return NewTransport(&http.Client{Transport: rt}, policy, zerolog.Nop())
}

func TestPostWithRetry_RetriesUntilSuccess(t *testing.T) {
	rt := script(
		scripted{500, `{"message":"boom"}`},
		scripted{500, `{"message":"boom"}`},
		scripted{500, `{"message":"boom"}`},
		scripted{200, `{"organic":[]}`},
	)

	out, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{"q":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 4, rt.calls())
	assert.Equal(t, 200, out.StatusCode)
	assert.JSONEq(t, `{"organic":[]}`, string(out.Body))
}

func TestPostWithRetry_DefaultBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default backoff")
	}
	rt := script(
		scripted{500, ``},
		scripted{500, ``},
		scripted{500, ``},
		scripted{200, `{}`},
	)

	start := time.Now()
	out, err := newTestTransport(rt, DefaultRetryPolicy).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{}`))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 200, out.StatusCode)
	assert.Equal(t, 4, rt.calls())
	assert.GreaterOrEqual(t, elapsed, 3500*time.Millisecond)
	// 3 jitters of at most 250ms, plus scheduling slack
	assert.Less(t, elapsed, 3500*time.Millisecond+750*time.Millisecond+500*time.Millisecond)
}

func TestPostWithRetry_ReturnsFinalRetryableOutcome(t *testing.T) {
	rt := script(scripted{503, `upstream unavailable`})

	out, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{}`))
	require.NoError(t, err, "a retryable status is an outcome, not an error")
	assert.Equal(t, 4, rt.calls())
	assert.Equal(t, 503, out.StatusCode)
	assert.Equal(t, "upstream unavailable", string(out.Body))
}

func TestPostWithRetry_NoRetryOnClientErrors(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404} {
		rt := script(scripted{status, `{"message":"nope"}`})

		out, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, 1, rt.calls(), "status %d", status)
		assert.Equal(t, status, out.StatusCode)
	}
}

func TestPostWithRetry_TransportFailure(t *testing.T) {
	rt := &scriptedTransport{err: errors.New("dial tcp: connection refused")}

	out, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{}`))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, rt.calls())
}

func TestPostWithRetry_SendsHeadersAndBody(t *testing.T) {
	rt := script(scripted{200, `{}`})
	header := http.Header{}
	header.Set("X-API-KEY", "secret")
	header.Set("Content-Type", "application/json")

	_, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/news", header, []byte(`{"q":"go"}`))
	require.NoError(t, err)

	req := rt.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://serper.test/news", req.URL)
	assert.Equal(t, "secret", req.Header.Get("X-API-KEY"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"q":"go"}`, string(req.Body))
}

func TestPostWithRetry_ResendsBodyOnRetry(t *testing.T) {
	rt := script(scripted{429, ``}, scripted{200, `{}`})

	_, err := newTestTransport(rt, fastRetry).PostWithRetry(context.Background(), "https://serper.test/search", nil, []byte(`{"q":"go"}`))
	require.NoError(t, err)
	require.Equal(t, 2, rt.calls())
	assert.JSONEq(t, `{"q":"go"}`, string(rt.requests[1].Body))
}

func TestPostWithRetry_CanceledDuringBackoff(t *testing.T) {
	rt := script(scripted{500, ``})
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newTestTransport(rt, policy).PostWithRetry(ctx, "https://serper.test/search", nil, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rt.calls())
}
