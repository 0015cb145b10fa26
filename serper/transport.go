package serper

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const maxBodySize = 8 << 20

// RetryPolicy controls how transient failures are retried
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // wait before the first retry, doubled after each
	MaxJitter  time.Duration // upper bound (exclusive) of random delay added to each wait
}

// DefaultRetryPolicy makes at most 4 attempts, waiting 500ms, 1s and 2s plus up to 250ms
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxJitter:  250 * time.Millisecond,
}

// Delay returns the wait before retry n (0-based)
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay << uint(n)
	if p.MaxJitter > 0 {
		d += rand.N(p.MaxJitter)
	}
	return d
}

// Retryable reports whether a response status is worth another attempt
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// Transport issues POST requests and retries 429 and 5xx responses with
// exponential backoff. It never turns an HTTP status into an error.
type Transport struct {
	client *retryablehttp.Client
	log    zerolog.Logger
}

// NewTransport creates a Transport that sends every attempt through hc
func NewTransport(hc *http.Client, policy RetryPolicy, log zerolog.Logger) *Transport {
	t := &Transport{log: log}
	t.client = &retryablehttp.Client{
		HTTPClient:   hc,
		Logger:       leveledLogger{log},
		RetryWaitMin: policy.BaseDelay,
		RetryWaitMax: policy.BaseDelay << uint(max(policy.MaxRetries, 0)),
		RetryMax:     policy.MaxRetries,
		CheckRetry:   checkRetry,
		Backoff: func(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
			wait := policy.Delay(attempt)
			if resp != nil {
				t.log.Warn().
					Int("status", resp.StatusCode).
					Int("retry", attempt+1).
					Dur("wait", wait).
					Msg("retrying request")
			}
			return wait
		},
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			t.log.Debug().Str("url", req.URL.String()).Int("attempt", attempt).Msg("sending request")
		},
	}
	return t
}

// HTTPClient returns the client used for single attempts
func (t *Transport) HTTPClient() *http.Client {
	return t.client.HTTPClient
}

// PostWithRetry sends body to url and returns the final attempt's outcome.
// An error is returned only when the request could not be sent at all.
func (t *Transport) PostWithRetry(ctx context.Context, url string, header http.Header, body []byte) (*Outcome, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return readOutcome(resp), nil
}

// readOutcome consumes and closes the response body. Read failures leave the
// body empty.
func readOutcome(resp *http.Response) *Outcome {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		body = nil
	}
	return &Outcome{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return Retryable(resp.StatusCode), nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Info().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
