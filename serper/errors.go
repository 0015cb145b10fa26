package serper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	// ErrQueryRequired is returned when a search is attempted without a query
	ErrQueryRequired = errors.New("query is required")
	// ErrURLRequired is returned when a page fetch is attempted without a URL
	ErrURLRequired = errors.New("url is required")
	// ErrAPIKeyRequired is returned when a provider is configured without a key
	ErrAPIKeyRequired = errors.New("apiKey is required")
	// ErrRequestTimeout is returned when a page fetch exceeds its timeout
	ErrRequestTimeout = errors.New("request timeout")
	// ErrUnexpectedBody is returned when a success body cannot be narrowed
	ErrUnexpectedBody = errors.New("response body is not JSON")
)

const (
	HintCheckAPIKey  = "check API key"
	HintReduceRate   = "reduce request rate"
	maxSnippetLength = 500
)

// Kind classifies an APIError by its HTTP status
type Kind int

const (
	KindHTTP       Kind = iota // any other failure status
	KindBadRequest             // 400 and local validation
	KindAuth                   // 401, 403
	KindNotFound               // 404
	KindRateLimit              // 429
	KindServer                 // 5xx
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not found"
	case KindRateLimit:
		return "rate limit"
	case KindServer:
		return "server"
	default:
		return "http"
	}
}

// KindOf derives the error kind from an HTTP status code
func KindOf(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindHTTP
	}
}

// hintFor returns the operator hint for a status, if any
func hintFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return HintCheckAPIKey
	case http.StatusTooManyRequests:
		return HintReduceRate
	default:
		return ""
	}
}

// APIError is a failed call classified by HTTP status. Details holds the
// error body when it was JSON, Snippet the first 500 characters otherwise.
type APIError struct {
	Context    string
	StatusCode int
	Hint       string
	Details    json.RawMessage
	Snippet    string

	err error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s failed (%d)", e.Context, e.StatusCode)
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns the underlying validation error, if any
func (e *APIError) Unwrap() error {
	return e.err
}

// Kind returns the status-derived classification
func (e *APIError) Kind() Kind {
	return KindOf(e.StatusCode)
}

// HTTPStatus returns the status code the error was classified from
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsValidation reports whether err is a local validation failure raised before
// any request was sent
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.err != nil && apiErr.StatusCode == http.StatusBadRequest
}

// truncate returns the prefix of s holding its first n characters. Invalid
// UTF-8 bytes count as one character each and are kept as is.
func truncate(s string, n int) string {
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
