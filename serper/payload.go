package serper

import (
	"fmt"
	"net/http"
)

// PayloadBuilder merges the query, the configured defaults and per-call
// overrides into a request body.
type PayloadBuilder struct {
	Defaults Defaults
}

// Build returns {q} overlaid with the defaults and then the overrides. Keys
// whose final value is nil or "" are dropped. An empty query fails before any
// request is made.
func (b PayloadBuilder) Build(query string, overrides Params) (Params, error) {
	if query == "" {
		return nil, newValidationError(ErrQueryRequired)
	}

	merged := Params{"q": query}
	for k, v := range b.Defaults.params() {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	for k, v := range merged {
		switch val := v.(type) {
		case nil:
			delete(merged, k)
		case string:
			if val == "" {
				delete(merged, k)
			}
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		default:
			return nil, newValidationError(fmt.Errorf("parameter %q: unsupported value type %T", k, v))
		}
	}
	if _, ok := merged["q"]; !ok {
		return nil, newValidationError(ErrQueryRequired)
	}
	return merged, nil
}

func newValidationError(err error) *APIError {
	return &APIError{
		Context:    "build request",
		StatusCode: http.StatusBadRequest,
		Snippet:    err.Error(),
		err:        err,
	}
}
