package serper

import (
	"bytes"
	"encoding/json"
)

// Interpret turns an Outcome into a RawResponse, or an *APIError when the
// status is not 2xx. A success body that is not JSON is returned as text.
func Interpret(out *Outcome, label string) (RawResponse, error) {
	text := out.Body
	var parsed json.RawMessage
	if trimmed := bytes.TrimSpace(text); len(trimmed) > 0 && json.Valid(trimmed) {
		parsed = json.RawMessage(trimmed)
	}

	if !out.OK() {
		apiErr := &APIError{
			Context:    label,
			StatusCode: out.StatusCode,
			Hint:       hintFor(out.StatusCode),
		}
		if parsed != nil {
			apiErr.Details = parsed
		} else {
			apiErr.Snippet = truncate(string(text), maxSnippetLength)
		}
		return RawResponse{}, apiErr
	}

	if parsed != nil {
		return RawResponse{JSON: parsed}, nil
	}
	return RawResponse{Text: string(text)}, nil
}
