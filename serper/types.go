package serper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultSearchURL = "https://google.serper.dev/search"
	DefaultNewsURL   = "https://google.serper.dev/news"
	DefaultScrapeURL = "https://scrape.serper.dev"
	DefaultTimeout   = 30 * time.Second
)

// Defaults are provider-wide fallback request parameters. Zero values are absent.
type Defaults struct {
	GL       string `toml:"gl,omitempty" yaml:"gl,omitempty" json:"gl,omitempty"`
	HL       string `toml:"hl,omitempty" yaml:"hl,omitempty" json:"hl,omitempty"`
	Location string `toml:"location,omitempty" yaml:"location,omitempty" json:"location,omitempty"`
	Num      int    `toml:"num,omitempty" yaml:"num,omitempty" json:"num,omitempty"`
	Page     int    `toml:"page,omitempty" yaml:"page,omitempty" json:"page,omitempty"` // 1-based
}

func (d Defaults) params() Params {
	p := Params{}
	p.setString("gl", d.GL)
	p.setString("hl", d.HL)
	p.setString("location", d.Location)
	p.setInt("num", d.Num)
	p.setInt("page", d.Page)
	return p
}

// SearchOptions are per-call parameters of a web search
type SearchOptions struct {
	GL          string
	HL          string
	Location    string
	Num         int
	Page        int
	Autocorrect *bool
	ExtraParams map[string]any
}

func (o SearchOptions) overrides() Params {
	p := Defaults{GL: o.GL, HL: o.HL, Location: o.Location, Num: o.Num, Page: o.Page}.params()
	if o.Autocorrect != nil {
		p["autocorrect"] = *o.Autocorrect
	}
	for k, v := range o.ExtraParams {
		p[k] = v
	}
	p["type"] = "search"
	return p
}

// NewsOptions are per-call parameters of a news search
type NewsOptions struct {
	GL       string
	HL       string
	Location string
	Num      int
	Page     int
	// TimeRange is a Google tbs value such as "qdr:h"
	TimeRange   string
	ExtraParams map[string]any
}

func (o NewsOptions) overrides() Params {
	p := Defaults{GL: o.GL, HL: o.HL, Location: o.Location, Num: o.Num, Page: o.Page}.params()
	p.setString("tbs", o.TimeRange)
	for k, v := range o.ExtraParams {
		p[k] = v
	}
	p["type"] = "news"
	return p
}

// Params is a request body: parameter name to scalar value
type Params map[string]any

func (p Params) setString(key, v string) {
	if v != "" {
		p[key] = v
	}
}

func (p Params) setInt(key string, v int) {
	if v != 0 {
		p[key] = v
	}
}

// Outcome is the raw result of one HTTP attempt
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx
func (o *Outcome) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// RawResponse is an undecoded provider response. JSON holds a valid JSON
// document; Text holds a success body that was not JSON. Both are empty for an
// empty body.
type RawResponse struct {
	JSON json.RawMessage
	Text string
}

// IsJSON reports whether the response carried a JSON document
func (r RawResponse) IsJSON() bool {
	return len(r.JSON) > 0
}

// IsEmpty reports whether the response body was empty
func (r RawResponse) IsEmpty() bool {
	return len(r.JSON) == 0 && r.Text == ""
}

// Decode unmarshals the JSON document into v
func (r RawResponse) Decode(v any) error {
	if !r.IsJSON() {
		return fmt.Errorf("%w: %q", ErrUnexpectedBody, truncate(r.Text, 80))
	}
	return json.Unmarshal(r.JSON, v)
}

// Bytes returns the body as received
func (r RawResponse) Bytes() []byte {
	if r.IsJSON() {
		return r.JSON
	}
	return []byte(r.Text)
}

// MarshalJSON writes the JSON document as is, or the text as a JSON string
func (r RawResponse) MarshalJSON() ([]byte, error) {
	if r.IsJSON() {
		return r.JSON, nil
	}
	return json.Marshal(r.Text)
}
