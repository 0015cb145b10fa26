package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serper/backends"
	"serper/pagereader"
	"serper/serper"
	"serper/tools"
)

func TestValidateTimeRange(t *testing.T) {
	valid := []string{"hour", "day", "week", "month", "year", "h", "d", "w", "m", "y"}
	for _, tr := range valid {
		if !validateTimeRange(tr) {
			t.Errorf("validateTimeRange(%q) should be true", tr)
		}
	}

	invalid := []string{"invalid", "decade", "qdr:h", ""}
	for _, tr := range invalid {
		if validateTimeRange(tr) {
			t.Errorf("validateTimeRange(%q) should be false", tr)
		}
	}
}

func TestExpandTimeRange(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"h", "hour"},
		{"d", "day"},
		{"w", "week"},
		{"m", "month"},
		{"y", "year"},
		{"day", "day"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		if got := expandTimeRange(tt.input); got != tt.want {
			t.Errorf("expandTimeRange(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTimeRangeToTBS(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"h", "qdr:h"},
		{"hour", "qdr:h"},
		{"week", "qdr:w"},
		{"m", "qdr:m"},
		{"year", "qdr:y"},
	}
	for _, tt := range tests {
		if got := timeRangeToTBS(tt.input); got != tt.want {
			t.Errorf("timeRangeToTBS(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTopLimit(t *testing.T) {
	assert.Equal(t, 5, topLimit(0))
	assert.Equal(t, 3, topLimit(3))
	assert.Equal(t, 5, topLimit(10))
}

// fakeSerper records the bodies it receives and answers from the path
type fakeSerper struct {
	mu       sync.Mutex
	payloads []map[string]any
	status   int
}

func (f *fakeSerper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	json.Unmarshal(body, &payload)
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		io.WriteString(w, `{"message":"Unauthorized."}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/search":
		io.WriteString(w, `{
			"searchParameters": {"q": "golang"},
			"knowledgeGraph": {"title": "Go"},
			"organic": [
				{"title": "One", "link": "https://one.example"},
				{"title": "Two", "link": "https://two.example"},
				{"title": "", "link": "https://three.example"},
				{"title": "Four", "link": "https://four.example"},
				{"title": "Five", "link": "https://five.example"},
				{"title": "Six", "link": "https://six.example"}
			],
			"credits": 1
		}`)
	case "/news":
		io.WriteString(w, `{"news": [{"title": "Go 1.25", "link": "https://go.dev/blog", "source": "Go Blog"}]}`)
	case "/scrape":
		io.WriteString(w, `{"markdown": "# Hello", "metadata": {"title": "Hello Page"}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSerper) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func newTestApp(t *testing.T, handler http.Handler) (*app, *bytes.Buffer) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	config = getDefaultConfig()
	color.NoColor = true

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := serper.New("serper", serper.Config{
		APIKey:    "test-key",
		SearchURL: server.URL + "/search",
		NewsURL:   server.URL + "/news",
		ScrapeURL: server.URL + "/scrape",
		Retry:     &serper.RetryPolicy{MaxRetries: 3},
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	a := &app{
		manager: backends.NewManager(),
		tools:   tools.NewRegistry(),
		reader:  pagereader.New(pagereader.Config{AllowPrivateHosts: true}),
		history: newHistoryStore(config),
		log:     zerolog.Nop(),
		out:     out,
	}
	a.manager.Register(p)
	require.NoError(t, a.selectProvider(""))
	return a, out
}

func TestRunSerp_PrintsTopResults(t *testing.T) {
	fake := &fakeSerper{}
	a, out := newTestApp(t, fake)

	require.NoError(t, a.runSerp(context.Background(), "golang", SearchOptions{Country: "us"}))

	want := strings.Join([]string{
		"Top results:",
		"- One https://one.example",
		"- Two https://two.example",
		"- (no title) https://three.example",
		"- Four https://four.example",
		"- Five https://five.example",
		"knowledgeGraph present",
		"",
	}, "\n")
	assert.Equal(t, want, out.String())
	assert.Equal(t, "us", fake.last()["gl"])
	assert.Equal(t, "search", fake.last()["type"])

	entries, err := a.history.entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "serp", entries[0].Kind)
	assert.Equal(t, "golang", entries[0].Query)
}

func TestRunSerp_EmptyQuery(t *testing.T) {
	fake := &fakeSerper{}
	a, _ := newTestApp(t, fake)

	err := a.runSerp(context.Background(), "   ", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: serper serp <query>")
	assert.Empty(t, fake.payloads)
}

func TestRunSerp_SaveWritesRawJSON(t *testing.T) {
	fake := &fakeSerper{}
	a, out := newTestApp(t, fake)
	path := filepath.Join(t.TempDir(), "serp.json")

	require.NoError(t, a.runSerp(context.Background(), "golang", SearchOptions{SaveFile: path, Num: 2, Autocorrect: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"credits": 1`, "raw response keeps fields dropped by narrowing")
	assert.Contains(t, string(data), "\n  ", "saved JSON is pretty printed")

	assert.Contains(t, out.String(), "- One https://one.example\n- Two https://two.example\n")
	assert.NotContains(t, out.String(), "Four")
	assert.Contains(t, out.String(), "Saved raw JSON to "+path)
	assert.Equal(t, true, fake.last()["autocorrect"])
}

func TestRunSerp_JSONOutput(t *testing.T) {
	a, out := newTestApp(t, &fakeSerper{})

	require.NoError(t, a.runSerp(context.Background(), "golang", SearchOptions{JSON: true}))

	var res backends.WebSearchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Len(t, res.Organic, 6)
}

func TestRunSerp_APIError(t *testing.T) {
	a, _ := newTestApp(t, &fakeSerper{status: http.StatusUnauthorized})

	err := a.runSerp(context.Background(), "golang", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check API key")
}

func TestRunNews_TimeRange(t *testing.T) {
	fake := &fakeSerper{}
	a, out := newTestApp(t, fake)

	require.NoError(t, a.runNews(context.Background(), "golang", SearchOptions{TimeRange: "w"}))

	assert.Equal(t, "Top news:\n- Go 1.25 [Go Blog] https://go.dev/blog\n", out.String())
	assert.Equal(t, "qdr:w", fake.last()["tbs"])
	assert.Equal(t, "news", fake.last()["type"])
}

func TestRunNews_InvalidTimeRange(t *testing.T) {
	fake := &fakeSerper{}
	a, _ := newTestApp(t, fake)

	err := a.runNews(context.Background(), "golang", SearchOptions{TimeRange: "decade"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time range")
	assert.Empty(t, fake.payloads)
}

func TestRunNews_ThroughManager(t *testing.T) {
	fake := &fakeSerper{}
	a, out := newTestApp(t, fake)

	require.NoError(t, a.runNews(context.Background(), "golang", SearchOptions{}))
	assert.Contains(t, out.String(), "[Go Blog]")
	assert.NotContains(t, fake.last(), "tbs")
}

func TestRunPage(t *testing.T) {
	a, out := newTestApp(t, &fakeSerper{})

	require.NoError(t, a.runPage(context.Background(), "https://example.com", PageOptions{Timeout: 5}))
	assert.Equal(t, "Hello Page\n\n# Hello\n", out.String())
}

func TestRunPage_Direct(t *testing.T) {
	a, out := newTestApp(t, &fakeSerper{})
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "direct body")
	}))
	defer site.Close()

	require.NoError(t, a.runPage(context.Background(), site.URL, PageOptions{Direct: true, JSON: true}))

	var res backends.WebPageResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "direct body", res.Markdown)
}

func TestSelectProvider(t *testing.T) {
	a, _ := newTestApp(t, &fakeSerper{})

	assert.Equal(t, "serper", a.manager.Primary())
	assert.Error(t, a.selectProvider("missing"))

	empty := &app{manager: backends.NewManager()}
	assert.ErrorIs(t, empty.selectProvider(""), errNoProvider)
}
