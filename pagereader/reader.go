// Package pagereader fetches a page directly and converts its main content to
// markdown. It backs the page command when the scrape endpoint is bypassed.
package pagereader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"serper/backends"
	"serper/serper"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultMaxBytes  = 4 << 20
)

// ErrURLNotAllowed is returned for non-http(s) URLs and, unless allowed,
// loopback and private network hosts
var ErrURLNotAllowed = errors.New("url not allowed")

// Config configures a Reader
type Config struct {
	UserAgent string
	MaxBytes  int64
	// AllowPrivateHosts permits localhost and private network addresses
	AllowPrivateHosts bool
	// HTTPClient replaces the default client, which refuses to dial blocked
	// addresses. Only the URL check applies to a custom client.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Reader fetches pages without going through Serper
type Reader struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New creates a Reader
func New(cfg Config) *Reader {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	client := cfg.HTTPClient
	switch {
	case client != nil:
	case cfg.AllowPrivateHosts:
		client = &http.Client{}
	default:
		client = newGuardedClient()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("reader", "direct").Logger()
	}
	return &Reader{cfg: cfg, client: client, log: log}
}

// FetchPage downloads rawURL and returns the readable part of it as markdown.
// A positive opts.Timeout bounds the whole fetch.
func (r *Reader) FetchPage(ctx context.Context, rawURL string, opts backends.PageOptions) (*backends.WebPageResult, error) {
	res, err := r.fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	return res, nil
}

func (r *Reader) fetch(ctx context.Context, rawURL string, opts backends.PageOptions) (*backends.WebPageResult, error) {
	if rawURL == "" {
		return nil, serper.ErrURLRequired
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if !r.allowed(pageURL) {
		return nil, fmt.Errorf("%w: %s", ErrURLNotAllowed, rawURL)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, serper.ErrRequestTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, serper.ErrRequestTimeout
		}
		return nil, err
	}

	out := &serper.Outcome{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if !out.OK() {
		_, err := serper.Interpret(out, "Page fetch")
		return nil, err
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	contentType := normalizeContentType(resp.Header.Get("Content-Type"))

	var res *backends.WebPageResult
	if strings.Contains(contentType, "html") {
		res, err = convertHTML(body, finalURL)
		if err != nil {
			return nil, err
		}
	} else {
		res = &backends.WebPageResult{
			Markdown: string(body),
			Metadata: map[string]string{},
		}
	}
	res.Metadata["url"] = finalURL.String()
	res.Metadata["contentType"] = contentType
	res.Metadata["statusCode"] = strconv.Itoa(resp.StatusCode)

	r.log.Debug().
		Str("url", finalURL.String()).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("page fetched")
	return res, nil
}

// convertHTML extracts the main article of a page and renders it as markdown.
// Metadata comes from OpenGraph tags with the document head as fallback.
func convertHTML(body []byte, pageURL *url.URL) (*backends.WebPageResult, error) {
	meta := map[string]string{}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err == nil {
		setMeta(meta, "title", og.Title)
		setMeta(meta, "description", og.Description)
		setMeta(meta, "siteName", og.SiteName)
		setMeta(meta, "type", og.Type)
		if len(og.Images) > 0 && og.Images[0] != nil {
			setMeta(meta, "image", og.Images[0].URL)
		}
	}

	content := string(body)
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		content = article.Content
		setMeta(meta, "title", article.Title)
		setMeta(meta, "description", article.Excerpt)
		setMeta(meta, "siteName", article.SiteName)
		setMeta(meta, "image", article.Image)
		setMeta(meta, "byline", article.Byline)
	}

	if meta["title"] == "" || meta["description"] == "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			setMeta(meta, "title", extractTitle(doc))
			setMeta(meta, "description", extractDescription(doc))
		}
	}

	converter := md.NewConverter(pageURL.Host, true, nil)
	markdown, err := converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	return &backends.WebPageResult{
		Markdown: strings.TrimSpace(markdown),
		Metadata: meta,
	}, nil
}

// setMeta sets key unless it is already set or value is blank
func setMeta(meta map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" || meta[key] != "" {
		return
	}
	meta[key] = value
}

func extractTitle(doc *goquery.Document) string {
	if title := doc.Find("title").First().Text(); title != "" {
		return title
	}
	return doc.Find("h1").First().Text()
}

func extractDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return desc
	}
	return ""
}

func normalizeContentType(value string) string {
	if value == "" {
		return "application/octet-stream"
	}
	parts := strings.Split(value, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

var blockedCIDRs = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("0.0.0.0/8"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("::/128"),
	mustParseCIDR("fc00::/7"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(value string) *net.IPNet {
	_, parsed, err := net.ParseCIDR(value)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", value, err))
	}
	return parsed
}

func (r *Reader) allowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	if r.cfg.AllowPrivateHosts {
		return true
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return false
	}
	return true
}

func blockedIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// dialControl rejects connections to blocked addresses after name resolution,
// so hostnames that resolve to private networks and redirects to them fail too
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrURLNotAllowed, host)
	}
	return nil
}

func newGuardedClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport}
}
