package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"serper/backends"
	"serper/serper"
)

// SearchOptions holds the flags shared by the serp and news commands
type SearchOptions struct {
	Country     string
	Language    string
	Location    string
	Num         int
	Page        int
	Autocorrect bool
	TimeRange   string
	JSON        bool
	SaveFile    string
}

// PageOptions holds the flags of the page command
type PageOptions struct {
	Direct  bool
	Timeout float64
	JSON    bool
}

const topResults = 5

var (
	timeRangeOptions      = []string{"hour", "day", "week", "month", "year"}
	timeRangeShortOptions = []string{"h", "d", "w", "m", "y"}
)

var errNoProvider = errors.New("no Serper provider configured (set SERPER_API_KEY or add one to the config file)")

// rawSearcher is the part of serper.Provider that returns bodies before narrowing
type rawSearcher interface {
	GoogleSearchRaw(ctx context.Context, query string, opts serper.SearchOptions) (serper.RawResponse, error)
	GoogleNewsRaw(ctx context.Context, query string, opts serper.NewsOptions) (serper.RawResponse, error)
}

func validateTimeRange(timeRange string) bool {
	for _, tr := range timeRangeOptions {
		if tr == timeRange {
			return true
		}
	}
	for _, tr := range timeRangeShortOptions {
		if tr == timeRange {
			return true
		}
	}
	return false
}

func expandTimeRange(timeRange string) string {
	switch timeRange {
	case "h":
		return "hour"
	case "d":
		return "day"
	case "w":
		return "week"
	case "m":
		return "month"
	case "y":
		return "year"
	default:
		return timeRange
	}
}

// timeRangeToTBS converts a time range to the Google tbs filter, e.g. week to qdr:w
func timeRangeToTBS(timeRange string) string {
	if timeRange == "" {
		return ""
	}
	return "qdr:" + expandTimeRange(timeRange)[:1]
}

// topLimit is the number of results printed: 5, or fewer when --num asks for fewer
func topLimit(num int) int {
	if num > 0 && num < topResults {
		return num
	}
	return topResults
}

func (o SearchOptions) backendOptions() backends.SearchOptions {
	return backends.SearchOptions{
		CountryCode: o.Country,
		Language:    o.Language,
		Location:    o.Location,
		Num:         o.Num,
		Page:        o.Page,
	}
}

func (o SearchOptions) webOptions() serper.SearchOptions {
	opts := serper.SearchOptions{
		GL:       o.Country,
		HL:       o.Language,
		Location: o.Location,
		Num:      o.Num,
		Page:     o.Page,
	}
	if o.Autocorrect {
		autocorrect := true
		opts.Autocorrect = &autocorrect
	}
	return opts
}

func (o SearchOptions) newsOptions() serper.NewsOptions {
	return serper.NewsOptions{
		GL:        o.Country,
		HL:        o.Language,
		Location:  o.Location,
		Num:       o.Num,
		Page:      o.Page,
		TimeRange: timeRangeToTBS(o.TimeRange),
	}
}

// runSerp runs a web search. Without provider-specific flags the manager
// dispatches it so configured fallbacks apply; --save and --autocorrect go to
// the selected provider directly.
func (a *app) runSerp(ctx context.Context, query string, opts SearchOptions) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("usage: serper serp <query> [flags]")
	}
	if err := a.history.add("serp", query); err != nil {
		a.log.Debug().Err(err).Msg("failed to record history")
	}

	var res *backends.WebSearchResult
	if opts.SaveFile != "" || opts.Autocorrect {
		s, err := a.rawSearcher()
		if err != nil {
			return err
		}
		raw, err := s.GoogleSearchRaw(ctx, query, opts.webOptions())
		if err != nil {
			return err
		}
		if opts.SaveFile != "" {
			if err := saveRawJSON(opts.SaveFile, raw); err != nil {
				return err
			}
		}
		if res, err = serper.NarrowSearch(raw); err != nil {
			return err
		}
	} else {
		var (
			name string
			err  error
		)
		res, name, err = a.manager.SearchWeb(ctx, query, opts.backendOptions())
		if err != nil {
			return err
		}
		a.log.Debug().Str("provider", name).Msg("search answered")
	}

	if opts.JSON {
		return printJSON(a.out, res)
	}
	printWebResults(a.out, res, topLimit(opts.Num))
	if opts.SaveFile != "" {
		fmt.Fprintf(a.out, "Saved raw JSON to %s\n", opts.SaveFile)
	}
	return nil
}

// runNews runs a news search. A --time-range or --save sends it to the
// selected provider directly.
func (a *app) runNews(ctx context.Context, query string, opts SearchOptions) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("usage: serper news <query> [flags]")
	}
	if opts.TimeRange != "" && !validateTimeRange(opts.TimeRange) {
		return fmt.Errorf("invalid time range '%s'. Use: %s",
			opts.TimeRange, strings.Join(timeRangeOptions, ", "))
	}
	if err := a.history.add("news", query); err != nil {
		a.log.Debug().Err(err).Msg("failed to record history")
	}

	var res *backends.NewsSearchResult
	if opts.SaveFile != "" || opts.TimeRange != "" {
		s, err := a.rawSearcher()
		if err != nil {
			return err
		}
		raw, err := s.GoogleNewsRaw(ctx, query, opts.newsOptions())
		if err != nil {
			return err
		}
		if opts.SaveFile != "" {
			if err := saveRawJSON(opts.SaveFile, raw); err != nil {
				return err
			}
		}
		if res, err = serper.NarrowNews(raw); err != nil {
			return err
		}
	} else {
		var (
			name string
			err  error
		)
		res, name, err = a.manager.SearchNews(ctx, query, opts.backendOptions())
		if err != nil {
			return err
		}
		a.log.Debug().Str("provider", name).Msg("news search answered")
	}

	if opts.JSON {
		return printJSON(a.out, res)
	}
	printNewsResults(a.out, res, topLimit(opts.Num))
	if opts.SaveFile != "" {
		fmt.Fprintf(a.out, "Saved raw JSON to %s\n", opts.SaveFile)
	}
	return nil
}

// runPage fetches a page through the scrape endpoint, or directly with --direct
func (a *app) runPage(ctx context.Context, url string, opts PageOptions) error {
	pageOpts := backends.PageOptions{Timeout: secondsToDuration(opts.Timeout)}

	var (
		res *backends.WebPageResult
		err error
	)
	if opts.Direct {
		res, err = a.reader.FetchPage(ctx, url, pageOpts)
	} else {
		var b backends.SearchBackend
		if b, err = a.manager.Use(a.manager.Primary()); err != nil {
			return err
		}
		res, err = b.FetchPage(ctx, url, pageOpts)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(a.out, res)
	}
	printPage(a.out, res)
	return nil
}

func (a *app) rawSearcher() (rawSearcher, error) {
	b, err := a.manager.Use(a.manager.Primary())
	if err != nil {
		return nil, err
	}
	s, ok := b.(rawSearcher)
	if !ok {
		return nil, fmt.Errorf("provider %s does not return raw responses", b.Name())
	}
	return s, nil
}
