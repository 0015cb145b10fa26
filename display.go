package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"serper/backends"
	"serper/serper"
)

const maxContentWords = 128

func printWebResults(w io.Writer, res *backends.WebSearchResult, limit int) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	dim := color.New(color.FgHiBlack)

	if res.Raw != "" {
		fmt.Fprintln(w, res.Raw)
		return
	}

	organic := res.Organic
	if len(organic) > limit {
		organic = organic[:limit]
	}

	if len(organic) == 0 {
		fmt.Fprintln(w, "No organic results.")
	} else {
		bold.Fprintln(w, "Top results:")
		for _, item := range organic {
			fmt.Fprintf(w, "- %s %s\n", green.Sprint(orNoTitle(item.Title)), cyan.Sprint(item.Link))
			if item.Snippet != "" {
				for _, line := range wrapText(formatContent(item.Snippet), getTerminalWidth()-4) {
					fmt.Fprintf(w, "  %s\n", dim.Sprint(line))
				}
			}
		}
	}
	if res.KnowledgeGraph != nil {
		fmt.Fprintln(w, "knowledgeGraph present")
	}
	if len(res.PeopleAlsoAsk) > 0 {
		fmt.Fprintln(w, "peopleAlsoAsk present")
	}
}

func printNewsResults(w io.Writer, res *backends.NewsSearchResult, limit int) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	dim := color.New(color.FgHiBlack)

	if res.Raw != "" {
		fmt.Fprintln(w, res.Raw)
		return
	}

	news := res.News
	if len(news) > limit {
		news = news[:limit]
	}

	if len(news) == 0 {
		fmt.Fprintln(w, "No news items.")
		return
	}
	bold.Fprintln(w, "Top news:")
	for _, item := range news {
		fmt.Fprintf(w, "- %s %s %s\n",
			green.Sprint(orNoTitle(item.Title)),
			yellow.Sprintf("[%s]", item.Source),
			cyan.Sprint(item.Link),
		)
		if item.Date != "" {
			fmt.Fprintf(w, "  %s\n", dim.Sprint(item.Date))
		}
	}
}

func printPage(w io.Writer, res *backends.WebPageResult) {
	dim := color.New(color.FgHiBlack)
	bold := color.New(color.Bold)

	if title := res.Metadata["title"]; title != "" {
		bold.Fprintln(w, title)
	}
	keys := make([]string, 0, len(res.Metadata))
	for k := range res.Metadata {
		if k != "title" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(w, dim.Sprintf("%s: %s", k, res.Metadata[k]))
	}
	if len(res.Metadata) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, res.Markdown)
}

func orNoTitle(title string) string {
	if title == "" {
		return "(no title)"
	}
	return title
}

func formatContent(content string) string {
	words := strings.Fields(content)
	if len(words) > maxContentWords {
		return strings.Join(words[:maxContentWords], " ") + " ..."
	}
	return strings.Join(words, " ")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 80
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" " + word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return lines
}

func getTerminalWidth() int {
	return 80
}

func printJSON(w io.Writer, v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(jsonData))
	return nil
}

// saveRawJSON writes the provider response as received, pretty printed when it
// is JSON
func saveRawJSON(path string, raw serper.RawResponse) error {
	var data []byte
	if raw.IsJSON() {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw.JSON, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = json.MarshalIndent(raw.Text, "", "  "); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
