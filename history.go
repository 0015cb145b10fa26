package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func getStateDir() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "serper")
}

// HistoryEntry is one recorded query, stored as a JSON line
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Query     string    `json:"query"`
}

// historyStore keeps the most recent serp and news queries
type historyStore struct {
	path    string
	max     int
	enabled bool
}

func newHistoryStore(cfg *Config) *historyStore {
	h := &historyStore{max: cfg.MaxHistory, enabled: cfg.HistoryEnabled}
	if h.max <= 0 {
		h.max = defaultMaxHistory
	}
	if dir := getStateDir(); dir != "" {
		h.path = filepath.Join(dir, "history.jsonl")
	}
	return h
}

func (h *historyStore) add(kind, query string) error {
	if !h.enabled || h.path == "" || query == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}

	line, err := json.Marshal(HistoryEntry{Timestamp: time.Now().UTC(), Kind: kind, Query: query})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return h.trim()
}

// trim rewrites the file with the newest max entries once it grows past max
func (h *historyStore) trim() error {
	entries, err := h.entries()
	if err != nil || len(entries) <= h.max {
		return err
	}
	entries = entries[len(entries)-h.max:]

	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return os.WriteFile(h.path, []byte(sb.String()), 0644)
}

// entries returns the recorded queries oldest first. Unreadable lines are skipped.
func (h *historyStore) entries() ([]HistoryEntry, error) {
	if h.path == "" {
		return nil, nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil || e.Query == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (h *historyStore) print(w io.Writer, limit int) error {
	entries, err := h.entries()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No search history.")
		return nil
	}

	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %s  %-4s  %s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Kind, e.Query)
	}
	return nil
}

func (h *historyStore) clear(w io.Writer) error {
	if h.path != "" {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	fmt.Fprintln(w, "History cleared.")
	return nil
}
