// Package plugin installs Serper providers and tools into a host application.
package plugin

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"serper/backends"
	"serper/serper"
	"serper/tools"
)

const (
	Name           = "serper"
	ProviderType   = "serper"
	APIKeyEnvVar   = "SERPER_API_KEY"
	defaultTimeout = 30 * time.Second
)

// ProviderConfig is one entry of the host's websearch.providers slice
type ProviderConfig struct {
	Type          string          `toml:"type" yaml:"type"`
	APIKey        string          `toml:"api_key,omitempty" yaml:"api_key,omitempty"`
	Defaults      serper.Defaults `toml:"defaults,omitempty" yaml:"defaults,omitempty"`
	NewsTimeRange string          `toml:"news_time_range,omitempty" yaml:"news_time_range,omitempty"`
	SearchURL     string          `toml:"search_url,omitempty" yaml:"search_url,omitempty"`
	NewsURL       string          `toml:"news_url,omitempty" yaml:"news_url,omitempty"`
	ScrapeURL     string          `toml:"scrape_url,omitempty" yaml:"scrape_url,omitempty"`
}

// WebSearchConfig is the host's websearch configuration slice
type WebSearchConfig struct {
	Providers map[string]ProviderConfig `toml:"providers" yaml:"providers"`
}

// Config is what the plugin reads from the host configuration
type Config struct {
	WebSearch *WebSearchConfig `toml:"websearch,omitempty" yaml:"websearch,omitempty"`
	Timeout   time.Duration    `toml:"-" yaml:"-"`
}

// Registry is the host's shared search-provider registry
type Registry interface {
	RegisterProvider(name string, backend backends.SearchBackend) bool
}

// ToolRegistry is the host's tool registry
type ToolRegistry interface {
	Register(t tools.Tool) error
}

// Host is the part of the host application the plugin depends on.
// WaitForRegistry calls fn once the provider registry is available, which may
// be immediately.
type Host interface {
	WaitForRegistry(fn func(Registry))
}

// ToolHost is implemented by hosts that also expose a tool registry
type ToolHost interface {
	Tools() ToolRegistry
}

// Install registers a provider for every configured entry of type serper once
// the host registry is available. Invalid entries are reported through the
// returned error and skipped; the remaining entries still register.
func Install(host Host, cfg Config, log zerolog.Logger) error {
	if cfg.WebSearch == nil {
		return nil
	}

	names := make([]string, 0, len(cfg.WebSearch.Providers))
	for name, pc := range cfg.WebSearch.Providers {
		if pc.Type == ProviderType {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var errs []error
	providers := make([]*serper.Provider, 0, len(names))
	for _, name := range names {
		p, err := NewProvider(name, cfg.WebSearch.Providers[name], cfg.Timeout, log)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		providers = append(providers, p)
	}

	if len(providers) > 0 {
		host.WaitForRegistry(func(reg Registry) {
			for _, p := range providers {
				if reg.RegisterProvider(p.Name(), p) {
					log.Debug().Str("provider", p.Name()).Msg("registered search provider")
				}
			}
		})

		if th, ok := host.(ToolHost); ok && th.Tools() != nil {
			if err := registerTools(th.Tools(), providers[0], log); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NewProvider builds a Provider from one configuration entry. An entry with no
// API key falls back to the SERPER_API_KEY environment variable.
func NewProvider(name string, pc ProviderConfig, timeout time.Duration, log zerolog.Logger) (*serper.Provider, error) {
	if pc.Type != ProviderType {
		return nil, fmt.Errorf("provider %q: unsupported type %q", name, pc.Type)
	}
	apiKey := pc.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnvVar)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return serper.New(name, serper.Config{
		APIKey:        apiKey,
		Defaults:      pc.Defaults,
		NewsTimeRange: pc.NewsTimeRange,
		SearchURL:     pc.SearchURL,
		NewsURL:       pc.NewsURL,
		ScrapeURL:     pc.ScrapeURL,
		Timeout:       timeout,
		Logger:        &log,
	})
}

func registerTools(reg ToolRegistry, p *serper.Provider, log zerolog.Logger) error {
	var errs []error
	for _, t := range []tools.Tool{
		tools.NewGoogleSerpSearch(p, log),
		tools.NewGoogleNewsSearch(p, log),
	} {
		if err := reg.Register(t); err != nil && !errors.Is(err, tools.ErrAlreadyRegistered) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
