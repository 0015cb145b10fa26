package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"serper/plugin"
)

type Config struct {
	Schema          string  `toml:"$schema,omitempty" yaml:"-"`
	DefaultProvider string  `toml:"default_provider" yaml:"default_provider"`
	NoColor         bool    `toml:"no_color" yaml:"no_color"`
	Debug           bool    `toml:"debug" yaml:"debug"`
	HistoryEnabled  bool    `toml:"history_enabled" yaml:"history_enabled"`
	MaxHistory      int     `toml:"max_history" yaml:"max_history"`
	Timeout         float64 `toml:"timeout" yaml:"timeout"`

	WebSearch *plugin.WebSearchConfig `toml:"websearch,omitempty" yaml:"websearch,omitempty"`
}

const (
	defaultProviderName   = "serper"
	defaultTimeout        = 30.0
	defaultNoColor        = false
	defaultDebug          = false
	defaultHistoryEnabled = true
	defaultMaxHistory     = 100
	defaultCountry        = "us"
	defaultLanguage       = "en"
)

func getConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "serper")
}

func getDefaultConfig() *Config {
	return &Config{
		DefaultProvider: defaultProviderName,
		NoColor:         defaultNoColor,
		Debug:           defaultDebug,
		HistoryEnabled:  defaultHistoryEnabled,
		MaxHistory:      defaultMaxHistory,
		Timeout:         defaultTimeout,
	}
}

func loadConfig() (*Config, error) {
	return loadConfigFrom(getConfigDir())
}

// loadConfigFrom reads config.toml from dir, or config.yaml when there is no
// TOML file, and then applies SERPER_API_KEY.
func loadConfigFrom(configDir string) (*Config, error) {
	config := getDefaultConfig()

	tomlFile := filepath.Join(configDir, "config.toml")
	yamlFile := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(tomlFile); err == nil {
		if _, err := toml.DecodeFile(tomlFile, config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if data, err := os.ReadFile(yamlFile); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	config.applyEnv(os.Getenv(plugin.APIKeyEnvVar))
	return config, nil
}

// applyEnv adds a default provider when none is configured and a key is set
// in the environment. Providers without a key pick it up in plugin.NewProvider.
func (c *Config) applyEnv(apiKey string) {
	if apiKey == "" || c.hasProvider() {
		return
	}
	if c.WebSearch == nil {
		c.WebSearch = &plugin.WebSearchConfig{}
	}
	if c.WebSearch.Providers == nil {
		c.WebSearch.Providers = map[string]plugin.ProviderConfig{}
	}
	c.WebSearch.Providers[defaultProviderName] = plugin.ProviderConfig{Type: plugin.ProviderType}
}

func (c *Config) hasProvider() bool {
	if c.WebSearch == nil {
		return false
	}
	for _, pc := range c.WebSearch.Providers {
		if pc.Type == plugin.ProviderType {
			return true
		}
	}
	return false
}

// pluginConfig is the slice of the configuration the plugin reads
func (c *Config) pluginConfig() plugin.Config {
	return plugin.Config{
		WebSearch: c.WebSearch,
		Timeout:   secondsToDuration(c.Timeout),
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func ensureConfig() error {
	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.toml")

	if _, err := os.Stat(configFile); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(configDir, "config.yaml")); err == nil {
		return nil
	}
	if os.Getenv(plugin.APIKeyEnvVar) != "" {
		return nil
	}
	return createConfigFile(configDir, configFile, os.Stdin, os.Stdout)
}

func createConfigFile(configDir, configFile string, in io.Reader, out io.Writer) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	fmt.Fprint(out, "Enter your Serper API key: ")
	apiKey, _ := bufio.NewReader(in).ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("an API key is required (get one at https://serper.dev)")
	}

	config := getDefaultConfig()
	config.WebSearch = &plugin.WebSearchConfig{
		Providers: map[string]plugin.ProviderConfig{
			defaultProviderName: {
				Type:   plugin.ProviderType,
				APIKey: apiKey,
			},
		},
	}
	provider := config.WebSearch.Providers[defaultProviderName]
	provider.Defaults.GL = defaultCountry
	provider.Defaults.HL = defaultLanguage
	config.WebSearch.Providers[defaultProviderName] = provider

	file, err := os.OpenFile(configFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.WriteString("# serper configuration file\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created config file: %s\n", configFile)
	return nil
}
