package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"serper/backends"
	"serper/pagereader"
	"serper/plugin"
	"serper/tools"
)

const version = "1.0.0"

var (
	config       *Config
	searchOpts   SearchOptions
	pageOpts     PageOptions
	providerName string
	historyLimit int
	historyClear bool
)

// app is the local plugin host: it owns the provider and tool registries
type app struct {
	manager *backends.Manager
	tools   *tools.Registry
	reader  *pagereader.Reader
	history *historyStore
	log     zerolog.Logger
	out     io.Writer
}

func (a *app) WaitForRegistry(fn func(plugin.Registry)) {
	fn(a.manager)
}

func (a *app) Tools() plugin.ToolRegistry {
	return a.tools
}

func newLogger(w io.Writer, debug, noColor bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

func newApp(cfg *Config, out, errOut io.Writer) *app {
	log := newLogger(errOut, cfg.Debug, cfg.NoColor)
	a := &app{
		manager: backends.NewManager(),
		tools:   tools.NewRegistry(),
		reader:  pagereader.New(pagereader.Config{Logger: &log}),
		history: newHistoryStore(cfg),
		log:     log,
		out:     out,
	}
	if err := plugin.Install(a, cfg.pluginConfig(), log); err != nil {
		log.Warn().Err(err).Msg("some providers could not be configured")
	}
	return a
}

// selectProvider makes name (or the configured default) the primary provider
// and the remaining configured providers its fallbacks
func (a *app) selectProvider(name string) error {
	configured := a.manager.ConfiguredBackends()
	if len(configured) == 0 {
		return errNoProvider
	}
	if name == "" {
		name = config.DefaultProvider
		if _, ok := a.manager.Get(name); !ok {
			name = configured[0]
		}
	}
	if err := a.manager.SetPrimary(name); err != nil {
		return err
	}
	fallbacks := make([]string, 0, len(configured))
	for _, n := range configured {
		if n != name {
			fallbacks = append(fallbacks, n)
		}
	}
	return a.manager.SetFallbacks(fallbacks)
}

func main() {
	var err error
	config, err = loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var a *app

	rootCmd := &cobra.Command{
		Use:           "serper",
		Short:         "Serper.dev Google search from the command line",
		Long:          "serper queries Google web search, Google News and page scraping through the Serper.dev API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if config.NoColor {
				color.NoColor = true
			}
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "search provider to use (default from config)")
	rootCmd.PersistentFlags().BoolVar(&config.NoColor, "nocolor", config.NoColor, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&config.Debug, "debug", config.Debug, "show debug output")

	// setup runs before every command that talks to a provider
	setup := func(cmd *cobra.Command) error {
		if err := ensureConfig(); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		reloaded, err := loadConfig()
		if err != nil {
			return err
		}
		reloaded.NoColor = config.NoColor
		reloaded.Debug = config.Debug
		config = reloaded

		a = newApp(config, out, errOut)
		return a.selectProvider(providerName)
	}

	addSearchFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&searchOpts.Country, "gl", "", "country code, e.g. us")
		cmd.Flags().StringVar(&searchOpts.Language, "hl", "", "language code, e.g. en")
		cmd.Flags().StringVar(&searchOpts.Location, "location", "", "free-form location")
		cmd.Flags().IntVarP(&searchOpts.Num, "num", "n", 0, "number of results to request")
		cmd.Flags().IntVar(&searchOpts.Page, "page", 0, "result page (1-based)")
		cmd.Flags().BoolVar(&searchOpts.JSON, "json", false, "output results in JSON format")
		cmd.Flags().StringVar(&searchOpts.SaveFile, "save", "", "write the raw JSON response to `path`")
	}

	serpCmd := &cobra.Command{
		Use:   "serp <query...>",
		Short: "Google web search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			return a.runSerp(cmd.Context(), strings.Join(args, " "), searchOpts)
		},
	}
	addSearchFlags(serpCmd)
	serpCmd.Flags().BoolVar(&searchOpts.Autocorrect, "autocorrect", false, "let Google autocorrect the query")

	newsCmd := &cobra.Command{
		Use:   "news <query...>",
		Short: "Google News search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			return a.runNews(cmd.Context(), strings.Join(args, " "), searchOpts)
		},
	}
	addSearchFlags(newsCmd)
	newsCmd.Flags().StringVarP(&searchOpts.TimeRange, "time-range", "t", "", "news within a time range (hour, day, week, month, year)")

	pageCmd := &cobra.Command{
		Use:   "page <url>",
		Short: "Fetch a page as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageOpts.Direct {
				a = newApp(config, out, errOut)
			} else if err := setup(cmd); err != nil {
				return err
			}
			return a.runPage(cmd.Context(), args[0], pageOpts)
		},
	}
	pageCmd.Flags().BoolVar(&pageOpts.Direct, "direct", false, "fetch the page directly instead of through Serper")
	pageCmd.Flags().Float64Var(&pageOpts.Timeout, "timeout", config.Timeout, "page fetch timeout in seconds")
	pageCmd.Flags().BoolVar(&pageOpts.JSON, "json", false, "output the page in JSON format")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show search history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history := newHistoryStore(config)
			if historyClear {
				return history.clear(out)
			}
			return history.print(out, historyLimit)
		},
	}
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear search history")
	historyCmd.Flags().IntVarP(&historyLimit, "num", "n", 20, "show the last N entries (0 for all)")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered agent tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			return a.listTools()
		},
	}
	toolsCallCmd := &cobra.Command{
		Use:   "call <name> [json-args]",
		Short: "Run an agent tool with JSON arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			input := "{}"
			if len(args) == 2 {
				input = args[1]
			}
			return a.callTool(cmd.Context(), args[0], input)
		},
	}
	toolsCmd.AddCommand(toolsCallCmd)

	rootCmd.AddCommand(serpCmd, newsCmd, pageCmd, historyCmd, toolsCmd)
	return rootCmd
}

func (a *app) listTools() error {
	for _, name := range a.tools.List() {
		t := a.tools.Get(name)
		fmt.Fprintf(a.out, "%s\n    %s\n", color.New(color.FgGreen).Sprint(name), t.Description())
	}
	return nil
}

func (a *app) callTool(ctx context.Context, name, input string) error {
	out, err := a.tools.Execute(ctx, name, []byte(input))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, out)
	return nil
}
