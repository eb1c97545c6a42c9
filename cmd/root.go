package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/sinvoice/config"
	"github.com/s0up4200/sinvoice/filter"
	"github.com/s0up4200/sinvoice/sinvoice"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
	client       sinvoice.API
	filters      *filter.Manager

	logger = zerolog.Nop()

	version   = "dev"
	buildTime = "unknown"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sinvoice",
	Short: "A command line client for the Viettel S-Invoice API",
	Long: `sinvoice talks to the Viettel S-Invoice e-invoice API. It can issue and
preview invoices, look them up by transaction or date range, and download
invoice files and registered templates.

Credentials come from the config file or the SINVOICE_API_USERNAME and
SINVOICE_API_PASSWORD environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: initializeApp,
}

// SetVersion records build information for the version and update commands
func SetVersion(v, built string) {
	version = v
	buildTime = built
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table or json (overrides config)")
}

// initializeApp loads configuration and builds the API client
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("output") {
		if outputFormat != "table" && outputFormat != "json" {
			return fmt.Errorf("invalid output format: %s (must be 'table' or 'json')", outputFormat)
		}
		cfg.Output.Format = outputFormat
	}

	logger = setupLogger(cfg.Logging)

	opts := []sinvoice.Option{
		sinvoice.WithTimeout(cfg.API.Timeout),
	}
	if cfg.API.UserAgent != "" {
		opts = append(opts, sinvoice.WithUserAgent(cfg.API.UserAgent))
	}
	if cfg.API.TokenCache {
		opts = append(opts, sinvoice.WithTokenCache(sinvoice.NewTokenCache()))
	}

	c, err := sinvoice.NewClient(cfg.API.ClientConfig(), logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create S-Invoice client: %w", err)
	}
	client = c

	filters = filter.NewManager()
	if err := filters.RegisterFilters(cfg.Filter); err != nil {
		return fmt.Errorf("invalid filter preset: %w", err)
	}

	logger.Debug().
		Str("endpoint", c.BaseURL()).
		Str("username", cfg.API.Username).
		Bool("token_cache", cfg.API.TokenCache).
		Msg("S-Invoice client ready")

	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Console format, colored only on a real terminal
	fd := os.Stderr.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !tty,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return cfg != nil && cfg.Output.Format == "json"
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// plural returns word with an "s" unless n is one
func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// truncate shortens s to n runes with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
