// Package cli is the operator command line for a critique database: schema
// lifecycle, bulk loading and versioned migrations.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Skryldev/critique/config"
	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/metrics"
)

// RootOptions holds global flags and the state resolved from them before a
// subcommand runs.
type RootOptions struct {
	ConfigFiles []string
	DBPath      string
	LogLevel    string
	LogFormat   string
	MetricsFile string

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	hooks    []db.Hook
}

// NewRootCommand creates the root command for the critique CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "critique",
		Short: "critique - storage administration",
		Long:  "Create, load, clear, migrate and destroy the SQLite database behind critique.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.MetricsFile == "" || opts.registry == nil {
				return nil
			}
			return prometheus.WriteToTextfile(opts.MetricsFile, opts.registry)
		},
	}

	cmd.PersistentFlags().StringSliceVarP(&opts.ConfigFiles, "config", "c", nil, "config file(s), later files win")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database file (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write statement metrics to this file on exit")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewFixturesCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFiles...)
	if err != nil {
		return err
	}
	if o.DBPath != "" {
		cfg.DB.Path = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger
	o.hooks = nil
	if o.MetricsFile != "" {
		o.registry = prometheus.NewRegistry()
		o.hooks = append(o.hooks, metrics.NewQueryCollector(o.registry).Hook())
	}
	return nil
}

func (o *RootOptions) store() (*db.Store, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("cli: configuration not loaded")
	}
	return db.NewStore(o.cfg.DB.StoreConfig(o.logger, o.hooks...))
}
