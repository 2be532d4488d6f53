package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/Skryldev/critique/db"
)

// NewMigrateCommand creates the migrate command and its subcommands. The
// migration set is the one embedded in package db.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the versioned schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(rootOpts, func(m *migrate.Migrate) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("up failed: %w", err)
				}
				rootOpts.logger.Info("migrations: up completed")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "down [N]",
		Short:        "Roll back N migrations (default 1)",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) > 0 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("down: invalid steps argument %q", args[0])
				}
				steps = n
			}
			return withMigrate(rootOpts, func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("down failed: %w", err)
				}
				rootOpts.logger.Info("migrations: down completed", "steps", steps)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "version",
		Short:        "Print the current migration version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(rootOpts, func(m *migrate.Migrate) error {
				v, dirty, err := m.Version()
				if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
					return fmt.Errorf("version failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d  dirty: %v\n", v, dirty)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "force <V>",
		Short:        "Set the migration version without running it (clears dirty state)",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("force: invalid version %q", args[0])
			}
			return withMigrate(rootOpts, func(m *migrate.Migrate) error {
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force failed: %w", err)
				}
				rootOpts.logger.Info("migrations: forced", "version", v)
				return nil
			})
		},
	})

	return cmd
}

func withMigrate(rootOpts *RootOptions, fn func(*migrate.Migrate) error) (err error) {
	src, err := iofs.New(db.Migrations(), ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+rootOpts.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	m.Log = &migrateLogger{logger: rootOpts.logger}
	return fn(m)
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }
