package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/models"
	"github.com/Skryldev/critique/repo"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "init",
		Short:        "Create the critique tables (no-op when present)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.store()
			if err != nil {
				return err
			}
			if err := s.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready: %s\n", s.Config().Path)
			return nil
		},
	}
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath, dataPath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a schema script and an optional data script",
		Long: `Run an external schema script, then an optional data script, against the
database. Scripts are trusted input and bypass repository validation.
Paths default to db.schema_script and db.data_script from the config.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				schemaPath = rootOpts.cfg.DB.SchemaScript
			}
			if dataPath == "" {
				dataPath = rootOpts.cfg.DB.DataScript
			}
			if schemaPath == "" {
				return fmt.Errorf("load: --schema is required")
			}

			s, err := rootOpts.store()
			if err != nil {
				return err
			}

			schema, err := os.Open(schemaPath)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			defer schema.Close()

			var data io.Reader
			if dataPath != "" {
				f, err := os.Open(dataPath)
				if err != nil {
					return fmt.Errorf("load: %w", err)
				}
				defer f.Close()
				data = f
			}

			if err := s.LoadScripts(cmd.Context(), schema, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s\n", s.Config().Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema SQL script")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "data SQL script")
	return cmd
}

// NewFixturesCommand creates the fixtures command.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "fixtures <file.yaml>",
		Short:        "Load a YAML fixture dataset",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("fixtures: %w", err)
			}
			defer f.Close()

			fx, err := db.ReadFixtures(f)
			if err != nil {
				return err
			}
			s, err := rootOpts.store()
			if err != nil {
				return err
			}
			if err := s.LoadFixtures(cmd.Context(), fx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d users, %d posts, %d ratings\n",
				len(fx.Users), len(fx.Posts), len(fx.Ratings))
			return nil
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "clear",
		Short:        "Delete every row, keep the schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.store()
			if err != nil {
				return err
			}
			if err := s.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:          "destroy",
		Short:        "Delete the database file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.store()
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("destroy %s? Type 'yes' to confirm:", s.Config().Path)) {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			if err := s.Destroy(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", s.Config().Path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stats",
		Short:        "Print row counts",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.store()
			if err != nil {
				return err
			}
			sess, err := s.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			users, err := repo.NewUserRepo(sess).Count(cmd.Context())
			if err != nil {
				return err
			}
			ratings, err := repo.NewRatingRepo(sess).List(cmd.Context(), models.RatingFilter{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users: %d\nratings: %d\n", users, len(ratings))
			return nil
		},
	}
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintln(cmd.ErrOrStderr(), prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}
