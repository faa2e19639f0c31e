// Command migrate manages the enrichment store schema
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/meetprep/backend/internal/infrastructure/logger"
	"github.com/meetprep/backend/internal/infrastructure/migration"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrationsDir string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the enrichment store schema",
	Long: `Applies the schema migrations compiled into the binary, or the ones in --dir.
Connection settings come from the usual configuration (DB_HOST, DB_PORT, DB_USER,
DB_PASSWORD, DB_NAME, DB_SSL_MODE).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "Read migrations from this directory instead of the embedded set")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:   "step <n>",
			Short: "Apply n migrations, rolling back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migration.Migrator, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.GoTo(uint(v))
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				fmt.Printf("version: %d (dirty: %t)\npending: %d\n", st.Version, st.Dirty, len(st.Pending))
				for _, v := range st.Pending {
					fmt.Println("  -", v)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Record a version as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		},
		dropCmd(),
		&cobra.Command{
			Use:   "create <name> [description]",
			Short: "Create an empty migration pair in --dir",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  runCreate,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List available migrations",
			Args:  cobra.NoArgs,
			RunE:  runList,
		},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func dropCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table (requires --confirm)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
			if !confirm {
				return fmt.Errorf("drop cancelled, pass --confirm")
			}
			return m.Drop()
		}),
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm dropping all data")
	return cmd
}

func newLogger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

// withMigrator opens the database and a migrator around fn
func withMigrator(fn func(m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		var opts []migration.Option
		if migrationsDir != "" {
			opts = append(opts, migration.WithDirectory(migrationsDir))
		}
		m, err := migration.New(db, log, opts...)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := fn(m, args); err != nil {
			log.Error("Migration command failed", zap.Error(err))
			return err
		}
		return nil
	}
}

func runCreate(_ *cobra.Command, args []string) error {
	if migrationsDir == "" {
		return fmt.Errorf("--dir is required, e.g. internal/infrastructure/migration/sql")
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(migrationsDir, args[0], description)
	if err != nil {
		return err
	}
	fmt.Println("created", mf.UpPath)
	fmt.Println("created", mf.DownPath)
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	fsys := migration.Embedded()
	if migrationsDir != "" {
		fsys = os.DirFS(migrationsDir)
	}
	names, err := migration.ListMigrations(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
