package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/porthorian/openperm/pkg/storage/postgres"
)

const (
	defaultMigrationsTable = "openperm.schema_migrations"
	embeddedSourceName     = "embedded openperm migrations"
)

type migrateConfig struct {
	DatabaseURL     string
	MigrationsTable string
	MigrationsPath  string
}

// migrationTable is the golang-migrate version table, optionally schema
// qualified.
type migrationTable struct {
	Schema string
	Table  string
}

func init() {
	rootCmd.AddCommand(newMigrateCommand())
}

func newMigrateCommand() *cobra.Command {
	cfg := &migrateConfig{MigrationsTable: defaultMigrationsTable}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run openperm postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := migrateCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres connection URL. Can also be set via OPENPERM_MIGRATE_DATABASE_URL or OPENPERM_DATABASE_URL.")
	flags.StringVar(&cfg.MigrationsTable, "migrations-table", cfg.MigrationsTable, "Version table as table or schema.table. Can also be set via OPENPERM_MIGRATE_MIGRATIONS_TABLE.")
	flags.StringVar(&cfg.MigrationsPath, "migrations-path", "", "Directory or golang-migrate source URL. Defaults to the migrations built into the binary.")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending migrations, or only the given number of steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return cfg.run(cmd, func(runner *migrate.Migrate, source string) error {
				if steps == 0 {
					err := runner.Up()
					switch {
					case errors.Is(err, migrate.ErrNoChange):
						cmd.Println("No schema changes to apply.")
					case err != nil:
						return fmt.Errorf("apply migrations: %w", err)
					default:
						cmd.Printf("Applied all pending migrations from %s\n", source)
					}
					return printSchemaVersion(cmd, runner)
				}

				applied, err := countSteps(steps, runner.Steps(steps))
				if err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				if applied == 0 {
					cmd.Println("No schema changes to apply.")
				} else {
					cmd.Printf("Applied %d of %d migration step(s) from %s\n", applied, steps, source)
				}
				return printSchemaVersion(cmd, runner)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back the given number of migration steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return cfg.run(cmd, func(runner *migrate.Migrate, source string) error {
				rolledBack, err := countSteps(steps, runner.Steps(-steps))
				if err != nil {
					return fmt.Errorf("rollback migrations: %w", err)
				}
				if rolledBack == 0 {
					cmd.Println("No schema changes to rollback.")
				} else {
					cmd.Printf("Rolled back %d of %d migration step(s) from %s\n", rolledBack, steps, source)
				}
				return printSchemaVersion(cmd, runner)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version without running migrations (-1 clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersionArg(args[0])
			if err != nil {
				return err
			}

			return cfg.run(cmd, func(runner *migrate.Migrate, source string) error {
				if err := runner.Force(version); err != nil {
					return fmt.Errorf("force migration version: %w", err)
				}
				return printSchemaVersion(cmd, runner)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.run(cmd, func(runner *migrate.Migrate, source string) error {
				return printSchemaVersion(cmd, runner)
			})
		},
	})

	return migrateCmd
}

// run opens a runner for the configured database, hands it to fn and closes it.
func (cfg *migrateConfig) run(cmd *cobra.Command, fn func(runner *migrate.Migrate, source string) error) error {
	logger := newLogger(cmd)

	runner, source, err := openMigrationRunner(*cfg)
	if err != nil {
		return err
	}
	defer func() {
		sourceErr, databaseErr := runner.Close()
		if err := errors.Join(sourceErr, databaseErr); err != nil {
			logger.Error(err, "failed to close migration runner")
		}
	}()

	logger.V(1).Info("opened migration runner", "source", source)
	return fn(runner, source)
}

func openMigrationRunner(cfg migrateConfig) (*migrate.Migrate, string, error) {
	databaseURL, err := resolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}

	table, err := parseMigrationTable(resolveMigrationsTable(cfg.MigrationsTable))
	if err != nil {
		return nil, "", err
	}
	if err := ensureSchema(databaseURL, table.Schema); err != nil {
		return nil, "", err
	}
	databaseURL, err = withMigrationsTable(databaseURL, table)
	if err != nil {
		return nil, "", err
	}

	path := strings.TrimSpace(cfg.MigrationsPath)
	if path == "" {
		source, err := iofs.New(postgres.Migrations, postgres.MigrationsDir)
		if err != nil {
			return nil, "", fmt.Errorf("open embedded migrations: %w", err)
		}
		runner, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("create migrate runner: %w", err)
		}
		return runner, embeddedSourceName, nil
	}

	sourceURL, err := migrationsSourceURL(path)
	if err != nil {
		return nil, "", err
	}
	runner, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create migrate runner: %w", err)
	}
	return runner, sourceURL, nil
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func resolveDatabaseURL(flagValue string) (string, error) {
	for _, value := range []string{
		strings.TrimSpace(flagValue),
		lookupEnv("OPENPERM_MIGRATE_DATABASE_URL"),
		lookupEnv("OPENPERM_DATABASE_URL"),
	} {
		if value != "" {
			return value, nil
		}
	}
	return "", errors.New("missing database URL: set --database-url or OPENPERM_MIGRATE_DATABASE_URL")
}

func resolveMigrationsTable(flagValue string) string {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value
	}
	if value := lookupEnv("OPENPERM_MIGRATE_MIGRATIONS_TABLE"); value != "" {
		return value
	}
	return defaultMigrationsTable
}

// parseMigrationStepsArg returns 0 when no step count was given.
func parseMigrationStepsArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, nil
}

func parseForceVersionArg(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

func parseMigrationTable(value string) (migrationTable, error) {
	raw := strings.TrimSpace(value)

	schema, table, qualified := strings.Cut(raw, ".")
	if !qualified {
		schema, table = "", raw
	}
	if table == "" || (qualified && schema == "") || strings.ContainsAny(table, `."`) || strings.Contains(schema, `"`) {
		return migrationTable{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}
	return migrationTable{Schema: schema, Table: table}, nil
}

// withMigrationsTable points golang-migrate at table unless the URL already
// names one.
func withMigrationsTable(databaseURL string, table migrationTable) (string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database URL: %w", err)
	}

	query := parsed.Query()
	if strings.TrimSpace(query.Get("x-migrations-table")) != "" {
		return databaseURL, nil
	}

	if table.Schema == "" {
		query.Set("x-migrations-table", table.Table)
	} else {
		query.Set("x-migrations-table", pq.QuoteIdentifier(table.Schema)+"."+pq.QuoteIdentifier(table.Table))
		query.Set("x-migrations-table-quoted", "true")
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// ensureSchema creates the version table's schema, which golang-migrate
// expects to exist before the first run.
func ensureSchema(databaseURL string, schema string) error {
	if schema == "" {
		return nil
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}

	db, err := sql.Open("postgres", migrate.FilterCustomQuery(parsed).String())
	if err != nil {
		return fmt.Errorf("open database for schema bootstrap: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)); err != nil {
		return fmt.Errorf("ensure migrations schema %q exists: %w", schema, err)
	}
	return nil
}

func migrationsSourceURL(path string) (string, error) {
	if strings.Contains(path, "://") {
		return path, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", path, err)
	}
	return "file://" + filepath.ToSlash(absPath), nil
}

// countSteps turns the result of runner.Steps into the number of steps that
// ran. Hitting either end of the migration history is not an error.
func countSteps(requested int, err error) (int, error) {
	var short migrate.ErrShortLimit

	switch {
	case err == nil:
		return requested, nil
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		return 0, nil
	case errors.As(err, &short):
		return max(requested-int(short.Short), 0), nil
	default:
		return 0, err
	}
}

func printSchemaVersion(cmd *cobra.Command, runner *migrate.Migrate) error {
	version, dirty, err := runner.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		cmd.Println("Schema version: none")
	case err != nil:
		return fmt.Errorf("read migration version: %w", err)
	case dirty:
		cmd.Printf("Schema version: %d (dirty)\n", version)
	default:
		cmd.Printf("Schema version: %d\n", version)
	}
	return nil
}
