package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/logger"
)

var (
	migrationsDir string
	targetVersion uint
	downSteps     int

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the attempt log schema (otp_attempts, user_analytics)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log = logger.New(cfg.Log.Level, "text").WithComponent("migrate")
		return nil
	},
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations, or migrate to --to",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back --steps migrations (default 1)",
	RunE:  runDown,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied version and the migrations still pending",
	RunE:  runStatus,
}

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty up/down migration pair",
	Args:  cobra.ExactArgs(1),
	// creating files needs neither config nor a database
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runCreate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the migration files")
	upCmd.Flags().UintVar(&targetVersion, "to", 0, "migrate to this version instead of the latest")
	downCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd, createCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newMigrator() (*migrate.Migrate, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{MigrationsTable: "riskgate_schema_migrations"})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(migrationsDir), "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if targetVersion > 0 {
		log.Info().Uint("version", targetVersion).Msg("migrating to version")
		err = m.Migrate(targetVersion)
	} else {
		log.Info().Str("dir", migrationsDir).Msg("applying pending migrations")
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info().Msg("migrations applied")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	if downSteps < 1 {
		return fmt.Errorf("--steps must be at least 1, got %d", downSteps)
	}

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	log.Warn().Int("steps", downSteps).Msg("rolling back migrations")
	if err := m.Steps(-downSteps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Info().Msg("rollback completed")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	var current uint
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("Current version: none")
	case err != nil:
		return fmt.Errorf("failed to get version: %w", err)
	default:
		current = version
		fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)
	}

	pending, err := pendingMigrations(migrationsDir, current)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending migrations")
		return nil
	}
	fmt.Println("Pending:")
	for _, name := range pending {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(args[0]), " ", "_"))

	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version, err := nextVersion(migrationsDir)
	if err != nil {
		return err
	}

	for _, dir := range []string{"up", "down"} {
		path := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.%s.sql", version, name, dir))
		if err := os.WriteFile(path, []byte("-- "+dir+" migration\n"), 0644); err != nil {
			return fmt.Errorf("failed to create %s migration: %w", dir, err)
		}
		fmt.Println(path)
	}
	return nil
}

// upMigrations maps version to file name for every *.up.sql in dir
func upMigrations(dir string) (map[uint]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	found := make(map[uint]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		var v uint
		if _, err := fmt.Sscanf(entry.Name(), "%06d_", &v); err == nil {
			found[v] = entry.Name()
		}
	}
	return found, nil
}

// nextVersion returns one past the highest numbered migration in dir
func nextVersion(dir string) (int, error) {
	found, err := upMigrations(dir)
	if err != nil {
		return 0, err
	}
	var highest uint
	for v := range found {
		highest = max(highest, v)
	}
	return int(highest) + 1, nil
}

// pendingMigrations lists the up files newer than current, oldest first
func pendingMigrations(dir string, current uint) ([]string, error) {
	found, err := upMigrations(dir)
	if err != nil {
		return nil, err
	}
	versions := make([]uint, 0, len(found))
	for v := range found {
		if v > current {
			versions = append(versions, v)
		}
	}
	slices.Sort(versions)

	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = found[v]
	}
	return names, nil
}
