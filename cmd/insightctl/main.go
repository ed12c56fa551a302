// main.go - Admin control tool for appinsights
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/karloscodes/cartridge/cache"

	"appinsights/internal"
	"appinsights/internal/config"
	"appinsights/internal/events"
	"appinsights/internal/ingest"
	"appinsights/internal/seeder"
	"appinsights/internal/sessions"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&ImportCommand{},
	&SessionsCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&PurgeCacheCommand{},
	&HelpCommand{},
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// ImportCommand runs the import pipeline over the configured export files
type ImportCommand struct{}

func (c *ImportCommand) Name() string { return "import" }
func (c *ImportCommand) Description() string {
	return "Imports the export files, flattens events and rebuilds sessions"
}

func (c *ImportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	force := fs.Bool("force", false, "reimport even when export files are unchanged")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot import")
	}

	cfg := config.GetConfig()
	logger := slog.Default()

	if *force {
		if err := ingest.InvalidateFingerprints(app.DBManager, logger); err != nil {
			return fmt.Errorf("failed to invalidate fingerprints: %w", err)
		}
	}

	importer := ingest.NewImporter(cfg, app.DBManager, logger)
	summary, err := importer.Refresh(*force)
	if err != nil {
		return err
	}

	for _, result := range summary.Apps {
		switch {
		case result.Missing:
			log.Printf("- %s: export not found at %s", result.AppName, result.SourcePath)
		case result.Unchanged:
			log.Printf("- %s: unchanged (%d rows)", result.AppName, result.Imported)
		default:
			log.Printf("- %s: imported %d rows (%d lines skipped)", result.AppName, result.Imported, result.SkippedLines)
		}
	}
	log.Printf("Flattened %d events, rebuilt %d sessions", summary.Flattened, summary.Sessions)
	return nil
}

// SessionsCommand rebuilds the session table from the flattened events
type SessionsCommand struct{}

func (c *SessionsCommand) Name() string        { return "sessions" }
func (c *SessionsCommand) Description() string { return "Rebuilds sessions from the flattened events" }

func (c *SessionsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot rebuild sessions")
	}

	count, err := sessions.RebuildSessions(app.DBManager, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to rebuild sessions: %w", err)
	}

	log.Printf("Rebuilt %d sessions", count)
	return nil
}

// SeedCommand generates demo export files and imports them
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Generates demo export files and imports them" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	eventCount := fs.Int("events", 10000, "total number of events to generate across all apps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	cfg := config.GetConfig()
	logger := slog.Default()

	se := seeder.NewSeeder(cfg, logger, *eventCount)
	if err := se.Run(ctx); err != nil {
		return err
	}

	importer := ingest.NewImporter(cfg, app.DBManager, logger)
	summary, err := importer.Refresh(true)
	if err != nil {
		return fmt.Errorf("failed to import seeded exports: %w", err)
	}

	log.Printf("Seeded and imported %d events, %d sessions", summary.Flattened, summary.Sessions)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()
	cfg := config.GetConfig()

	log.Println("System Status:")
	log.Println("- Database: Connected")

	records, err := ingest.GetImportRecords(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	for _, appName := range cfg.GetTrackedApps() {
		rawCount, err := events.GetRawEventCountForApp(db, appName)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		sessionCount, err := sessions.GetSessionCountForApp(db, appName)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		imported := "never imported"
		if record, ok := records[appName]; ok {
			imported = fmt.Sprintf("imported %s", record.ImportedAt.Format(time.RFC3339))
		}
		log.Printf("- %s: %d events, %d sessions (%s)", appName, rawCount, sessionCount, imported)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)

	return nil
}

// PurgeCacheCommand clears the persistent cache table
type PurgeCacheCommand struct{}

func (c *PurgeCacheCommand) Name() string        { return "purge-cache" }
func (c *PurgeCacheCommand) Description() string { return "Clears all cached query results" }

func (c *PurgeCacheCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot purge cache: app initialization failed")
	}

	db := app.DBManager.GetConnection()
	rowsAffected, err := cache.PurgeAllCaches(db)
	if err != nil {
		return fmt.Errorf("failed to purge caches: %w", err)
	}

	log.Printf("Purged %d cached entries", rowsAffected)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: insightctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: insightctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
