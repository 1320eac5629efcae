// Package main is the entry point of the Tagfer API server.
//
// main stays minimal: it parses the command line, loads the configuration
// from the environment and hands over to internal/server. The binary has
// three commands:
//
//	tagfer-server [serve]   run the HTTP API (default)
//	tagfer-server migrate   apply the database schema and purge expired codes
//	tagfer-server version   print build information
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/tagfer/tagfer-server/internal/config"
	"github.com/tagfer/tagfer-server/internal/logging"
	sqliteRepo "github.com/tagfer/tagfer-server/internal/repository/sqlite"
	"github.com/tagfer/tagfer-server/internal/server"
)

const serviceName = "tagfer-server"

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "000000000000"
)

func main() {
	app := &cli.App{
		Name:    serviceName,
		Usage:   "Tagfer mobile API",
		Version: version,
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply the database schema and purge expired verification codes",
				Action: migrate,
			},
			{
				Name:  "version",
				Usage: "Print build version & exit",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "%s %s (%s)\n", serviceName, version, commit)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := ensureDir(cfg.DBPath); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger.Info("starting", slog.String("version", version), slog.String("commit", commit))

	srv, err := server.New(c.Context, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func migrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	// sqlite.New applies the schema.
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	purged, err := db.PurgeExpiredCodes(ctx)
	if err != nil {
		return err
	}
	logger.Info("database migrated",
		slog.String("database", cfg.DBPath),
		slog.Int64("expiredCodesPurged", purged),
	)
	return nil
}

// ensureDir creates the parent directory of a file-backed database.
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
