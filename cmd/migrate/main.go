package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/db"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/migrate"
)

// gooseCommands run against the database; create and validate only touch the
// migrations directory.
var gooseCommands = map[string]func(ctx context.Context, sqlDB *sql.DB, dir, version string) error{
	"up":      func(ctx context.Context, sqlDB *sql.DB, dir, _ string) error { return migrate.Run(ctx, sqlDB, dir, "up") },
	"down":    func(ctx context.Context, sqlDB *sql.DB, dir, _ string) error { return migrate.Run(ctx, sqlDB, dir, "down") },
	"status":  printStatus,
	"redo":    func(ctx context.Context, sqlDB *sql.DB, dir, _ string) error { return migrate.Run(ctx, sqlDB, dir, "redo") },
	"version": migrateToVersion,
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	run, ok := gooseCommands[*cmd]
	if !ok {
		fail("unknown -cmd value: %s", *cmd)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")
	if err := run(ctx, sqlDB, *dir, *version); err != nil {
		logg.Error(ctx, "migration command failed", err)
		dbClient.Close()
		os.Exit(1)
	}
}

func migrateToVersion(ctx context.Context, sqlDB *sql.DB, dir, version string) error {
	if version == "" {
		return fmt.Errorf("missing -version for version command")
	}
	return migrate.MigrateToVersion(ctx, sqlDB, dir, version)
}

func printStatus(ctx context.Context, sqlDB *sql.DB, dir, _ string) error {
	statuses, err := migrate.Status(ctx, sqlDB, dir)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		applied := "pending"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-14d %-8s %s\n", st.Source.Version, st.State, applied)
	}
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
