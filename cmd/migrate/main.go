package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/migrate"
)

// Commands handed straight to goose.
var gooseCommands = map[string]bool{
	"up":        true,
	"up-by-one": true,
	"down":      true,
	"redo":      true,
	"status":    true,
}

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|up-by-one|down|redo|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty applies the embedded set (create and validate default to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// create and validate only touch files.
	fileDir := opts.dir
	if fileDir == "" {
		fileDir = migrate.DefaultDir
	}
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(fileDir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(fileDir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	case "version":
		if opts.version == "" {
			return errors.New("-version is required")
		}
	default:
		if !gooseCommands[opts.cmd] {
			return fmt.Errorf("unknown command %q", opts.cmd)
		}
	}

	fsys, err := migrate.Source(opts.dir)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	dialect := dbClient.Dialect()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"cmd":     opts.cmd,
		"dir":     opts.dir,
		"dialect": dialect,
	})
	logg.Info(ctx, "running migrations")

	var lines []string
	if opts.cmd == "version" {
		lines, err = migrate.MigrateToVersion(ctx, sqlDB, dialect, fsys, opts.version)
	} else {
		lines, err = migrate.Run(ctx, sqlDB, dialect, fsys, opts.cmd)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return err
}
