package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/migrate"
)

const usage = "migration command: up|down|to|status|create|validate"

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", usage)
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	// create and validate work on files only and run before config is loaded.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		if strings.TrimSpace(*name) == "" {
			fail("missing -name for create")
		}
		path, err := migrate.Create(target, *name, time.Now())
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(source(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect database", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to get sql handle", err)
		os.Exit(1)
	}
	m, err := migrate.New(sqlDB, cfg.DB.Driver, source(*dir), logg)
	if err != nil {
		logg.Error(ctx, "failed to build migrator", err)
		os.Exit(1)
	}

	commands := map[string]func() error{
		"up":     func() error { return m.Up(ctx) },
		"down":   func() error { return m.Down(ctx) },
		"to":     func() error { return m.To(ctx, *version) },
		"status": func() error { return m.Status(ctx, os.Stdout) },
	}
	run, ok := commands[*cmd]
	if !ok {
		fail("unknown -cmd %q (%s)", *cmd, usage)
	}
	if err := run(); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Embedded()
	}
	return os.DirFS(dir)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
