package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/missions-backend/pkg/config"
	"github.com/angelmondragon/missions-backend/pkg/db"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/angelmondragon/missions-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// offline commands only touch the migrations directory.
var offline = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return fmt.Errorf("missing -name")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
	"list": func(o options) error {
		files, err := migrate.ListFiles(o.dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("%s  %s\n", f.Version, f.Name)
		}
		return nil
	},
}

// online commands run against the configured database.
var online = map[string]func(context.Context, *sql.DB, string, options) error{
	"up": func(ctx context.Context, sqlDB *sql.DB, dialect string, o options) error {
		return migrate.Run(ctx, sqlDB, dialect, o.dir, "up")
	},
	"down": func(ctx context.Context, sqlDB *sql.DB, dialect string, o options) error {
		return migrate.Run(ctx, sqlDB, dialect, o.dir, "down")
	},
	"status": func(ctx context.Context, sqlDB *sql.DB, dialect string, o options) error {
		return migrate.Run(ctx, sqlDB, dialect, o.dir, "status")
	},
	"version": func(ctx context.Context, sqlDB *sql.DB, dialect string, o options) error {
		if o.version == "" {
			return fmt.Errorf("missing -version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dialect, o.dir, o.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal(context.Background(), logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": opts.dir})

	if run, ok := offline[*cmd]; ok {
		if err := run(opts); err != nil {
			fatal(ctx, logg, *cmd, err)
		}
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fatal(ctx, logg, "parse flags", fmt.Errorf("unknown -cmd %q", *cmd))
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		fatal(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fatal(ctx, logg, "extract sql.DB", err)
	}
	dialect := dbClient.DB().Dialector.Name()
	ctx = logg.WithField(ctx, "dialect", dialect)

	if err := run(ctx, sqlDB, dialect, opts); err != nil {
		fatal(ctx, logg, *cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func commandNames() []string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fatal(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, "migrate failed: "+step, err)
	os.Exit(1)
}
