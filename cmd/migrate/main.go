package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = "migrate -cmd up|down|status|to|create|validate [-dir path] [-name n] [-version v]"

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "migrations directory (default: schema built into the binary)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	if err := run(*cmd, *dir, *name, *version); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmd, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func run(cmd, dir, name, version string) error {
	source := migrate.Schema()
	if dir != "" {
		source = os.DirFS(dir)
	}

	// Offline commands never touch the database.
	switch cmd {
	case "create":
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.Create(dir, name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(source); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	if cfg.DB.Driver == config.DriverSQLite {
		return errors.New("goose migrations target postgres; sqlite uses the dev auto-migrate schema")
	}
	if err := migrate.Validate(source); err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	m, err := migrate.New(sqlDB, source)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		applied, err := m.Up(ctx)
		logg.Info(logg.WithField(ctx, "applied", applied), "migrate.up")
		return err
	case "down":
		v, err := m.Down(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "version", v), "migrate.down")
		return nil
	case "to":
		target, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q: %w", version, err)
		}
		return m.To(ctx, target)
	case "status":
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(os.Stdout, rows)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printStatus(out io.Writer, rows []migrate.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, r := range rows {
		state := "pending"
		if r.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Version, state, r.Path)
	}
	return w.Flush()
}
