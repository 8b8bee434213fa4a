package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the latest migration
  to <version>     migrate up or down to version
  status           list migrations and their state
  version          print the applied version
  create <name>    write a new migration into -dir (default %s)
  validate         check migration names and goose markers
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fset.String("dir", "", "read migrations from this directory instead of the embedded set")
	fset.Usage = func() { fmt.Fprintf(fset.Output(), usage, migrate.DefaultDir) }
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() == 0 {
		fset.Usage()
		return 2
	}
	cmd, rest := fset.Arg(0), fset.Args()[1:]

	var migrations fs.FS = migrate.Migrations()
	if *dir != "" {
		migrations = os.DirFS(*dir)
	}

	switch cmd {
	case "create":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "create needs a migration name")
			return 2
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, rest[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(path)
		return 0
	case "validate":
		if err := migrate.ValidateFS(migrations); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("ok")
		return 0
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	if err := execute(ctx, cfg, logg, migrations, cmd, rest); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, migrations fs.FS, cmd string, rest []string) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrations, logg)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "to":
		if len(rest) != 1 {
			return fmt.Errorf("to needs a target version")
		}
		target, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", rest[0], err)
		}
		return runner.To(ctx, target)
	case "status":
		return runner.Status(ctx, os.Stdout)
	case "version":
		version, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
