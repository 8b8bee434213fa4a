package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/studiopass/internal/client/cli"
	"github.com/angelmondragon/studiopass/internal/client/dashboard"
	"github.com/angelmondragon/studiopass/internal/client/rest"
	"github.com/angelmondragon/studiopass/internal/client/session"
	"github.com/angelmondragon/studiopass/internal/client/signup"
	"github.com/angelmondragon/studiopass/internal/client/store"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logg := logger.New(logger.Options{
		ServiceName: "studiopass",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := store.Open(cfg.StatePath)
	if err != nil {
		logg.Error(ctx, "failed to open session store", err)
		return 1
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logg.Error(ctx, "error closing session store", err)
		}
	}()

	client, err := rest.NewClient(cfg.APIURL, sessions, logg, rest.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		logg.Error(ctx, "failed to build api client", err)
		return 1
	}
	gw := client.Gateway()

	flow, err := signup.NewFlow(signup.Params{
		Identity:  gw.Identity,
		Members:   gw.Members,
		Functions: gw.Functions,
		Issuer:    signup.NumericIssuer{},
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build signup flow", err)
		return 1
	}

	manager, err := session.NewManager(session.Params{
		Identity: gw.Identity,
		Members:  gw.Members,
		Signup:   flow,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build session manager", err)
		return 1
	}
	defer manager.Close()

	dash, err := dashboard.NewService(dashboard.Params{
		Memberships: gw.Memberships,
		Posts:       gw.Posts,
		Visits:      gw.Visits,
	})
	if err != nil {
		logg.Error(ctx, "failed to build dashboard", err)
		return 1
	}

	app, err := cli.NewApp(cli.Params{
		Sessions:  manager,
		Dashboard: dash,
		Logger:    logg,
		In:        os.Stdin,
		Out:       os.Stdout,
	})
	if err != nil {
		logg.Error(ctx, "failed to build cli", err)
		return 1
	}

	if err := manager.Initialize(ctx); err != nil {
		logg.Error(ctx, "failed to initialize session", err)
		return 1
	}
	if err := manager.WaitReady(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "session did not load:", err)
		return 1
	}

	if err := app.Run(ctx, args); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			if len(args) > 0 {
				fmt.Fprintln(os.Stderr, err)
			}
			return 2
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
