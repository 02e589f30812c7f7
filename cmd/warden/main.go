package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quorum-social/quorum/fakedata"
	"github.com/quorum-social/quorum/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "moderation action and appeal lifecycle daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		genFakeDataCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the HTTP API",
			Value:   ":3899",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3898",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the stats cache; in-memory when empty",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "notify-webhook-url",
			Usage:   "webhook endpoint for cooling-off prompts; disabled when empty",
			EnvVars: []string{"WARDEN_NOTIFY_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Logger:     logger,
			Bind:       cctx.String("bind"),
			RedisURL:   cctx.String("redis-url"),
			WebhookURL: cctx.String("notify-webhook-url"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var genFakeDataCmd = &cli.Command{
	Name:  "gen-fake-data",
	Usage: "seed the database with plausible moderation traffic (development only)",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "moderators",
			Usage: "number of moderator accounts to create",
			Value: 5,
		},
		&cli.IntFlag{
			Name:  "recommendations",
			Usage: "number of AI recommendations to submit",
			Value: 50,
		},
		&cli.IntFlag{
			Name:  "direct-actions",
			Usage: "number of direct moderator actions to create",
			Value: 20,
		},
		&cli.IntFlag{
			Name:  "reports",
			Usage: "number of user reports to file",
			Value: 30,
		},
		&cli.Float64Flag{
			Name:  "frac-approve",
			Usage: "portion of pending consequential actions to approve",
			Value: 0.7,
		},
		&cli.Float64Flag{
			Name:  "frac-appeal",
			Usage: "portion of active actions to appeal",
			Value: 0.3,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if err := runMigrations(db); err != nil {
			return err
		}

		gen := fakedata.NewGenerator(db, logger)
		mods, err := gen.GenModerators(ctx, cctx.Int("moderators"))
		if err != nil {
			return err
		}
		if err := gen.GenRecommendations(ctx, cctx.Int("recommendations")); err != nil {
			return err
		}
		if err := gen.GenModeratorActivity(ctx, mods, cctx.Float64("frac-approve")); err != nil {
			return err
		}
		if err := gen.GenDirectActions(ctx, mods, cctx.Int("direct-actions")); err != nil {
			return err
		}
		if err := gen.GenAppeals(ctx, mods, cctx.Float64("frac-appeal")); err != nil {
			return err
		}
		if err := gen.GenReports(ctx, cctx.Int("reports")); err != nil {
			return err
		}
		return nil
	},
}
