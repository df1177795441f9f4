package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/cmd/billingctl/cli"
	"github.com/odyssey-erp/odyssey-billing/internal/app"
	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg *app.Config
	loadConfig := func() (*app.Config, error) {
		if cfg != nil {
			return cfg, nil
		}
		loaded, err := app.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return cfg, nil
	}

	root := cli.NewRootCommand(cli.Env{
		Repairer: func(ctx context.Context) (cli.Repairer, func(), error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, nil, err
			}
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			svc := billing.NewService(billing.NewRepository(pool), billing.ServiceConfig{
				Logger:            app.NewLogger(cfg),
				RecalcConcurrency: cfg.RecalcConcurrency,
			})
			return svc, pool.Close, nil
		},
		Jobs: func() (cli.JobsClient, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			return cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		},
	})

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		_, _ = fmt.Fprintln(os.Stderr, "billingctl:", err)
		os.Exit(1)
	}
}
