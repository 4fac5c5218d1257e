package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/adjuster"
	"github.com/jarednorman/solidus-friendly-promotions/internal/audit"
	"github.com/jarednorman/solidus-friendly-promotions/internal/cache"
	"github.com/jarednorman/solidus-friendly-promotions/internal/checkout"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/events"
	"github.com/jarednorman/solidus-friendly-promotions/internal/migration"
	"github.com/jarednorman/solidus-friendly-promotions/internal/observability"
	"github.com/jarednorman/solidus-friendly-promotions/internal/order"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/ratelimit"
	"github.com/jarednorman/solidus-friendly-promotions/internal/seed"
	"github.com/jarednorman/solidus-friendly-promotions/internal/server"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := runSeed(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		events.Module,

		// Functional Domains
		audit.Module,
		order.Module,
		promotion.Module,
		adjuster.Module,
		checkout.Module,

		server.Module,
	)
	app.Run()
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	path := fs.String("file", "", "promotion fixture pack (yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("seed: -file is required")
	}

	pack, err := seed.LoadPack(*path)
	if err != nil {
		return err
	}

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		order.Module,
		promotion.Module,
		fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, repo promodomain.Repository, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			summary, err := seed.Apply(ctx, conn, node, repo, pack, log)
			if err != nil {
				return err
			}
			log.Info("seed applied",
				zap.Int("categories", summary.Categories),
				zap.Int("promotions", summary.Promotions),
				zap.Int("skipped", summary.Skipped),
				zap.Int("codes", summary.Codes),
			)
			return nil
		}),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
