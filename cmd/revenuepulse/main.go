package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics"
	"github.com/smallbiznis/revenuepulse/internal/cache"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/datasource"
	"github.com/smallbiznis/revenuepulse/internal/observability"
	"github.com/smallbiznis/revenuepulse/internal/providers"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/internal/report"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"github.com/smallbiznis/revenuepulse/internal/scheduler"
	"github.com/smallbiznis/revenuepulse/internal/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	runNow := flag.Bool("run-now", false, "compute and deliver one report, then exit")
	flag.Parse()

	if *runNow {
		os.Exit(runOnce())
	}

	app := fx.New(
		coreModules(),
		server.Module,
		scheduler.Module,
		fx.Invoke(scheduler.Start),
	)
	app.Run()
}

func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		cache.Module,
		ratelimit.Module,
		datasource.Module,
		billingmetrics.Module,
		providers.Module,
		report.Module,
	)
}

// runOnce delivers a single unguarded report and returns the process exit code.
func runOnce() int {
	var (
		reports reportdomain.Service
		cfg     config.Config
		log     *zap.Logger
	)
	app := fx.New(
		coreModules(),
		fx.NopLogger,
		fx.Populate(&reports, &cfg, &log),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "revenuepulse: %v\n", err)
		return 1
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "revenuepulse: start: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	ctx, cancelRun := context.WithTimeout(context.Background(), cfg.RunTimeoutOrDefault())
	defer cancelRun()

	result, err := reports.Run(ctx, reportdomain.RunOptions{Trigger: reportdomain.TriggerRunNow})
	if err != nil {
		log.Error("report run failed", zap.String("run_id", result.RunID), zap.Error(err))
		return 1
	}
	log.Info("report delivered", zap.String("run_id", result.RunID), zap.Strings("sinks", result.Delivered))
	return 0
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
