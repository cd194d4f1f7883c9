package main

import (
	"context"
	"flag"
	"os"
	"time"

	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/app"
)

// Out-of-band auditor: folds every team's ledger on a schedule, repairs
// drift introduced behind the server's back (manual row fixes, restores)
// and republishes the leaderboard snapshot.
func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(service.Config.Reconcile.SweepSeconds).Seconds().Do(func() {
		if err := service.Aggregator.ReconcileAll(ctx); err != nil {
			logger.Error.Printf("Reconciliation sweep: %v", err)
		}
		if err := service.Leaderboard.Rebuild(ctx); err != nil {
			logger.Error.Printf("Leaderboard rebuild failed: %v", err)
		}
	}); err != nil {
		logger.Error.Fatalf("Failed to schedule reconciliation: %v", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	logger.Info.Println("Reconciler running, sweeping every",
		service.Config.Reconcile.SweepSeconds, "seconds")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info.Println("Reconciler stopped")
}
