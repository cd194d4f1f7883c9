package main

import (
	"context"
	"flag"
	"time"

	"net/http"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/app"
	"github.com/shrimpsizemoose/kungsborg/internal/handlers"
)

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
	service.Start(ctx)

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(service.Config.Koth.AccrualSweepSecs).Seconds().Do(func() {
		if err := service.Arbiter.AccrueOpen(ctx); err != nil {
			logger.Error.Printf("KOTH accrual sweep failed: %v", err)
		}
	}); err != nil {
		logger.Error.Fatalf("Failed to schedule accrual sweep: %v", err)
	}
	if _, err := scheduler.Every(service.Config.Reconcile.SweepSeconds).Seconds().Do(func() {
		if err := service.Aggregator.ReconcileAll(ctx); err != nil {
			logger.Error.Printf("Reconciliation sweep: %v", err)
		}
	}); err != nil {
		logger.Error.Fatalf("Failed to schedule reconciliation sweep: %v", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	coreHandler := handlers.NewCoreHandler(service)

	http.HandleFunc("POST /api/v1/teams", coreHandler.HandleRegisterTeam)
	http.HandleFunc("GET /api/v1/teams/{id}/score", coreHandler.HandleTeamScore)
	http.HandleFunc("GET /api/v1/challenges", coreHandler.HandleListChallenges)
	http.HandleFunc("POST /api/v1/challenges/{id}/submit", coreHandler.HandleSubmitFlag)
	http.HandleFunc("GET /api/v1/challenges/{id}/hints", coreHandler.HandleListHints)
	http.HandleFunc("POST /api/v1/hints/{id}/unlock", coreHandler.HandleUnlockHint)
	http.HandleFunc("GET /api/v1/koth/targets", coreHandler.HandleKothTargets)
	http.HandleFunc("POST /api/v1/koth/{id}/claim", coreHandler.HandleKothClaim)
	http.HandleFunc("GET /api/v1/scoreboard", coreHandler.HandleScoreboard)
	http.HandleFunc("POST /api/v1/admin/close", coreHandler.HandleCloseCompetition)
	http.HandleFunc("POST /api/v1/admin/reconcile", coreHandler.HandleReconcile)

	http.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting kungsborg server on %s", service.Config.Server.Port)
	logger.Debug.Printf("Leaderboard staleness bound: %s", service.Config.StalenessBound())
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Kungsborg server failed: %v", err)
	}
}
