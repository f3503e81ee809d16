package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colosseumrl/colosseumrl/internal/api/controller"
	"github.com/colosseumrl/colosseumrl/internal/config"
	"github.com/colosseumrl/colosseumrl/internal/db"
	"github.com/colosseumrl/colosseumrl/internal/environment"
	"github.com/colosseumrl/colosseumrl/internal/events"
	"github.com/colosseumrl/colosseumrl/internal/logger"
	"github.com/colosseumrl/colosseumrl/internal/matchserver"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
	"github.com/colosseumrl/colosseumrl/internal/rating"
	"github.com/colosseumrl/colosseumrl/internal/scheduler"
	"github.com/colosseumrl/colosseumrl/internal/server"
	"github.com/colosseumrl/colosseumrl/internal/telemetry"

	_ "github.com/colosseumrl/colosseumrl/internal/environment/guessing"
	_ "github.com/colosseumrl/colosseumrl/internal/environment/rps"
	_ "github.com/colosseumrl/colosseumrl/internal/environment/tictactoe"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger.Init(level)

	envConfig, err := environment.ParseConfig(cfg.EnvConfig)
	if err != nil {
		log.Fatalf("failed to parse environment config: %v", err)
	}

	// Initialize Redis (optional)
	rdb, err := db.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to initialize redis: %v", err)
	}
	publisher := events.NewPublisher(rdb)

	// Initialize the ranking store
	pool, err := db.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open ranking database: %v", err)
	}
	store, err := ranking.New(pool, rating.NewTrueSkill())
	if err != nil {
		log.Fatalf("failed to initialize ranking store: %v", err)
	}

	// Create the scheduler; too few usable match ports is fatal here.
	sched, err := scheduler.New(scheduler.Config{
		Hostname:         cfg.Hostname,
		Environment:      cfg.Environment,
		EnvConfig:        envConfig,
		GamePortStart:    cfg.GamePortStart,
		MaxGames:         cfg.MaxGames,
		TickRate:         cfg.TickRate,
		Realtime:         cfg.Realtime,
		ObservationsOnly: cfg.ObservationsOnly,
		Timeouts: matchserver.Timeouts{
			Connect: cfg.ConnectTimeout,
			Start:   cfg.StartTimeout,
			Move:    cfg.MoveTimeout,
			End:     cfg.EndTimeout,
		},
		QueuePoll: cfg.QueuePoll,
	}, store, publisher)
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	if cfg.MatchBySkill {
		sched.SetSelector(&scheduler.BySkill{Store: store})
	}
	go sched.Run(ctx)

	// Create the Gin-based API server
	srv := server.New(
		controller.NewMatchController(sched, cfg.Environment),
		controller.NewPlayerController(store),
	)

	go func() {
		slog.Info("matchmaking server started",
			"port", cfg.APIPort, "environment", cfg.Environment, "max_games", cfg.MaxGames)
		if err := srv.Run(cfg.APIPort); err != nil {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slog.Info("server exiting")
}
