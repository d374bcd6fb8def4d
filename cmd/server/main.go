// Package main is the entry point for the SkyNet trading engine. The engine
// stores bar series, replays them through the execution simulator under risk
// management, and evolves a population of predictors in the background, all
// exposed over a JSON API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/SkyNet-coder2025/skynet-trading/internal/backtest"
	"github.com/SkyNet-coder2025/skynet-trading/internal/config"
	"github.com/SkyNet-coder2025/skynet-trading/internal/database"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/events"
	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
	"github.com/SkyNet-coder2025/skynet-trading/internal/marketdata"
	"github.com/SkyNet-coder2025/skynet-trading/internal/monitor"
	"github.com/SkyNet-coder2025/skynet-trading/internal/risk"
	"github.com/SkyNet-coder2025/skynet-trading/internal/scheduler"
	"github.com/SkyNet-coder2025/skynet-trading/internal/server"
	"github.com/SkyNet-coder2025/skynet-trading/internal/snapshots"
	"github.com/SkyNet-coder2025/skynet-trading/pkg/logger"
)

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an integer environment variable with a fallback.
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsFloat retrieves a float environment variable with a fallback.
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func main() {
	// Load configuration first to get log level.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting SkyNet trading engine")

	// One database holds both the bar store and the population checkpoints.
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "skynet.db"),
		Profile: database.ProfileStandard,
		Name:    "skynet",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	ctx := context.Background()

	barsRepo := marketdata.NewRepository(db.Conn(), log)
	if err := barsRepo.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bar store")
	}
	snapsRepo := snapshots.NewRepository(db.Conn(), log)
	if err := snapsRepo.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot store")
	}

	bus := events.NewBus(log)
	bus.Subscribe(func(event domain.AlertEvent) {
		log.Warn().
			Str("kind", string(event.Kind)).
			Str("message", event.Message).
			Float64("value", event.Value).
			Msg("Alert")
	})

	// The optimizer trains against one configured symbol. If no bars for it
	// exist yet, evolution steps fail until data is imported and the engine
	// restarted; the rest of the API works regardless.
	trainingSymbol := getEnv("TRAINING_SYMBOL", "")
	var trainingBars []domain.Bar
	if trainingSymbol != "" {
		trainingBars, err = barsRepo.LoadBars(ctx, trainingSymbol, getEnvAsInt("TRAINING_BARS", 0))
		if err != nil {
			log.Fatal().Err(err).Str("symbol", trainingSymbol).Msg("Failed to load training bars")
		}
	}
	if len(trainingBars) == 0 {
		log.Warn().Str("symbol", trainingSymbol).Msg("No training bars available, evolution will reject steps until data is imported")
	} else {
		log.Info().Str("symbol", trainingSymbol).Int("bars", len(trainingBars)).Msg("Training dataset loaded")
	}

	engine := cfg.Engine
	sim := backtest.NewSimulator(
		backtest.Config{
			Lookback:               engine.Lookback,
			InitialCapital:         engine.InitialCapital,
			SlippageFactor:         engine.SlippageFactor,
			DrawdownAlertThreshold: engine.DrawdownAlertThreshold,
			LatencyBars:            engine.LatencyBars,
			PeriodsPerYear:         engine.PeriodsPerYear,
		},
		risk.Config{
			ATRPeriod:         engine.ATRPeriod,
			MaxDrawdownBudget: engine.MaxDrawdownBudget,
			PeriodsPerYear:    engine.PeriodsPerYear,
		},
		bus,
		log,
	)

	threshold := getEnvAsFloat("SIGNAL_THRESHOLD", 0.001)
	fitness := evolution.SimulatorFitness(sim, trainingBars, engine.Lookback, threshold)

	opt, err := evolution.NewOptimizer(evolution.Config{
		PopulationSize: engine.PopulationSize,
		EliteCount:     engine.EliteCount,
		Workers:        engine.Workers,
		FineTuneEpochs: engine.FineTuneEpochs,
	}, fitness, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create optimizer")
	}

	pop := make(evolution.Population, 0, engine.PopulationSize)
	for i := 0; i < engine.PopulationSize; i++ {
		p, err := evolution.NewPredictor(engine.PredictorKind)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed population")
		}
		pop = append(pop, evolution.NewCandidate(p))
	}
	evoService := evolution.NewService(opt, pop, trainingBars, log)

	// Resume from the latest checkpoint when one exists and still matches the
	// configured population size.
	if snap, err := snapsRepo.Latest(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to read latest snapshot")
	} else if snap != nil {
		restored, err := snap.Restore()
		if err == nil {
			err = evoService.Restore(restored, snap.Generation)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Could not resume from checkpoint, starting fresh")
		} else {
			log.Info().Int("generation", snap.Generation).Msg("Resumed population from checkpoint")
		}
	}

	// Background jobs: periodic population checkpoints and system monitoring.
	sched := scheduler.New(log)

	checkpointJob := scheduler.NewCheckpointJob(evoService, snapsRepo, getEnvAsInt("CHECKPOINT_KEEP", 5), log)
	if err := sched.AddJob(getEnv("CHECKPOINT_SCHEDULE", "0 */5 * * * *"), checkpointJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule checkpoint job")
	}

	monitorJob := monitor.NewJob(monitor.Config{
		CPUThreshold:    getEnvAsFloat("CPU_ALERT_THRESHOLD", 90),
		MemoryThreshold: getEnvAsFloat("MEMORY_ALERT_THRESHOLD", 90),
	}, bus, db, log)
	if err := sched.AddJob(getEnv("MONITOR_SCHEDULE", "30 * * * * *"), monitorJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule system monitor")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		DB:        db,
		Bars:      barsRepo,
		Snapshots: snapsRepo,
		Evolution: evoService,
		Bus:       bus,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Final checkpoint so a restart resumes from the latest generation.
	if err := sched.RunNow(checkpointJob); err != nil {
		log.Error().Err(err).Msg("Final checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
