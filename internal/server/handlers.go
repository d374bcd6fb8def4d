package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/config"
	"github.com/SkyNet-coder2025/skynet-trading/internal/database"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/events"
	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
	"github.com/SkyNet-coder2025/skynet-trading/internal/marketdata"
	"github.com/SkyNet-coder2025/skynet-trading/internal/monitor"
	"github.com/SkyNet-coder2025/skynet-trading/internal/snapshots"
)

// HandlersConfig wires the API handlers.
type HandlersConfig struct {
	Log       zerolog.Logger
	Engine    config.EngineConfig
	DB        *database.DB
	Bars      *marketdata.Repository
	Snapshots *snapshots.Repository
	Evolution *evolution.Service
	Bus       *events.Bus
}

// Handlers serves the JSON API. The engine configuration it holds is the
// runtime-patchable copy: PATCH /api/config swaps it atomically for a
// validated new value.
type Handlers struct {
	log       zerolog.Logger
	db        *database.DB
	bars      *marketdata.Repository
	snapshots *snapshots.Repository
	evolution *evolution.Service
	bus       *events.Bus
	startedAt time.Time

	mu     sync.RWMutex
	engine config.EngineConfig
}

// NewHandlers creates the API handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		log:       cfg.Log.With().Str("component", "api").Logger(),
		db:        cfg.DB,
		bars:      cfg.Bars,
		snapshots: cfg.Snapshots,
		evolution: cfg.Evolution,
		bus:       cfg.Bus,
		startedAt: time.Now(),
		engine:    cfg.Engine,
	}
}

// RegisterRoutes mounts the API under the given router.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/metrics", h.handleMetrics)
	r.Get("/alerts", h.handleAlerts)

	r.Get("/config", h.handleGetConfig)
	r.Patch("/config", h.handlePatchConfig)

	r.Post("/backtest", h.handleBacktest)

	r.Route("/data", func(r chi.Router) {
		r.Get("/symbols", h.handleSymbols)
		r.Post("/{symbol}/import", h.handleImport)
	})

	r.Route("/evolution", func(r chi.Router) {
		r.Post("/step", h.handleEvolutionStep)
		r.Get("/best", h.handleEvolutionBest)
	})

	r.Route("/snapshots", func(r chi.Router) {
		r.Post("/", h.handleSaveSnapshot)
		r.Get("/latest", h.handleLatestSnapshot)
		r.Post("/restore", h.handleRestoreSnapshot)
	})
}

// EngineConfig returns the current runtime engine configuration.
func (h *Handlers) EngineConfig() config.EngineConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// handleStatus reports uptime, host resources and optimizer progress.
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := monitor.CollectStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to collect system stats")
	}

	status := "healthy"
	if h.db != nil {
		if err := h.db.Conn().PingContext(r.Context()); err != nil {
			status = "unhealthy"
		}
	}

	generation := 0
	if h.evolution != nil {
		_, generation = h.evolution.State()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    stats.CPUPercent,
		"memory_percent": stats.MemoryPercent,
		"memory_used_mb": stats.MemoryUsedMB,
		"generation":     generation,
	})
}

// handleMetrics reports engine-level counters as JSON. The Prometheus
// scrape endpoint lives at /metrics on the root router.
func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"recent_alerts": 0,
		"generation":    0,
	}

	if h.bus != nil {
		resp["recent_alerts"] = len(h.bus.Recent())
	}
	if h.evolution != nil {
		best, gen, ok := h.evolution.Best()
		resp["generation"] = gen
		if ok {
			resp["best_fitness"] = finiteOrNil(best.Fitness)
			resp["best_lineage"] = best.Lineage
		}
	}
	if h.bars != nil {
		if symbols, err := h.bars.Symbols(r.Context()); err == nil {
			resp["symbols"] = len(symbols)
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleAlerts returns the most recent alert events.
func (h *Handlers) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := []domain.AlertEvent{}
	if h.bus != nil {
		alerts = h.bus.Recent()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// handleGetConfig returns the current engine configuration.
func (h *Handlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.EngineConfig())
}

// handlePatchConfig validates and applies a configuration patch. The patch is
// all-or-nothing: one bad key rejects the whole request.
func (h *Handlers) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var changes map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(changes) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty patch")
		return
	}

	h.mu.Lock()
	next, err := h.engine.Patch(changes)
	// Optimizer parameters steer the live evolution service, not just future
	// backtests: an accepted patch must take effect on the next step.
	if err == nil && h.evolution != nil &&
		(next.PopulationSize != h.engine.PopulationSize || next.EliteCount != h.engine.EliteCount) {
		err = h.evolution.Reconfigure(next.PopulationSize, next.EliteCount)
	}
	if err == nil {
		h.engine = next
	}
	h.mu.Unlock()

	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.Info().Interface("changes", changes).Msg("Engine configuration patched")
	h.writeJSON(w, http.StatusOK, next)
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error body.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP status codes:
// configuration problems are the client's fault, malformed datasets and
// insufficient history are unprocessable, everything else is internal.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ConfigurationError
	var dsErr *domain.DatasetError

	switch {
	case errors.As(err, &cfgErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dsErr),
		errors.Is(err, domain.ErrInsufficientHistory),
		errors.Is(err, domain.ErrDegenerateVolatility),
		errors.Is(err, domain.ErrEmptyReturnSeries):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// finiteOrNil converts non-finite floats to nil so they survive JSON encoding.
func finiteOrNil(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
