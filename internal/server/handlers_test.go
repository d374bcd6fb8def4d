package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/SkyNet-coder2025/skynet-trading/internal/config"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/events"
	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
	"github.com/SkyNet-coder2025/skynet-trading/internal/marketdata"
	"github.com/SkyNet-coder2025/skynet-trading/internal/snapshots"
)

// apiBars builds a gently rising series long enough for a backtest with the
// test lookback of 20.
func apiBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := 100.0
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price *= 1.001
		bars[i] = domain.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price * 0.999,
			High:      price * 1.002,
			Low:       price * 0.998,
			Close:     price,
			Volume:    1000,
			Bid:       price * 0.9995,
			Ask:       price * 1.0005,
		}
	}
	return bars
}

// barsCSV renders bars in the import format.
func barsCSV(bars []domain.Bar) string {
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume,bid,ask\n")
	for _, bar := range bars {
		fmt.Fprintf(&b, "%d,%f,%f,%f,%f,%f,%f,%f\n",
			bar.Timestamp.Unix(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Bid, bar.Ask)
	}
	return b.String()
}

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	barsRepo := marketdata.NewRepository(db, log)
	require.NoError(t, barsRepo.Init(context.Background()))
	snapsRepo := snapshots.NewRepository(db, log)
	require.NoError(t, snapsRepo.Init(context.Background()))

	engine := config.DefaultEngineConfig()
	engine.ATRPeriod = 5
	engine.Lookback = 20
	engine.PopulationSize = 6
	engine.EliteCount = 2
	engine.Workers = 2
	engine.FineTuneEpochs = 0

	// Deterministic fitness: higher parameter sum wins.
	fitness := func(c *evolution.Candidate) (float64, float64, error) {
		var sum float64
		for _, p := range c.Predictor.Parameters() {
			sum += p
		}
		return sum, 0, nil
	}
	opt, err := evolution.NewOptimizer(evolution.Config{
		PopulationSize: 6,
		EliteCount:     2,
		Workers:        2,
		Seed:           7,
	}, fitness, log)
	require.NoError(t, err)

	pop := make(evolution.Population, 0, 6)
	for i := 0; i < 6; i++ {
		p, err := evolution.NewPredictor(evolution.KindLinear)
		require.NoError(t, err)
		params := p.Parameters()
		params[0] = float64(i) * 0.01
		require.NoError(t, p.SetParameters(params))
		pop = append(pop, evolution.NewCandidate(p))
	}
	svc := evolution.NewService(opt, pop, apiBars(60), log)

	h := NewHandlers(HandlersConfig{
		Log:       log,
		Engine:    engine,
		Bars:      barsRepo,
		Snapshots: snapsRepo,
		Evolution: svc,
		Bus:       events.NewBus(log),
	})

	router := chi.NewRouter()
	router.Route("/api", h.RegisterRoutes)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestAPI(t)

	rec, body := doJSON(t, router, http.MethodGet, "/api/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["generation"])
}

func TestConfigPatchLifecycle(t *testing.T) {
	router := newTestAPI(t)

	rec, body := doJSON(t, router, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), body["lookback"])

	rec, body = doJSON(t, router, http.MethodPatch, "/api/config", `{"slippage_factor": 0.01}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.01, body["slippage_factor"])

	// One bad key rejects the whole patch.
	rec, _ = doJSON(t, router, http.MethodPatch, "/api/config", `{"slippage_factor": 0.02, "atr_period": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doJSON(t, router, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.01, body["slippage_factor"])

	rec, _ = doJSON(t, router, http.MethodPatch, "/api/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPatch, "/api/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigPatchReconfiguresOptimizer(t *testing.T) {
	router := newTestAPI(t)

	rec, body := doJSON(t, router, http.MethodPatch, "/api/config", `{"population_size": 8, "elite_count": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(8), body["population_size"])

	// The next generation must run at the patched size.
	rec, body = doJSON(t, router, http.MethodPost, "/api/evolution/step", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(8), body["population"])
	assert.Len(t, body["elite_lineages"], 3)

	// A patch the optimizer cannot honor leaves both config and service as
	// they were.
	rec, _ = doJSON(t, router, http.MethodPatch, "/api/config", `{"elite_count": 20}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doJSON(t, router, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["elite_count"])
}

func TestImportSymbolsBacktest(t *testing.T) {
	router := newTestAPI(t)
	csv := barsCSV(apiBars(60))

	rec, body := doJSON(t, router, http.MethodPost, "/api/data/TEST/import", csv)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(60), body["bars"])

	rec, body = doJSON(t, router, http.MethodGet, "/api/data/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["symbols"], "TEST")

	rec, body = doJSON(t, router, http.MethodPost, "/api/backtest", `{"symbol": "TEST"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(60), body["bars"])
	assert.NotNil(t, body["final_value"])

	rec, _ = doJSON(t, router, http.MethodPost, "/api/backtest", `{"symbol": "MISSING"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/backtest", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No generation has run yet, so use_best cannot resolve a predictor.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/backtest", `{"symbol": "TEST", "use_best": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRejectsMalformedCSV(t *testing.T) {
	router := newTestAPI(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/data/TEST/import", "timestamp,open\n1,2\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEvolutionStepAndBest(t *testing.T) {
	router := newTestAPI(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/evolution/best", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := doJSON(t, router, http.MethodPost, "/api/evolution/step", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["generation"])
	assert.Equal(t, float64(6), body["population"])
	assert.NotEmpty(t, body["best_lineage"])

	rec, body = doJSON(t, router, http.MethodGet, "/api/evolution/best", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["generation"])
	assert.Equal(t, "linear", body["kind"])
	assert.NotEmpty(t, body["lineage"])
}

func TestSnapshotLifecycle(t *testing.T) {
	router := newTestAPI(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/snapshots/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/evolution/step", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, router, http.MethodPost, "/api/snapshots/", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["generation"])
	assert.Equal(t, float64(6), body["candidates"])

	rec, body = doJSON(t, router, http.MethodGet, "/api/snapshots/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["generation"])

	// Advance past the checkpoint, then roll back to it.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/evolution/step", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, router, http.MethodPost, "/api/snapshots/restore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["generation"])

	rec, body = doJSON(t, router, http.MethodPost, "/api/evolution/step", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["generation"])
}
