package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SkyNet-coder2025/skynet-trading/internal/backtest"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
	"github.com/SkyNet-coder2025/skynet-trading/internal/marketdata"
	"github.com/SkyNet-coder2025/skynet-trading/internal/risk"
)

// defaultSignalThreshold is the forecast magnitude below which a predictor
// strategy holds.
const defaultSignalThreshold = 0.001

type backtestRequest struct {
	Symbol string `json:"symbol"`
	// Predictor kind; empty uses the configured default. Ignored when UseBest
	// is set.
	Predictor    string  `json:"predictor,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	UseBest      bool    `json:"use_best,omitempty"`
	Limit        int     `json:"limit,omitempty"` // most recent bars; 0 = all
	IncludeFills bool    `json:"include_fills,omitempty"`
}

type backtestResponse struct {
	Symbol      string        `json:"symbol"`
	Bars        int           `json:"bars"`
	TotalReturn float64       `json:"total_return"`
	MaxDrawdown float64       `json:"max_drawdown"`
	SharpeRatio interface{}   `json:"sharpe_ratio"` // null when undefined
	TradeCount  int           `json:"trade_count"`
	FinalValue  float64       `json:"final_value"`
	BarsStepped int           `json:"bars_stepped"`
	Fills       []domain.Fill `json:"fills,omitempty"`
}

// handleBacktest replays a stored symbol through the execution simulator.
func (h *Handlers) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	bars, err := h.bars.LoadBars(r.Context(), req.Symbol, req.Limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(bars) == 0 {
		h.writeError(w, http.StatusNotFound, "no bars stored for symbol")
		return
	}

	strategy, err := h.buildStrategy(req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	cfg := h.EngineConfig()
	sim := backtest.NewSimulator(
		backtest.Config{
			Lookback:               cfg.Lookback,
			InitialCapital:         cfg.InitialCapital,
			SlippageFactor:         cfg.SlippageFactor,
			DrawdownAlertThreshold: cfg.DrawdownAlertThreshold,
			LatencyBars:            cfg.LatencyBars,
			PeriodsPerYear:         cfg.PeriodsPerYear,
		},
		risk.Config{
			ATRPeriod:         cfg.ATRPeriod,
			MaxDrawdownBudget: cfg.MaxDrawdownBudget,
			PeriodsPerYear:    cfg.PeriodsPerYear,
		},
		h.bus,
		h.log,
	)

	report, err := sim.Run(strategy, bars)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := backtestResponse{
		Symbol:      req.Symbol,
		Bars:        len(bars),
		TotalReturn: report.TotalReturn,
		MaxDrawdown: report.MaxDrawdown,
		SharpeRatio: finiteOrNil(report.SharpeRatio),
		TradeCount:  report.TradeCount,
		FinalValue:  report.FinalValue,
		BarsStepped: report.BarsStepped,
	}
	if req.IncludeFills {
		resp.Fills = report.Fills
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// buildStrategy resolves the predictor behind a backtest request.
func (h *Handlers) buildStrategy(req backtestRequest) (domain.Strategy, error) {
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = defaultSignalThreshold
	}

	if req.UseBest {
		if h.evolution == nil {
			return nil, domain.NewConfigurationError("use_best", "evolution service not configured")
		}
		best, _, ok := h.evolution.Best()
		if !ok {
			return nil, domain.NewConfigurationError("use_best", "no evolved candidate available yet")
		}
		return &evolution.PredictorStrategy{Predictor: best.Predictor, Threshold: threshold}, nil
	}

	kind := req.Predictor
	if kind == "" {
		kind = h.EngineConfig().PredictorKind
	}
	p, err := evolution.NewPredictor(kind)
	if err != nil {
		return nil, err
	}
	return &evolution.PredictorStrategy{Predictor: p, Threshold: threshold}, nil
}

// handleSymbols lists symbols with stored bars.
func (h *Handlers) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.bars.Symbols(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

// handleImport ingests a CSV body of bars for a symbol.
func (h *Handlers) handleImport(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	bars, err := marketdata.ParseCSV(r.Body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(bars) == 0 {
		h.writeError(w, http.StatusBadRequest, "CSV contains no bars")
		return
	}

	if err := h.bars.SaveBars(r.Context(), symbol, bars); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"symbol": symbol,
		"bars":   len(bars),
	})
}
