package server

import (
	"net/http"

	"github.com/SkyNet-coder2025/skynet-trading/internal/snapshots"
)

// handleEvolutionStep runs one generation and reports the new elite.
func (h *Handlers) handleEvolutionStep(w http.ResponseWriter, r *http.Request) {
	if h.evolution == nil {
		h.writeError(w, http.StatusServiceUnavailable, "evolution service not configured")
		return
	}

	result, err := h.evolution.Step(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation":     result.Generation,
		"best_fitness":   finiteOrNil(result.BestFitness),
		"best_lineage":   result.BestLineage,
		"elite_lineages": result.EliteLineages,
		"population":     result.Population,
	})
}

// handleEvolutionBest describes the best candidate of the latest generation.
func (h *Handlers) handleEvolutionBest(w http.ResponseWriter, r *http.Request) {
	if h.evolution == nil {
		h.writeError(w, http.StatusServiceUnavailable, "evolution service not configured")
		return
	}

	best, gen, ok := h.evolution.Best()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no generation has completed yet")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation": gen,
		"fitness":    finiteOrNil(best.Fitness),
		"variance":   finiteOrNil(best.PredVariance),
		"lineage":    best.Lineage,
		"age":        best.Age,
		"kind":       best.Predictor.Kind(),
		"parameters": best.Predictor.Parameters(),
	})
}

// handleSaveSnapshot persists the current population as a checkpoint.
func (h *Handlers) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.evolution == nil || h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshotting not configured")
		return
	}

	pop, gen := h.evolution.State()
	if len(pop) == 0 {
		h.writeError(w, http.StatusConflict, "population is empty, nothing to snapshot")
		return
	}

	snap := snapshots.Capture(pop, gen)
	id, err := h.snapshots.Save(r.Context(), snap)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         id,
		"generation": gen,
		"candidates": len(snap.Candidates),
		"created_at": snap.CreatedAt,
	})
}

// handleLatestSnapshot returns metadata for the most recent checkpoint.
func (h *Handlers) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshotting not configured")
		return
	}

	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no snapshots stored")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    snap.Version,
		"generation": snap.Generation,
		"candidates": len(snap.Candidates),
		"created_at": snap.CreatedAt,
	})
}

// handleRestoreSnapshot replaces the live population with the latest
// checkpoint.
func (h *Handlers) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.evolution == nil || h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshotting not configured")
		return
	}

	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no snapshots stored")
		return
	}

	pop, err := snap.Restore()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.evolution.Restore(pop, snap.Generation); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation": snap.Generation,
		"candidates": len(pop),
	})
}
