// Package snapshots persists evolutionary population checkpoints so a run can
// resume after a restart without losing trained candidates.
package snapshots

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
)

// FormatVersion is bumped whenever the encoded layout changes. Decode rejects
// payloads written by a different version instead of guessing.
const FormatVersion = 1

// CandidateRecord is the serializable form of a candidate: parameters instead
// of a live predictor, so the predictor is rebuilt from its kind on restore.
type CandidateRecord struct {
	Index      int       `msgpack:"index"`
	Lineage    string    `msgpack:"lineage"`
	Age        int       `msgpack:"age"`
	Fitness    float64   `msgpack:"fitness"`
	Variance   float64   `msgpack:"variance"`
	Kind       string    `msgpack:"kind"`
	Parameters []float64 `msgpack:"parameters"`
}

// Snapshot is a versioned envelope around one full population.
type Snapshot struct {
	Version    int               `msgpack:"version"`
	CreatedAt  time.Time         `msgpack:"created_at"`
	Generation int               `msgpack:"generation"`
	Candidates []CandidateRecord `msgpack:"candidates"`
}

// Capture freezes a population into a snapshot. Candidate order is preserved
// so restoring yields the same deterministic elite tie-breaking.
func Capture(pop evolution.Population, generation int) *Snapshot {
	records := make([]CandidateRecord, 0, len(pop))
	for i, c := range pop {
		params := c.Predictor.Parameters()
		stored := make([]float64, len(params))
		copy(stored, params)
		records = append(records, CandidateRecord{
			Index:      i,
			Lineage:    c.Lineage,
			Age:        c.Age,
			Fitness:    c.Fitness,
			Variance:   c.PredVariance,
			Kind:       c.Predictor.Kind(),
			Parameters: stored,
		})
	}
	return &Snapshot{
		Version:    FormatVersion,
		CreatedAt:  time.Now().UTC(),
		Generation: generation,
		Candidates: records,
	}
}

// Encode serializes the snapshot to msgpack.
func (s *Snapshot) Encode() ([]byte, error) {
	payload, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return payload, nil
}

// Decode parses a msgpack payload and verifies the format version.
func Decode(payload []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", s.Version, FormatVersion)
	}
	return &s, nil
}

// Restore rebuilds a live population from the snapshot. Each predictor is
// reconstructed from its kind and then loaded with the stored parameters.
func (s *Snapshot) Restore() (evolution.Population, error) {
	pop := make(evolution.Population, 0, len(s.Candidates))
	for _, rec := range s.Candidates {
		p, err := evolution.NewPredictor(rec.Kind)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", rec.Index, err)
		}
		if err := p.SetParameters(rec.Parameters); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", rec.Index, err)
		}
		pop = append(pop, &evolution.Candidate{
			Predictor:    p,
			Fitness:      rec.Fitness,
			PredVariance: rec.Variance,
			Age:          rec.Age,
			Lineage:      rec.Lineage,
		})
	}
	return pop, nil
}
