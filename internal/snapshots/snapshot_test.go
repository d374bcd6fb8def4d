package snapshots

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
)

func testPopulation(t *testing.T, n int) evolution.Population {
	t.Helper()
	pop, err := evolution.NewPopulation(n, evolution.KindLinear)
	require.NoError(t, err)
	for i, c := range pop {
		c.Fitness = float64(i) * 0.5
		c.PredVariance = float64(n-i) * 0.1
		c.Age = i
	}
	return pop
}

func testWindow(n int) domain.Window {
	bars := make([]domain.Bar, n)
	price := 100.0
	for i := range bars {
		price *= 1.001
		bars[i] = domain.Bar{
			Timestamp: time.Unix(int64(i)*60, 0),
			Open:      price,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    1000,
		}
	}
	return domain.Window(bars)
}

func TestSnapshotRoundTrip(t *testing.T) {
	pop := testPopulation(t, 6)

	payload, err := Capture(pop, 42).Encode()
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, decoded.Version)
	assert.Equal(t, 42, decoded.Generation)

	restored, err := decoded.Restore()
	require.NoError(t, err)
	require.Len(t, restored, len(pop))

	window := testWindow(30)
	for i, c := range restored {
		assert.Equal(t, pop[i].Lineage, c.Lineage)
		assert.Equal(t, pop[i].Age, c.Age)
		assert.Equal(t, pop[i].Fitness, c.Fitness)
		assert.Equal(t, pop[i].PredVariance, c.PredVariance)
		assert.Equal(t, pop[i].Predictor.Parameters(), c.Predictor.Parameters())

		// Restored predictors must forecast identically to the originals.
		want, err := pop[i].Predictor.Predict(window)
		require.NoError(t, err)
		got, err := c.Predictor.Predict(window)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSnapshotPreservesUnevaluatedFitness(t *testing.T) {
	pop, err := evolution.NewPopulation(2, evolution.KindLinear)
	require.NoError(t, err)

	payload, err := Capture(pop, 0).Encode()
	require.NoError(t, err)
	decoded, err := Decode(payload)
	require.NoError(t, err)
	restored, err := decoded.Restore()
	require.NoError(t, err)

	for _, c := range restored {
		assert.True(t, math.IsNaN(c.Fitness))
		assert.False(t, c.Evaluated())
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	s := Capture(testPopulation(t, 2), 1)
	s.Version = FormatVersion + 1
	payload, err := s.Encode()
	require.NoError(t, err)

	_, err = Decode(payload)
	assert.ErrorContains(t, err, "unsupported snapshot version")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xde, 0xad, 0xbe})
	assert.Error(t, err)
}

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestRepositorySaveAndLatest(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty store has no latest snapshot")

	first := Capture(testPopulation(t, 3), 1)
	_, err = repo.Save(ctx, first)
	require.NoError(t, err)

	second := Capture(testPopulation(t, 3), 2)
	_, err = repo.Save(ctx, second)
	require.NoError(t, err)

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Generation)
	assert.Len(t, latest.Candidates, 3)
}

func TestRepositoryPrune(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for gen := 1; gen <= 5; gen++ {
		_, err := repo.Save(ctx, Capture(testPopulation(t, 2), gen))
		require.NoError(t, err)
	}

	deleted, err := repo.Prune(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Generation)
}
