package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/evolution"
	"github.com/SkyNet-coder2025/skynet-trading/internal/snapshots"
	"github.com/SkyNet-coder2025/skynet-trading/internal/utils"
)

// CheckpointJob periodically persists the live population so an interrupted
// optimization run can resume where it left off.
type CheckpointJob struct {
	log     zerolog.Logger
	service *evolution.Service
	repo    *snapshots.Repository
	keep    int
	timeout time.Duration
}

// NewCheckpointJob creates a checkpoint job. keep bounds how many historical
// snapshots survive pruning.
func NewCheckpointJob(service *evolution.Service, repo *snapshots.Repository, keep int, log zerolog.Logger) *CheckpointJob {
	if keep < 1 {
		keep = 1
	}
	return &CheckpointJob{
		log:     log.With().Str("job", "checkpoint").Logger(),
		service: service,
		repo:    repo,
		keep:    keep,
		timeout: 30 * time.Second,
	}
}

// Name returns the job name.
func (j *CheckpointJob) Name() string {
	return "checkpoint"
}

// Run captures and persists the current population, then prunes old rows.
func (j *CheckpointJob) Run() error {
	defer utils.OperationTimer("checkpoint", j.log)()

	pop, gen := j.service.State()
	if len(pop) == 0 {
		j.log.Debug().Msg("No population to checkpoint")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	id, err := j.repo.Save(ctx, snapshots.Capture(pop, gen))
	if err != nil {
		return err
	}

	if _, err := j.repo.Prune(ctx, j.keep); err != nil {
		j.log.Warn().Err(err).Msg("Failed to prune old snapshots")
	}

	j.log.Info().Int64("snapshot_id", id).Int("generation", gen).Msg("Checkpoint saved")
	return nil
}
