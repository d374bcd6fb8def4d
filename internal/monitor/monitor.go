// Package monitor watches host resources and database health, publishing
// alert events when thresholds are crossed.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/SkyNet-coder2025/skynet-trading/internal/database"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Stats is a point-in-time host resource reading.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
}

// CollectStats samples CPU and memory usage. The CPU reading averages over
// 100ms so callers on a request path are not blocked for long.
func CollectStats() (Stats, error) {
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return Stats{}, err
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		MemoryPercent: memStat.UsedPercent,
		MemoryUsedMB:  float64(memStat.Used) / 1024 / 1024,
	}
	if len(cpuPercent) > 0 {
		s.CPUPercent = cpuPercent[0]
	}
	return s, nil
}

// Config holds alerting thresholds in percent.
type Config struct {
	CPUThreshold    float64
	MemoryThreshold float64
}

// Job is the scheduled system monitor. It publishes a system alert when CPU
// or memory crosses its threshold and verifies database integrity.
type Job struct {
	log    zerolog.Logger
	cfg    Config
	alerts domain.AlertPublisher
	db     *database.DB
}

// NewJob creates a monitor job. Zero thresholds default to 90 percent.
func NewJob(cfg Config, alerts domain.AlertPublisher, db *database.DB, log zerolog.Logger) *Job {
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = 90
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = 90
	}
	return &Job{
		log:    log.With().Str("job", "system_monitor").Logger(),
		cfg:    cfg,
		alerts: alerts,
		db:     db,
	}
}

// Name returns the job name.
func (j *Job) Name() string {
	return "system_monitor"
}

// Run samples host resources and checks database health.
func (j *Job) Run() error {
	stats, err := CollectStats()
	if err != nil {
		return err
	}

	now := time.Now()
	if stats.CPUPercent > j.cfg.CPUThreshold {
		j.publish("CPU usage above threshold", stats.CPUPercent, j.cfg.CPUThreshold, now)
	}
	if stats.MemoryPercent > j.cfg.MemoryThreshold {
		j.publish("memory usage above threshold", stats.MemoryPercent, j.cfg.MemoryThreshold, now)
	}

	if j.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := j.db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Database health check failed")
			j.publish("database integrity check failed", 1, 0, now)
			return err
		}
	}

	j.log.Debug().
		Float64("cpu_percent", stats.CPUPercent).
		Float64("memory_percent", stats.MemoryPercent).
		Msg("System monitor completed")
	return nil
}

func (j *Job) publish(msg string, value, threshold float64, ts time.Time) {
	if j.alerts == nil {
		return
	}
	j.alerts.PublishAlert(domain.AlertEvent{
		Kind:      domain.AlertSystem,
		Message:   msg,
		Value:     value,
		Threshold: threshold,
		Timestamp: ts,
	})
}
