package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sourove-a/splaro/internal/models"
)

// CampaignCounter reports how many campaigns sit in each status
type CampaignCounter interface {
	CountByStatus(ctx context.Context) (models.CampaignStatusCounts, error)
}

// JobCounter reports how many jobs sit in each status
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

var (
	campaignStatuses = []models.CampaignStatus{
		models.CampaignDraft,
		models.CampaignActive,
		models.CampaignPaused,
		models.CampaignCompleted,
		models.CampaignDeleted,
	}
	jobStatuses = []models.JobStatus{
		models.JobPending,
		models.JobRunning,
		models.JobSucceeded,
		models.JobFailed,
	}
)

// Collector refreshes state and system gauges on an interval
type Collector struct {
	metrics     *Metrics
	campaigns   CampaignCounter
	jobs        JobCounter
	storagePath string
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector. storagePath is the SQLite
// file whose size is reported; it may be empty.
func NewCollector(m *Metrics, campaigns CampaignCounter, jobs JobCounter, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &Collector{
		metrics:     m,
		campaigns:   campaigns,
		jobs:        jobs,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger.With("component", "metrics"),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect updates every gauge once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.campaigns != nil {
		counts, err := c.campaigns.CountByStatus(ctx)
		if err != nil {
			c.logger.Warn("failed to count campaigns", "error", err)
		} else {
			for _, s := range campaignStatuses {
				c.metrics.CampaignsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
			}
		}
	}

	if c.jobs != nil {
		counts, err := c.jobs.CountByStatus(ctx)
		if err != nil {
			c.logger.Warn("failed to count jobs", "error", err)
		} else {
			for _, s := range jobStatuses {
				c.metrics.JobsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
			}
		}
	}
}
