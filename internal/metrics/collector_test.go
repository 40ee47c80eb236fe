package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourove-a/splaro/internal/models"
)

type fakeCampaignCounter struct {
	counts models.CampaignStatusCounts
	err    error
}

func (f *fakeCampaignCounter) CountByStatus(context.Context) (models.CampaignStatusCounts, error) {
	return f.counts, f.err
}

type fakeJobCounter struct {
	counts map[models.JobStatus]int
}

func (f *fakeJobCounter) CountByStatus(context.Context) (map[models.JobStatus]int, error) {
	return f.counts, nil
}

func TestCollectorCollect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()

	path := filepath.Join(t.TempDir(), "campaigns.db")
	if err := os.WriteFile(path, make([]byte, 4096), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	campaigns := &fakeCampaignCounter{counts: models.CampaignStatusCounts{
		models.CampaignActive: 3,
		models.CampaignDraft:  1,
	}}
	jobs := &fakeJobCounter{counts: map[models.JobStatus]int{models.JobRunning: 2}}

	c := NewCollector(m, campaigns, jobs, path, time.Minute, logger)
	c.Collect(context.Background())

	if got := gaugeValue(t, m.CampaignsByStatus.WithLabelValues("active")); got != 3 {
		t.Errorf("active campaigns = %v, want 3", got)
	}
	if got := gaugeValue(t, m.CampaignsByStatus.WithLabelValues("completed")); got != 0 {
		t.Errorf("completed campaigns = %v, want 0", got)
	}
	if got := gaugeValue(t, m.JobsByStatus.WithLabelValues("RUNNING")); got != 2 {
		t.Errorf("running jobs = %v, want 2", got)
	}
	if got := gaugeValue(t, m.StorageUsedBytes); got != 4096 {
		t.Errorf("storage = %v, want 4096", got)
	}
	if got := gaugeValue(t, m.Goroutines); got <= 0 {
		t.Errorf("goroutines = %v, want > 0", got)
	}

	// A failing counter leaves the previous values in place
	campaigns.counts = nil
	campaigns.err = errors.New("database is locked")
	c.Collect(context.Background())
	if got := gaugeValue(t, m.CampaignsByStatus.WithLabelValues("active")); got != 3 {
		t.Errorf("active campaigns after error = %v, want 3", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()

	campaigns := &fakeCampaignCounter{counts: models.CampaignStatusCounts{models.CampaignPaused: 5}}
	c := NewCollector(m, campaigns, nil, "", 10*time.Millisecond, logger)

	c.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for gaugeValue(t, m.CampaignsByStatus.WithLabelValues("paused")) != 5 {
		if time.Now().After(deadline) {
			t.Fatal("collector never refreshed the gauge")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
}
