package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sourove-a/splaro/internal/models"
)

func appendTestEntry(t *testing.T, repo *DeliveryLogRepository, job *models.Job, recipient string, status models.DeliveryStatus) *models.DeliveryLogEntry {
	t.Helper()

	e := &models.DeliveryLogEntry{
		JobID:          job.ID,
		CampaignID:     job.CampaignID,
		RecipientID:    recipient,
		RecipientName:  "Customer " + recipient,
		RecipientEmail: recipient + "@example.com",
		RecipientPhone: "+8801700000000",
		Status:         status,
		SentAt:         testNow,
	}
	if status == models.DeliveryFailed {
		e.ErrorMessage = "gateway rejected"
	}
	if err := repo.Append(context.Background(), e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return e
}

func TestDeliveryLogRepository_MarkClicked(t *testing.T) {
	database := setupTestDB(t)
	c := createTestCampaign(t, NewCampaignRepository(database), "clicks", models.CampaignActive)
	job := createTestJob(t, NewJobRepository(database), c.ID, models.JobModeSendNow)
	repo := NewDeliveryLogRepository(database)
	ctx := context.Background()

	sent := appendTestEntry(t, repo, job, "u1", models.DeliverySent)
	failed := appendTestEntry(t, repo, job, "u2", models.DeliveryFailed)

	clickedAt := testNow.Add(10 * time.Minute)
	e, err := repo.MarkClicked(ctx, sent.ID, clickedAt)
	if err != nil {
		t.Fatalf("MarkClicked() error = %v", err)
	}
	if e.Status != models.DeliveryClicked || e.ClickedAt == nil || !e.ClickedAt.Equal(clickedAt) {
		t.Errorf("entry = %s %v", e.Status, e.ClickedAt)
	}

	// Repeated click keeps the first timestamp
	e, err = repo.MarkClicked(ctx, sent.ID, clickedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeated MarkClicked() error = %v", err)
	}
	if !e.ClickedAt.Equal(clickedAt) {
		t.Errorf("ClickedAt = %v, want %v", e.ClickedAt, clickedAt)
	}

	_, err = repo.MarkClicked(ctx, failed.ID, clickedAt)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("MarkClicked(failed) error = %v, want ErrInvalidTransition", err)
	}
	got, _ := repo.GetByID(ctx, failed.ID)
	if got.Status != models.DeliveryFailed || got.ClickedAt != nil {
		t.Errorf("failed entry changed: %+v", got)
	}

	_, err = repo.MarkClicked(ctx, "missing", clickedAt)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkClicked(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeliveryLogRepository_ListAndStats(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	jobs := NewJobRepository(database)
	repo := NewDeliveryLogRepository(database)
	ctx := context.Background()

	c := createTestCampaign(t, campaigns, "stats", models.CampaignActive)
	other := createTestCampaign(t, campaigns, "other", models.CampaignActive)
	test := createTestJob(t, jobs, c.ID, models.JobModeTest)
	send := createTestJob(t, jobs, c.ID, models.JobModeSendNow)
	otherJob := createTestJob(t, jobs, other.ID, models.JobModeSendNow)

	appendTestEntry(t, repo, test, "tester", models.DeliverySent)
	var sent []*models.DeliveryLogEntry
	for i := 0; i < 7; i++ {
		sent = append(sent, appendTestEntry(t, repo, send, fmt.Sprintf("s%d", i), models.DeliverySent))
	}
	for i := 0; i < 3; i++ {
		appendTestEntry(t, repo, send, fmt.Sprintf("f%d", i), models.DeliveryFailed)
	}
	appendTestEntry(t, repo, otherJob, "x", models.DeliverySent)
	repo.MarkClicked(ctx, sent[0].ID, testNow)
	repo.MarkClicked(ctx, sent[1].ID, testNow)

	stats, err := repo.CountByJob(ctx, send.ID)
	if err != nil {
		t.Fatalf("CountByJob() error = %v", err)
	}
	want := models.DeliveryStats{Total: 10, Sent: 7, Failed: 3, Clicked: 2}
	if *stats != want {
		t.Errorf("CountByJob() = %+v, want %+v", *stats, want)
	}

	stats, err = repo.CountByStatus(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	want = models.DeliveryStats{Total: 11, Sent: 8, Failed: 3, Clicked: 2}
	if *stats != want {
		t.Errorf("CountByStatus() = %+v, want %+v", *stats, want)
	}

	stats, _ = repo.CountByStatus(ctx, "unknown")
	if *stats != (models.DeliveryStats{}) {
		t.Errorf("CountByStatus(unknown) = %+v, want zero", *stats)
	}

	tests := []struct {
		name      string
		filter    models.DeliveryLogFilter
		wantTotal int
	}{
		{"by campaign", models.DeliveryLogFilter{CampaignID: c.ID}, 11},
		{"by job", models.DeliveryLogFilter{JobID: send.ID}, 10},
		{"by job and status", models.DeliveryLogFilter{JobID: send.ID, Status: models.DeliveryFailed}, 3},
		{"clicked", models.DeliveryLogFilter{CampaignID: c.ID, Status: models.DeliveryClicked}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.List(ctx, tt.filter, 4, 0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			wantLen := tt.wantTotal
			if wantLen > 4 {
				wantLen = 4
			}
			if len(items) != wantLen {
				t.Errorf("len(items) = %d, want %d", len(items), wantLen)
			}
		})
	}

	failed, _, _ := repo.List(ctx, models.DeliveryLogFilter{JobID: send.ID, Status: models.DeliveryFailed}, 0, 0)
	for _, e := range failed {
		if e.ErrorMessage == "" {
			t.Errorf("failed entry %s has no error message", e.ID)
		}
	}
}
