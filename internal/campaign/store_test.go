package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/db"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/repository"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	s := NewStore(
		repository.NewCampaignRepository(database.DB),
		config.CampaignsConfig{ScheduleGrace: 5 * time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	s.SetClock(func() time.Time { return testNow })
	return s
}

func testDraft() models.CampaignInput {
	return models.CampaignInput{
		Name:    "Pohela Boishakh",
		Message: models.Message{Title: "Shubho Noboborsho", Body: "Festive collection is live", TargetURL: "https://shop.example.com/boishakh"},
		Segment: models.VIP(3, 50000).In("Dhaka", ""),
	}
}

func mustCreate(t *testing.T, s *Store, d models.CampaignInput) *models.Campaign {
	t.Helper()
	c, err := s.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func TestStore_Create(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())
	if c.ID == "" || c.Status != models.CampaignDraft {
		t.Fatalf("created = %+v", c)
	}

	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Segment != c.Segment || got.Message != c.Message {
		t.Errorf("Get() = %+v, want %+v", got, c)
	}

	// Parameters of other kinds are dropped
	d := testDraft()
	d.Segment = models.AudienceSegment{Kind: models.SegmentSubscribedOnly, MinOrders: 4, Category: "x"}
	c = mustCreate(t, s, d)
	if c.Segment != models.SubscribedOnly() {
		t.Errorf("Segment = %+v, want normalized", c.Segment)
	}
}

func TestStore_CreateValidation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	withinGrace := testNow.Add(-2 * time.Minute)

	tests := []struct {
		name    string
		mutate  func(d *models.CampaignInput)
		field   string
		wantErr bool
	}{
		{"valid", func(d *models.CampaignInput) {}, "", false},
		{"empty name", func(d *models.CampaignInput) { d.Name = "  " }, "name", true},
		{"empty body", func(d *models.CampaignInput) { d.Message.Body = "" }, "message.body", true},
		{"unknown kind", func(d *models.CampaignInput) { d.Segment = models.AudienceSegment{Kind: "ANY"} }, "segment.kind", true},
		{"negative spend", func(d *models.CampaignInput) { d.Segment = models.VIP(1, -5) }, "segment.min_spend", true},
		{"automated without schedule", func(d *models.CampaignInput) { d.Automated = true }, "scheduled_at", true},
		{"automated in the past", func(d *models.CampaignInput) { d.Automated = true; d.ScheduledAt = &past }, "scheduled_at", true},
		{"automated within grace", func(d *models.CampaignInput) { d.Automated = true; d.ScheduledAt = &withinGrace }, "", false},
		{"past schedule without automation", func(d *models.CampaignInput) { d.ScheduledAt = &past }, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDraft()
			tt.mutate(&d)

			_, err := s.Create(ctx, d)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Create() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	page, _ := s.List(ctx, models.CampaignFilter{}, 1, 100)
	if page.Total != 3 {
		t.Errorf("persisted %d campaigns, want only the 3 valid ones", page.Total)
	}
}

func TestStore_Update(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())

	name := "Renamed"
	seg := models.BoughtCategory(" Saree ")
	got, err := s.Update(ctx, c.ID, models.CampaignPatch{Name: &name, Segment: &seg})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != "Renamed" || got.Segment.Category != "Saree" {
		t.Errorf("Update() = %q %+v", got.Name, got.Segment)
	}
	if got.Message != c.Message {
		t.Errorf("untouched message changed: %+v", got.Message)
	}

	// Invalid merge is not applied
	bad := models.VIP(-1, 0)
	if _, err := s.Update(ctx, c.ID, models.CampaignPatch{Segment: &bad}); !models.IsValidation(err) {
		t.Errorf("Update(bad segment) error = %v, want ValidationError", err)
	}
	got, _ = s.Get(ctx, c.ID)
	if got.Segment.Kind != models.SegmentBoughtCategory {
		t.Errorf("segment changed to %+v", got.Segment)
	}

	if _, err := s.Update(ctx, "missing", models.CampaignPatch{Name: &name}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Update(ctx, c.ID, models.CampaignPatch{Name: &name}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Update(deleted) error = %v, want ErrNotFound", err)
	}
	// Still readable for audit
	if got, err := s.Get(ctx, c.ID); err != nil || got.Status != models.CampaignDeleted {
		t.Errorf("Get(deleted) = %v, %v", got, err)
	}
}

func TestStore_StateMachine(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())

	steps := []struct {
		to      models.CampaignStatus
		wantErr bool
	}{
		{models.CampaignPaused, true}, // draft cannot pause
		{models.CampaignDraft, true},  // same state
		{models.CampaignActive, false},
		{models.CampaignCompleted, true}, // runner only
		{models.CampaignPaused, false},
		{models.CampaignPaused, true},
		{models.CampaignActive, false},
		{models.CampaignDeleted, false},
		{models.CampaignActive, true}, // deleted is terminal
	}

	for i, step := range steps {
		before, _ := s.Get(ctx, c.ID)
		_, err := s.SetStatus(ctx, c.ID, step.to)
		if step.wantErr {
			if !errors.Is(err, models.ErrInvalidTransition) {
				t.Fatalf("step %d: SetStatus(%s) error = %v, want ErrInvalidTransition", i, step.to, err)
			}
			after, _ := s.Get(ctx, c.ID)
			if after.Status != before.Status {
				t.Fatalf("step %d: status changed %s -> %s on rejected transition", i, before.Status, after.Status)
			}
			continue
		}
		if err != nil {
			t.Fatalf("step %d: SetStatus(%s) error = %v", i, step.to, err)
		}
	}

	if _, err := s.SetStatus(ctx, c.ID, "archived"); !models.IsValidation(err) {
		t.Errorf("SetStatus(archived) error = %v, want ValidationError", err)
	}
	if _, err := s.SetStatus(ctx, "missing", models.CampaignActive); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_CompletedCannotReactivate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())
	if err := s.Activate(ctx, c.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := s.Complete(ctx, c.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	// Idempotent
	if err := s.Complete(ctx, c.ID); err != nil {
		t.Fatalf("second Complete() error = %v", err)
	}

	if _, err := s.SetStatus(ctx, c.ID, models.CampaignActive); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Completed -> Active error = %v, want ErrInvalidTransition", err)
	}
	got, _ := s.Get(ctx, c.ID)
	if got.Status != models.CampaignCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestStore_CompletePaused(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())
	s.SetStatus(ctx, c.ID, models.CampaignActive)
	s.SetStatus(ctx, c.ID, models.CampaignPaused)

	if err := s.Complete(ctx, c.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Complete(paused) error = %v, want ErrInvalidTransition", err)
	}
	got, _ := s.Get(ctx, c.ID)
	if got.Status != models.CampaignPaused {
		t.Errorf("Status = %s, want paused", got.Status)
	}
}

func TestStore_Duplicate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	at := testNow.Add(time.Hour)
	d := testDraft()
	d.Automated = true
	d.ScheduledAt = &at
	src := mustCreate(t, s, d)
	s.SetStatus(ctx, src.ID, models.CampaignActive)

	dup, err := s.Duplicate(ctx, src.ID)
	if err != nil {
		t.Fatalf("Duplicate() error = %v", err)
	}
	if dup.ID == src.ID {
		t.Error("duplicate reused the source ID")
	}
	if dup.Segment != src.Segment || dup.Message != src.Message || dup.Automated != src.Automated {
		t.Errorf("duplicate = %+v, source = %+v", dup, src)
	}
	if dup.Status != models.CampaignDraft || dup.ScheduledAt != nil {
		t.Errorf("duplicate status = %s, scheduled_at = %v", dup.Status, dup.ScheduledAt)
	}

	stored, _ := s.Get(ctx, dup.ID)
	if stored.Status != models.CampaignDraft || stored.ScheduledAt != nil || stored.Segment != src.Segment {
		t.Errorf("stored duplicate = %+v", stored)
	}

	if _, err := s.Duplicate(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Duplicate(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_Schedule(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := mustCreate(t, s, testDraft())

	if _, err := s.Schedule(ctx, c.ID, testNow.Add(-time.Hour)); !models.IsValidation(err) {
		t.Errorf("Schedule(past) error = %v, want ValidationError", err)
	}

	at := testNow.Add(30 * time.Minute)
	got, err := s.Schedule(ctx, c.ID, at)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got.Status != models.CampaignActive || !got.Automated || got.ScheduledAt == nil || !got.ScheduledAt.Equal(at) {
		t.Errorf("Schedule() = %+v", got)
	}

	// Rescheduling a paused campaign keeps it paused
	s.SetStatus(ctx, c.ID, models.CampaignPaused)
	got, err = s.Schedule(ctx, c.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule(paused) error = %v", err)
	}
	if got.Status != models.CampaignPaused {
		t.Errorf("Status = %s, want paused", got.Status)
	}
}

func TestStore_List(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, name := range []string{"Eid ul Fitr", "Eid ul Adha", "Winter", "Summer", "Monsoon"} {
		d := testDraft()
		d.Name = name
		mustCreate(t, s, d)
	}

	page, err := s.List(ctx, models.CampaignFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 || page.Page != 2 || len(page.Items) != 2 {
		t.Errorf("page = total %d pages %d page %d items %d", page.Total, page.TotalPages, page.Page, len(page.Items))
	}

	page, _ = s.List(ctx, models.CampaignFilter{Query: "eid"}, 1, 20)
	if page.Total != 2 {
		t.Errorf("query eid total = %d, want 2", page.Total)
	}

	page, _ = s.List(ctx, models.CampaignFilter{Query: "nothing here"}, 1, 20)
	if page.Total != 0 || page.TotalPages != 0 || len(page.Items) != 0 {
		t.Errorf("empty page = %+v", page)
	}

	if _, err := s.List(ctx, models.CampaignFilter{Status: "bogus"}, 1, 20); !models.IsValidation(err) {
		t.Errorf("List(bogus status) error = %v, want ValidationError", err)
	}
}
