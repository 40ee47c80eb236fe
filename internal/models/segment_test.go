package models

import (
	"errors"
	"testing"
)

func TestAudienceSegment_Validate(t *testing.T) {
	tests := []struct {
		name      string
		segment   AudienceSegment
		wantErr   bool
		wantField string
	}{
		{name: "all users", segment: AllUsers()},
		{name: "recent signups", segment: RecentSignups(7)},
		{name: "recent signups zero window", segment: RecentSignups(0)},
		{name: "inactive negative window", segment: Inactive(-1), wantErr: true, wantField: "segment.window_days"},
		{name: "vip", segment: VIP(3, 50000)},
		{name: "vip zero thresholds", segment: VIP(0, 0)},
		{name: "vip negative orders", segment: VIP(-1, 0), wantErr: true, wantField: "segment.min_orders"},
		{name: "vip negative spend", segment: VIP(1, -5), wantErr: true, wantField: "segment.min_spend"},
		{name: "bought category", segment: BoughtCategory("shoes")},
		{name: "bought blank category", segment: BoughtCategory("  "), wantErr: true, wantField: "segment.category"},
		{name: "subscribed with geo", segment: SubscribedOnly().In("Dhaka", "Gulshan")},
		{name: "unknown kind", segment: AudienceSegment{Kind: "EVERYONE"}, wantErr: true, wantField: "segment.kind"},
		{name: "empty kind", segment: AudienceSegment{}, wantErr: true, wantField: "segment.kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.segment.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestAudienceSegment_Normalize(t *testing.T) {
	seg := AudienceSegment{
		Kind:       SegmentVIP,
		WindowDays: 30,
		MinOrders:  2,
		MinSpend:   1000,
		Category:   "books",
		District:   " Dhaka ",
	}

	got := seg.Normalize()
	want := AudienceSegment{Kind: SegmentVIP, MinOrders: 2, MinSpend: 1000, District: "Dhaka"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to CampaignStatus
		want     bool
	}{
		{CampaignDraft, CampaignActive, true},
		{CampaignDraft, CampaignPaused, false},
		{CampaignDraft, CampaignCompleted, false},
		{CampaignActive, CampaignPaused, true},
		{CampaignActive, CampaignCompleted, true},
		{CampaignActive, CampaignActive, false},
		{CampaignPaused, CampaignActive, true},
		{CampaignPaused, CampaignCompleted, false},
		{CampaignCompleted, CampaignActive, false},
		{CampaignCompleted, CampaignDeleted, true},
		{CampaignPaused, CampaignDeleted, true},
		{CampaignDeleted, CampaignActive, false},
		{CampaignDeleted, CampaignDeleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name           string
		page, size     int
		total          int
		wantPage       int
		wantTotalPages int
	}{
		{name: "empty", page: 1, size: 10, total: 0, wantPage: 1, wantTotalPages: 0},
		{name: "exact", page: 2, size: 10, total: 20, wantPage: 2, wantTotalPages: 2},
		{name: "remainder", page: 1, size: 10, total: 21, wantPage: 1, wantTotalPages: 3},
		{name: "page clamped", page: 0, size: 10, total: 5, wantPage: 1, wantTotalPages: 1},
		{name: "default size", page: 1, size: 0, total: 45, wantPage: 1, wantTotalPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.size)
			got := NewPage([]int{}, p, tt.total)
			if got.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", got.Page, tt.wantPage)
			}
			if got.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", got.TotalPages, tt.wantTotalPages)
			}
			if got.Items == nil {
				t.Error("Items should never be nil")
			}
		})
	}

	if got := NewPagination(1, 1000).PageSize; got != MaxPageSize {
		t.Errorf("PageSize = %d, want %d", got, MaxPageSize)
	}
}
