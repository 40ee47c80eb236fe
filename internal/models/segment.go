package models

import (
	"strings"
)

// SegmentKind identifies the base predicate of an audience segment
type SegmentKind string

const (
	SegmentAllUsers       SegmentKind = "ALL_USERS"
	SegmentRecentSignups  SegmentKind = "RECENT_SIGNUPS"
	SegmentInactive       SegmentKind = "INACTIVE"
	SegmentVIP            SegmentKind = "VIP"
	SegmentBoughtCategory SegmentKind = "BOUGHT_CATEGORY"
	SegmentSubscribedOnly SegmentKind = "SUBSCRIBED_ONLY"
)

// Valid reports whether k is one of the known kinds
func (k SegmentKind) Valid() bool {
	switch k {
	case SegmentAllUsers, SegmentRecentSignups, SegmentInactive,
		SegmentVIP, SegmentBoughtCategory, SegmentSubscribedOnly:
		return true
	}
	return false
}

// AudienceSegment is a targeting predicate embedded in a campaign.
// Only the parameters belonging to Kind are meaningful; Normalize clears the rest.
type AudienceSegment struct {
	Kind       SegmentKind `json:"kind"`
	WindowDays int         `json:"window_days,omitempty"` // RECENT_SIGNUPS, INACTIVE
	MinOrders  int         `json:"min_orders,omitempty"`  // VIP
	MinSpend   float64     `json:"min_spend,omitempty"`   // VIP
	Category   string      `json:"category,omitempty"`    // BOUGHT_CATEGORY

	// Geographic refinement, applied to every kind
	District string `json:"district,omitempty"`
	Thana    string `json:"thana,omitempty"`
}

func AllUsers() AudienceSegment { return AudienceSegment{Kind: SegmentAllUsers} }

func RecentSignups(days int) AudienceSegment {
	return AudienceSegment{Kind: SegmentRecentSignups, WindowDays: days}
}

func Inactive(days int) AudienceSegment {
	return AudienceSegment{Kind: SegmentInactive, WindowDays: days}
}

func VIP(minOrders int, minSpend float64) AudienceSegment {
	return AudienceSegment{Kind: SegmentVIP, MinOrders: minOrders, MinSpend: minSpend}
}

func BoughtCategory(category string) AudienceSegment {
	return AudienceSegment{Kind: SegmentBoughtCategory, Category: category}
}

func SubscribedOnly() AudienceSegment { return AudienceSegment{Kind: SegmentSubscribedOnly} }

// In returns a copy of the segment restricted to a district and optional thana
func (s AudienceSegment) In(district, thana string) AudienceSegment {
	s.District = district
	s.Thana = thana
	return s
}

// Validate checks the segment invariants
func (s AudienceSegment) Validate() error {
	if !s.Kind.Valid() {
		return &ValidationError{Field: "segment.kind", Message: "unknown segment kind " + quote(string(s.Kind))}
	}

	switch s.Kind {
	case SegmentRecentSignups, SegmentInactive:
		if s.WindowDays < 0 {
			return &ValidationError{Field: "segment.window_days", Message: "must be >= 0"}
		}
	case SegmentVIP:
		if s.MinOrders < 0 {
			return &ValidationError{Field: "segment.min_orders", Message: "must be >= 0"}
		}
		if s.MinSpend < 0 {
			return &ValidationError{Field: "segment.min_spend", Message: "must be >= 0"}
		}
	case SegmentBoughtCategory:
		if strings.TrimSpace(s.Category) == "" {
			return &ValidationError{Field: "segment.category", Message: "is required"}
		}
	}

	return nil
}

// Normalize drops parameters that do not belong to the segment kind
// and trims the free-text fields.
func (s AudienceSegment) Normalize() AudienceSegment {
	out := AudienceSegment{
		Kind:     s.Kind,
		District: strings.TrimSpace(s.District),
		Thana:    strings.TrimSpace(s.Thana),
	}

	switch s.Kind {
	case SegmentRecentSignups, SegmentInactive:
		out.WindowDays = s.WindowDays
	case SegmentVIP:
		out.MinOrders = s.MinOrders
		out.MinSpend = s.MinSpend
	case SegmentBoughtCategory:
		out.Category = strings.TrimSpace(s.Category)
	}

	return out
}

func quote(s string) string {
	return "\"" + s + "\""
}
