package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseDirectoryFile(t *testing.T) {
	data := []byte(`
customers:
  - id: c1
    name: Rahim
    email: rahim@example.com
    district: Dhaka
    thana: Mirpur
    subscribed: true
    created_at: 2025-01-15T10:00:00Z
  - id: c2
    name: Karim
orders:
  - customer_id: c1
    total: 2500
    categories: [Saree, Panjabi]
    created_at: 2025-02-01T08:30:00Z
  - customer_id: c1
    total: 900
    status: cancelled
`)

	customers, orders, err := parseDirectoryFile(data)
	if err != nil {
		t.Fatalf("parseDirectoryFile() error = %v", err)
	}

	if len(customers) != 2 {
		t.Fatalf("customers = %d, want 2", len(customers))
	}
	c := customers[0]
	if c.ID != "c1" || c.District != "Dhaka" || c.Thana != "Mirpur" || !c.Subscribed {
		t.Errorf("customer = %+v", c)
	}
	if !c.CreatedAt.Equal(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", c.CreatedAt)
	}
	if customers[1].Subscribed {
		t.Error("customer c2 should not be subscribed")
	}

	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	if orders[0].Total != 2500 || len(orders[0].Categories) != 2 || orders[0].Categories[1] != "Panjabi" {
		t.Errorf("order = %+v", orders[0])
	}
	if orders[1].Status != "cancelled" {
		t.Errorf("order status = %q, want cancelled", orders[1].Status)
	}
}

func TestParseDirectoryFileErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing customer id", "customers:\n  - name: x\n", "id is required"},
		{"duplicate customer", "customers:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"order without customer", "orders:\n  - total: 10\n", "customer_id is required"},
		{"negative total", "orders:\n  - customer_id: a\n    total: -1\n", "must not be negative"},
		{"bad yaml", "customers: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseDirectoryFile([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestHashKey(t *testing.T) {
	if _, err := hashKey([]byte("short")); err == nil {
		t.Error("hashKey() expected error for a short key")
	}

	hash, err := hashKey([]byte("a-long-enough-api-key"))
	if err != nil {
		t.Fatalf("hashKey() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("hash = %q, want a bcrypt hash", hash)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a much longer title", 10, "a much ..."},
		{"ঈদ মোবারক সবাইকে", 6, "ঈদ ..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
