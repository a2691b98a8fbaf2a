package models

import (
	"testing"
)

func TestJSONMapValueScan(t *testing.T) {
	m := JSONMap{"internal_user_id": "u1", "plan_selected": "plan_x"}

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out JSONMap
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out["internal_user_id"] != "u1" || out["plan_selected"] != "plan_x" {
		t.Fatalf("round trip mismatch: %v", out)
	}
}

func TestJSONMapNil(t *testing.T) {
	var m JSONMap

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Fatalf("nil map must store NULL, got %v", v)
	}

	var out JSONMap
	if err := out.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil map, got %v", out)
	}
}

func TestJSONMapScanUnsupportedType(t *testing.T) {
	var out JSONMap
	if err := out.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported column type")
	}
}

func TestIsTerminalSubscriptionStatus(t *testing.T) {
	terminal := []string{SubscriptionStatusCancelled, SubscriptionStatusCompleted}
	for _, s := range terminal {
		if !IsTerminalSubscriptionStatus(s) {
			t.Errorf("%q must be terminal", s)
		}
	}

	open := []string{SubscriptionStatusCreated, SubscriptionStatusActive, SubscriptionStatusPending, SubscriptionStatusHalted, ""}
	for _, s := range open {
		if IsTerminalSubscriptionStatus(s) {
			t.Errorf("%q must not be terminal", s)
		}
	}
}
