package summary

import (
	"strings"
	"testing"
	"time"
)

// Store's ensureOpen/Upsert paths require a live MySQL connection and
// are not covered here; see DESIGN.md for why no mocking library from
// the reference pack was wired in for them. nullableTime and the
// generated upsert statement are pure and tested directly.

func TestNullableTimeZeroIsNil(t *testing.T) {
	if got := nullableTime(time.Time{}); got != nil {
		t.Fatalf("expected nil for a zero time, got %v", got)
	}
}

func TestNullableTimeFormatsNonZero(t *testing.T) {
	ts := time.Date(2026, 8, 6, 14, 30, 0, 0, time.UTC)
	got := nullableTime(ts)
	want := "2026-08-06 14:30:00"
	if got != want {
		t.Fatalf("expected %q, got %v", want, got)
	}
}

func TestUpsertSQLUsesConfiguredTable(t *testing.T) {
	s := NewStore("dsn", "call_leg_timelines")
	sql := s.upsertSQL()
	if !strings.Contains(sql, "INSERT INTO call_leg_timelines") {
		t.Fatalf("expected the statement to target the configured table, got: %s", sql)
	}
	if !strings.Contains(sql, "ON DUPLICATE KEY UPDATE") {
		t.Fatal("expected an upsert statement")
	}
	if strings.Count(sql, "?") != 24 {
		t.Fatalf("expected 24 placeholders for call_id + recording_path + 11 columns per leg, got %d", strings.Count(sql, "?"))
	}
}
