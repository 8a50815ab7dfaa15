package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewULID_SortableByTime(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := NewULID(t0)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(t0.Add(time.Second))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected lengths: %d %d", len(a), len(b))
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}

	parsed, err := ulid.Parse(a)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(t0) {
		t.Fatalf("timestamp=%v want %v", got, t0)
	}
}

func TestNewULID_ZeroTimeUsesNow(t *testing.T) {
	t.Parallel()

	if _, err := NewULID(time.Time{}); err != nil {
		t.Fatalf("NewULID(zero): %v", err)
	}
}
