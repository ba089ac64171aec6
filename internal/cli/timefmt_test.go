package cli

import (
	"testing"
	"time"
)

func TestFormatTimeISO(t *testing.T) {
	ts := time.Date(2026, 7, 29, 12, 30, 0, 0, time.UTC)
	got := formatTime(ts, "iso")
	want := ts.Format(time.RFC3339)
	if got != want {
		t.Fatalf("formatTime(iso) = %q, want %q", got, want)
	}
}

func TestFormatTimeDefaultUsesLocalShortForm(t *testing.T) {
	ts := time.Date(2026, 7, 29, 12, 30, 0, 0, time.UTC)
	got := formatTime(ts, "unix")
	want := ts.Local().Format("Jan _2 15:04")
	if got != want {
		t.Fatalf("formatTime(unix) = %q, want %q", got, want)
	}
}
