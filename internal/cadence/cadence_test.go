package cadence

import (
	"testing"
	"time"

	"github.com/reachout/reachout/internal/models"
)

func TestBaseIntervalDays(t *testing.T) {
	tests := []struct {
		frequency models.ContactFrequency
		want      int
	}{
		{models.FrequencyEveryThreeDays, 3},
		{models.FrequencyWeekly, 7},
		{models.FrequencyFortnightly, 14},
		{models.FrequencyMonthly, 30},
		{models.FrequencyQuarterly, 90},
		{"", 7},
		{"sometimes", 7},
	}
	for _, tt := range tests {
		if got := BaseIntervalDays(tt.frequency); got != tt.want {
			t.Errorf("BaseIntervalDays(%q) = %d, want %d", tt.frequency, got, tt.want)
		}
	}
}

func TestIntervalDays(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		frequency models.ContactFrequency
		missed    int
		want      int
	}{
		{"weekly level 3 no misses", 3, models.FrequencyWeekly, 0, 6},
		{"weekly level 3 two misses", 3, models.FrequencyWeekly, 2, 4},
		{"monthly level 1 one miss", 1, models.FrequencyMonthly, 1, 24},
		{"monthly level 1 no misses", 1, models.FrequencyMonthly, 0, 30},
		{"weekly level 1 no misses", 1, models.FrequencyWeekly, 0, 7},
		{"weekly level 5 no misses", 5, models.FrequencyWeekly, 0, 4},
		{"quarterly level 5 no misses", 5, models.FrequencyQuarterly, 0, 54},
		{"every three days level 5 heavy misses", 5, models.FrequencyEveryThreeDays, 5, 1},
		{"urgency floor at 0.3", 2, models.FrequencyWeekly, 10, 2},
		{"level below range clamps to 1", 0, models.FrequencyWeekly, 0, 7},
		{"level above range clamps to 5", 9, models.FrequencyWeekly, 0, 4},
		{"default frequency", 3, "", 0, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IntervalDays(tt.level, tt.frequency, tt.missed); got != tt.want {
				t.Errorf("IntervalDays(%d, %q, %d) = %d, want %d", tt.level, tt.frequency, tt.missed, got, tt.want)
			}
		})
	}
}

func TestIntervalDaysShrinksAsMissesGrow(t *testing.T) {
	prev := IntervalDays(2, models.FrequencyMonthly, 0)
	for missed := 1; missed <= 6; missed++ {
		got := IntervalDays(2, models.FrequencyMonthly, missed)
		if got > prev {
			t.Errorf("interval grew with misses: missed=%d got %d, previous %d", missed, got, prev)
		}
		if got < 1 {
			t.Errorf("interval below one day floor: missed=%d got %d", missed, got)
		}
		prev = got
	}
}

func TestNextDueAlwaysAfterRef(t *testing.T) {
	ref := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	for level := 1; level <= 5; level++ {
		for missed := 0; missed <= 8; missed++ {
			due := NextDue(level, models.FrequencyEveryThreeDays, missed, ref)
			if !due.After(ref) {
				t.Errorf("NextDue(level=%d, missed=%d) = %v, not after ref %v", level, missed, due, ref)
			}
		}
	}
}

func TestNextDueAfterReanchorsStaleDates(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	due := NextDueAfter(3, models.FrequencyWeekly, 0, anchor, now)
	if !due.After(now) {
		t.Errorf("NextDueAfter() = %v, want after now %v", due, now)
	}
	want := NextDue(3, models.FrequencyWeekly, 0, now)
	if !due.Equal(want) {
		t.Errorf("NextDueAfter() = %v, want re-anchored %v", due, want)
	}

	// A fresh anchor is kept as is.
	freshAnchor := now.Add(-time.Hour)
	due = NextDueAfter(3, models.FrequencyWeekly, 0, freshAnchor, now)
	if !due.Equal(NextDue(3, models.FrequencyWeekly, 0, freshAnchor)) {
		t.Errorf("NextDueAfter() re-anchored a fresh date: got %v", due)
	}
}

func TestDayWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// 2026-06-10 01:30 UTC is still 2026-06-09 in New York.
	ref := time.Date(2026, 6, 10, 1, 30, 0, 0, time.UTC)
	start, end := DayWindow(ref, ny)
	if start.Day() != 9 || start.Hour() != 0 {
		t.Errorf("start = %v, want midnight June 9 New York time", start)
	}
	if !end.After(start) || end.Sub(start) >= 24*time.Hour {
		t.Errorf("end = %v, want just under 24h after start %v", end, start)
	}
	if !ref.After(start) || !ref.Before(end) {
		t.Errorf("ref %v outside its own day window [%v, %v]", ref, start, end)
	}

	// Nil location falls back to UTC.
	start, _ = DayWindow(ref, nil)
	if start.Day() != 10 {
		t.Errorf("nil loc start = %v, want June 10 UTC", start)
	}
}

func TestNextDayWindow(t *testing.T) {
	ref := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	from, to := NextDayWindow(ref)
	if !from.Equal(ref) {
		t.Errorf("from = %v, want %v", from, ref)
	}
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("window length = %v, want 24h", to.Sub(from))
	}
}

func TestSameDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	a := time.Date(2026, 6, 10, 1, 30, 0, 0, time.UTC)
	b := time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)
	if !SameDay(a, b, time.UTC) {
		t.Error("expected same UTC day")
	}
	// In New York, 01:30 UTC is the previous evening.
	if SameDay(a, b, ny) {
		t.Error("expected different New York days")
	}
}

func TestProcessingDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	ref := time.Date(2026, 6, 10, 1, 30, 0, 0, time.UTC)
	if got := ProcessingDate(ref, time.UTC); got != "2026-06-10" {
		t.Errorf("ProcessingDate(UTC) = %q, want 2026-06-10", got)
	}
	if got := ProcessingDate(ref, ny); got != "2026-06-09" {
		t.Errorf("ProcessingDate(New York) = %q, want 2026-06-09", got)
	}
	if got := ProcessingDate(ref, nil); got != "2026-06-10" {
		t.Errorf("ProcessingDate(nil) = %q, want 2026-06-10", got)
	}
}

func TestSuggestMethod(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		preferred models.ContactMethod
		missed    int
		want      models.ContactMethod
	}{
		{"three misses escalate to call", 1, models.MethodSocial, 3, models.MethodCall},
		{"two misses keep preferred call", 1, models.MethodCall, 2, models.MethodCall},
		{"two misses otherwise message", 1, models.MethodSocial, 2, models.MethodMessage},
		{"close relationship calls", 4, models.MethodMessage, 0, models.MethodCall},
		{"mid relationship uses preferred", 2, models.MethodSocial, 0, models.MethodSocial},
		{"mid relationship without preference messages", 3, "", 1, models.MethodMessage},
		{"distant relationship messages", 1, models.MethodCall, 0, models.MethodMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestMethod(tt.level, tt.preferred, tt.missed); got != tt.want {
				t.Errorf("SuggestMethod(%d, %q, %d) = %q, want %q", tt.level, tt.preferred, tt.missed, got, tt.want)
			}
		})
	}
}
