// Package cadence computes outreach schedules.
//
// All functions are pure: they take an explicit reference time (and, where
// day boundaries matter, an explicit timezone) instead of reading the wall
// clock, so callers and tests control "now".
package cadence

import (
	"math"
	"time"

	"github.com/reachout/reachout/internal/models"
)

// DefaultIntervalDays is used when a contact has no explicit frequency.
const DefaultIntervalDays = 7

// BaseIntervalDays maps a contact frequency to its base interval in days.
// The empty frequency defaults to weekly.
func BaseIntervalDays(f models.ContactFrequency) int {
	switch f {
	case models.FrequencyEveryThreeDays:
		return 3
	case models.FrequencyWeekly:
		return 7
	case models.FrequencyFortnightly:
		return 14
	case models.FrequencyMonthly:
		return 30
	case models.FrequencyQuarterly:
		return 90
	default:
		return DefaultIntervalDays
	}
}

// IntervalDays computes the number of days until the next outreach is due.
//
// The base interval for the frequency is shortened by a closeness
// multiplier (1.0 for level 1 down to 0.6 for level 5) and, when outreach
// has been missed, by an urgency multiplier max(0.3, 1-missed*0.2), with a
// floor of one day.
func IntervalDays(level int, frequency models.ContactFrequency, missed int) int {
	if level < models.MinRelationshipLevel {
		level = models.MinRelationshipLevel
	}
	if level > models.MaxRelationshipLevel {
		level = models.MaxRelationshipLevel
	}

	days := float64(BaseIntervalDays(frequency))

	levelMultiplier := 1 - float64(level-1)*0.1
	days = math.Round(days * levelMultiplier)

	if missed > 0 {
		urgencyMultiplier := math.Max(0.3, 1-float64(missed)*0.2)
		days = math.Max(1, math.Round(days*urgencyMultiplier))
	}
	if days < 1 {
		days = 1
	}
	return int(days)
}

// NextDue returns the next due timestamp for a contact, computed from ref.
// The result is always strictly after ref: the interval floor is one day,
// so recomputations never schedule into the past as long as callers anchor
// at the current time.
func NextDue(level int, frequency models.ContactFrequency, missed int, ref time.Time) time.Time {
	return ref.AddDate(0, 0, IntervalDays(level, frequency, missed))
}

// NextDueAfter computes the due timestamp from anchor but re-anchors to now
// when the naive result has already passed. This covers reconciliation
// running late against a stale contact.
func NextDueAfter(level int, frequency models.ContactFrequency, missed int, anchor, now time.Time) time.Time {
	due := NextDue(level, frequency, missed, anchor)
	if !due.After(now) {
		due = NextDue(level, frequency, missed, now)
	}
	return due
}

// DayWindow returns the inclusive start and end of ref's calendar day in
// the given location.
func DayWindow(ref time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// NextDayWindow returns the half-open 24-hour interval [ref, ref+24h).
// Expressing the "due tomorrow" window as an absolute interval from the
// reference time avoids timezone drift at midnight boundaries.
func NextDayWindow(ref time.Time) (from, to time.Time) {
	return ref, ref.Add(24 * time.Hour)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// ProcessingDate formats ref's calendar day in loc as the ledger's
// processing-date key (YYYY-MM-DD).
func ProcessingDate(ref time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return ref.In(loc).Format("2006-01-02")
}

// SuggestMethod picks the outreach channel to recommend. Repeated misses
// escalate toward a call; otherwise closer relationships prefer calls and
// everyone else falls back to the preferred method or a message.
func SuggestMethod(level int, preferred models.ContactMethod, missed int) models.ContactMethod {
	switch {
	case missed >= 3:
		return models.MethodCall
	case missed >= 2:
		if preferred == models.MethodCall {
			return models.MethodCall
		}
		return models.MethodMessage
	case level >= 4:
		return models.MethodCall
	case level >= 2:
		if preferred != "" {
			return preferred
		}
		return models.MethodMessage
	default:
		return models.MethodMessage
	}
}
