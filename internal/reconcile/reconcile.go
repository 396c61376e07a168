// Package reconcile enforces that contact schedules reflect reality before
// the batch pipeline runs.
//
// For every contact due today it checks whether an interaction was actually
// logged; a genuine miss bumps the miss counter, recomputes the due date and
// replaces the outstanding reminder. Failures are isolated per contact.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/store"
)

// Pass runs the reconciliation step against a store.
type Pass struct {
	store store.Store
	loc   *time.Location
}

// New creates a reconciliation pass. loc is the zone used for the coarse
// due-today fetch window; per-user timezones refine the decision per
// contact.
func New(st store.Store, loc *time.Location) *Pass {
	if loc == nil {
		loc = time.UTC
	}
	return &Pass{store: st, loc: loc}
}

// Run reconciles all contacts due on ref's calendar day. It returns one
// typed result per examined contact; a contact's failure never aborts the
// remaining contacts.
func (p *Pass) Run(ctx context.Context, ref time.Time) ([]models.ReconcileResult, error) {
	dayStart, _ := cadence.DayWindow(ref, p.loc)
	contacts, err := p.store.ContactsDueBetween(dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	slog.Debug("reconcile.Run: examining due contacts", "count", len(contacts), "date", cadence.ProcessingDate(ref, p.loc))

	zones := make(map[string]*time.Location)
	results := make([]models.ReconcileResult, 0, len(contacts))
	for _, contact := range contacts {
		if ctx.Err() != nil {
			slog.Info("reconcile.Run: cancelled", "remaining", len(contacts)-len(results))
			return results, ctx.Err()
		}
		results = append(results, p.reconcileContact(contact, ref, p.userZone(zones, contact.UserID)))
	}
	return results, nil
}

// userZone resolves and caches the owning user's timezone, falling back to
// UTC when unset or unparseable.
func (p *Pass) userZone(cache map[string]*time.Location, userID string) *time.Location {
	if loc, ok := cache[userID]; ok {
		return loc
	}
	loc := time.UTC
	prefs, err := p.store.GetUserPreferences(userID)
	if err != nil {
		slog.Error("reconcile: preferences lookup failed, using UTC", "error", err, "userID", userID)
	} else if prefs != nil && prefs.Timezone != "" {
		parsed, err := time.LoadLocation(prefs.Timezone)
		if err != nil {
			slog.Warn("reconcile: invalid timezone, using UTC", "userID", userID, "timezone", prefs.Timezone)
		} else {
			loc = parsed
		}
	}
	cache[userID] = loc
	return loc
}

func (p *Pass) reconcileContact(contact models.Contact, ref time.Time, userLoc *time.Location) models.ReconcileResult {
	result := models.ReconcileResult{ContactID: contact.ID}

	// A contact is only a candidate when today is the due date in the
	// user's own timezone.
	if !cadence.SameDay(contact.NextContactDue, ref, userLoc) {
		return result
	}

	latest, err := p.store.LatestInteraction(contact.ID)
	if err != nil {
		slog.Error("reconcile: latest interaction lookup failed", "error", err, "contactID", contact.ID)
		result.Error = err.Error()
		return result
	}

	todayStart, _ := cadence.DayWindow(ref, userLoc)
	if latest != nil && !latest.Date.Before(todayStart) {
		// Outreach happened today; nothing to do.
		slog.Debug("reconcile: contact reached today, not missed", "contactID", contact.ID)
		return result
	}

	missed := contact.MissedInteractions + 1
	nextDue := cadence.NextDue(contact.RelationshipLevel, contact.ContactFrequency, missed, ref)

	reminderType := contact.PreferredContactMethod
	if reminderType == "" {
		reminderType = models.MethodMessage
	}
	reminder := models.Reminder{
		ContactID:   contact.ID,
		UserID:      contact.UserID,
		Type:        reminderType,
		DueDate:     nextDue,
		Description: contact.Notes,
	}

	// The contact update and reminder replacement land together or not at
	// all; on failure the contact keeps its prior state for this run.
	if err := p.store.ApplyMiss(contact.ID, missed, nextDue, reminder); err != nil {
		slog.Error("reconcile: failed to record miss", "error", err, "contactID", contact.ID)
		result.Error = err.Error()
		return result
	}

	slog.Debug("reconcile: recorded miss", "contactID", contact.ID, "missed", missed, "nextDue", nextDue)
	result.Missed = true
	return result
}
