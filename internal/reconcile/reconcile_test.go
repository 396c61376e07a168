package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/store"
)

var ref = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func dueContact(id string) models.Contact {
	return models.Contact{
		ID:                 id,
		UserID:             "u1",
		Name:               "Contact " + id,
		RelationshipLevel:  3,
		ContactFrequency:   models.FrequencyWeekly,
		MissedInteractions: 0,
		NextContactDue:     ref.Add(2 * time.Hour),
	}
}

func TestRunRecordsMiss(t *testing.T) {
	s := store.NewInMemoryStore()
	s.UpsertContact(dueContact("c1"))

	results, err := New(s, time.UTC).Run(context.Background(), ref)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Missed || results[0].Error != "" {
		t.Errorf("result = %+v, want a clean miss", results[0])
	}

	c, _ := s.GetContact("c1")
	if c.MissedInteractions != 1 {
		t.Errorf("MissedInteractions = %d, want 1", c.MissedInteractions)
	}
	// Weekly at level 3 with one miss: round(round(7*0.8)*0.8) = 5 days out.
	wantDue := ref.AddDate(0, 0, 5)
	if !c.NextContactDue.Equal(wantDue) {
		t.Errorf("NextContactDue = %v, want %v", c.NextContactDue, wantDue)
	}

	rems, _ := s.RemindersForContact("c1")
	if len(rems) != 1 {
		t.Fatalf("got %d reminders, want 1", len(rems))
	}
	if rems[0].Type != models.MethodMessage {
		t.Errorf("reminder type = %q, want message fallback", rems[0].Type)
	}
	if !rems[0].DueDate.Equal(wantDue) {
		t.Errorf("reminder due = %v, want %v", rems[0].DueDate, wantDue)
	}
}

func TestRunSkipsContactReachedToday(t *testing.T) {
	s := store.NewInMemoryStore()
	s.UpsertContact(dueContact("c1"))
	s.AddInteraction(models.Interaction{ContactID: "c1", Type: "call", Date: ref.Add(-time.Hour)})

	results, err := New(s, time.UTC).Run(context.Background(), ref)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || results[0].Missed {
		t.Errorf("results = %+v, want one unmissed result", results)
	}

	c, _ := s.GetContact("c1")
	if c.MissedInteractions != 0 {
		t.Errorf("MissedInteractions = %d, want 0", c.MissedInteractions)
	}
	rems, _ := s.RemindersForContact("c1")
	if len(rems) != 0 {
		t.Errorf("got %d reminders, want none", len(rems))
	}
}

func TestRunTreatsStaleInteractionAsMiss(t *testing.T) {
	s := store.NewInMemoryStore()
	s.UpsertContact(dueContact("c1"))
	// Interaction from two days ago does not cover today.
	s.AddInteraction(models.Interaction{ContactID: "c1", Type: "message", Date: ref.AddDate(0, 0, -2)})

	results, err := New(s, time.UTC).Run(context.Background(), ref)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !results[0].Missed {
		t.Error("stale interaction should still count as a miss")
	}
}

func TestRunPrefersContactMethodForReminder(t *testing.T) {
	s := store.NewInMemoryStore()
	c := dueContact("c1")
	c.PreferredContactMethod = models.MethodCall
	s.UpsertContact(c)

	if _, err := New(s, time.UTC).Run(context.Background(), ref); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rems, _ := s.RemindersForContact("c1")
	if len(rems) != 1 || rems[0].Type != models.MethodCall {
		t.Errorf("reminders = %+v, want one call reminder", rems)
	}
}

func TestRunReplacesExistingReminder(t *testing.T) {
	s := store.NewInMemoryStore()
	c := dueContact("c1")
	c.MissedInteractions = 1
	s.UpsertContact(c)
	// Seed a reminder left over from a previous miss.
	s.ApplyMiss("c1", 1, ref, models.Reminder{ContactID: "c1", UserID: "u1", Type: models.MethodSocial, DueDate: ref})
	s.UpsertContact(c)

	if _, err := New(s, time.UTC).Run(context.Background(), ref); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rems, _ := s.RemindersForContact("c1")
	if len(rems) != 1 {
		t.Fatalf("got %d reminders, want the replacement only", len(rems))
	}
	if rems[0].Type != models.MethodMessage {
		t.Errorf("reminder type = %q, want message", rems[0].Type)
	}
	c2, _ := s.GetContact("c1")
	if c2.MissedInteractions != 2 {
		t.Errorf("MissedInteractions = %d, want 2", c2.MissedInteractions)
	}
}

func TestRunHonorsUserTimezone(t *testing.T) {
	s := store.NewInMemoryStore()
	c := dueContact("c1")
	// Due 2026-05-01 01:00 UTC, which is still 2026-04-30 in New York.
	c.NextContactDue = time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC)
	s.UpsertContact(c)
	s.SetUserPreferences(models.UserPreferences{UserID: "u1", Timezone: "America/New_York", AISuggestionsEnabled: true})

	results, err := New(s, time.UTC).Run(context.Background(), ref)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The contact is fetched by the coarse UTC window but not due today in
	// the user's zone, so it must not be marked missed.
	if len(results) != 1 || results[0].Missed {
		t.Errorf("results = %+v, want one skipped result", results)
	}
}

func TestRunIsolatesPerContactFailures(t *testing.T) {
	s := store.NewInMemoryStore()
	s.UpsertContact(dueContact("ok"))
	broken := dueContact("broken")
	s.UpsertContact(broken)

	wrapped := &failingStore{Store: s, failContact: "broken"}
	results, err := New(wrapped, time.UTC).Run(context.Background(), ref)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	var okMissed, brokenErrored bool
	for _, r := range results {
		switch r.ContactID {
		case "ok":
			okMissed = r.Missed
		case "broken":
			brokenErrored = r.Error != ""
		}
	}
	if !okMissed {
		t.Error("healthy contact should still be reconciled")
	}
	if !brokenErrored {
		t.Error("failing contact should carry its error in the result")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	s := store.NewInMemoryStore()
	s.UpsertContact(dueContact("c1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(s, time.UTC).Run(ctx, ref)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

// failingStore fails LatestInteraction for one contact ID.
type failingStore struct {
	store.Store
	failContact string
}

func (f *failingStore) LatestInteraction(contactID string) (*models.Interaction, error) {
	if contactID == f.failContact {
		return nil, errors.New("interaction table unavailable")
	}
	return f.Store.LatestInteraction(contactID)
}
