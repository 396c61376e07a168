package store

import (
	"testing"
	"time"

	"github.com/reachout/reachout/internal/models"
)

func TestInMemoryContactsDueBetween(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	seed := []models.Contact{
		{ID: "c1", UserID: "u1", Name: "Ada", RelationshipLevel: 3, NextContactDue: base.Add(2 * time.Hour)},
		{ID: "c2", UserID: "u1", Name: "Ben", RelationshipLevel: 2, NextContactDue: base.Add(20 * time.Hour)},
		{ID: "c3", UserID: "u1", Name: "Cam", RelationshipLevel: 1, NextContactDue: base.Add(30 * time.Hour)},
		{ID: "c4", UserID: "u1", Name: "Dee", RelationshipLevel: 4, NextContactDue: base.Add(-time.Hour)},
	}
	for _, c := range seed {
		if err := s.UpsertContact(c); err != nil {
			t.Fatalf("UpsertContact: %v", err)
		}
	}

	due, err := s.ContactsDueBetween(base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ContactsDueBetween: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d contacts, want 2", len(due))
	}
	// Sorted by due date.
	if due[0].ID != "c1" || due[1].ID != "c2" {
		t.Errorf("got order %s, %s; want c1, c2", due[0].ID, due[1].ID)
	}
}

func TestInMemoryRecentInteractions(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.AddInteraction(models.Interaction{ContactID: "c1", Type: "call", Date: base.AddDate(0, 0, -i)})
	}

	ins, err := s.RecentInteractions("c1", 3)
	if err != nil {
		t.Fatalf("RecentInteractions: %v", err)
	}
	if len(ins) != 3 {
		t.Fatalf("got %d interactions, want 3", len(ins))
	}
	// Oldest first within the window, ending at the most recent.
	if !ins[2].Date.Equal(base) {
		t.Errorf("last interaction = %v, want %v", ins[2].Date, base)
	}
	for i := 1; i < len(ins); i++ {
		if ins[i].Date.Before(ins[i-1].Date) {
			t.Errorf("interactions out of order at %d", i)
		}
	}
}

func TestInMemoryApplyMissReplacesReminder(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.UpsertContact(models.Contact{ID: "c1", UserID: "u1", Name: "Ada", RelationshipLevel: 3, MissedInteractions: 1, NextContactDue: base})

	first := models.Reminder{ContactID: "c1", UserID: "u1", Type: models.MethodMessage, DueDate: base.AddDate(0, 0, 4)}
	if err := s.ApplyMiss("c1", 2, base.AddDate(0, 0, 4), first); err != nil {
		t.Fatalf("ApplyMiss: %v", err)
	}
	second := models.Reminder{ContactID: "c1", UserID: "u1", Type: models.MethodCall, DueDate: base.AddDate(0, 0, 3)}
	if err := s.ApplyMiss("c1", 3, base.AddDate(0, 0, 3), second); err != nil {
		t.Fatalf("ApplyMiss: %v", err)
	}

	c, err := s.GetContact("c1")
	if err != nil || c == nil {
		t.Fatalf("GetContact: %v, %v", c, err)
	}
	if c.MissedInteractions != 3 {
		t.Errorf("MissedInteractions = %d, want 3", c.MissedInteractions)
	}
	if !c.NextContactDue.Equal(base.AddDate(0, 0, 3)) {
		t.Errorf("NextContactDue = %v, want %v", c.NextContactDue, base.AddDate(0, 0, 3))
	}

	rems, err := s.RemindersForContact("c1")
	if err != nil {
		t.Fatalf("RemindersForContact: %v", err)
	}
	if len(rems) != 1 {
		t.Fatalf("got %d reminders, want exactly 1 after replacement", len(rems))
	}
	if rems[0].Type != models.MethodCall {
		t.Errorf("reminder type = %q, want call", rems[0].Type)
	}
}

func TestInMemoryReplaceReminder(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.UpsertContact(models.Contact{ID: "c1", UserID: "u1", Name: "Ada", RelationshipLevel: 3, NextContactDue: base})

	if err := s.ReplaceReminder("c1", models.Reminder{ContactID: "c1", UserID: "u1", Type: models.MethodMessage, DueDate: base}); err != nil {
		t.Fatalf("ReplaceReminder: %v", err)
	}
	if err := s.ReplaceReminder("c1", models.Reminder{ContactID: "c1", UserID: "u1", Type: models.MethodCall, DueDate: base.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("ReplaceReminder: %v", err)
	}

	rems, _ := s.RemindersForContact("c1")
	if len(rems) != 1 || rems[0].Type != models.MethodCall {
		t.Errorf("reminders = %+v, want single call reminder", rems)
	}

	if err := s.ReplaceReminder("ghost", models.Reminder{ContactID: "ghost"}); err == nil {
		t.Error("expected error for unknown contact")
	}
}

func TestInMemoryApplyMissUnknownContact(t *testing.T) {
	s := NewInMemoryStore()
	err := s.ApplyMiss("ghost", 1, time.Now(), models.Reminder{ContactID: "ghost"})
	if err == nil {
		t.Error("expected error for unknown contact")
	}
}

func TestInMemorySaveSuggestion(t *testing.T) {
	s := NewInMemoryStore()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.UpsertContact(models.Contact{ID: "c1", UserID: "u1", Name: "Ada", RelationshipLevel: 3})

	if err := s.SaveSuggestion("c1", "Call Ada about her new job", at); err != nil {
		t.Fatalf("SaveSuggestion: %v", err)
	}
	c, _ := s.GetContact("c1")
	if c.AILastSuggestion != "Call Ada about her new job" {
		t.Errorf("AILastSuggestion = %q", c.AILastSuggestion)
	}
	if c.AILastSuggestionDate == nil || !c.AILastSuggestionDate.Equal(at) {
		t.Errorf("AILastSuggestionDate = %v, want %v", c.AILastSuggestionDate, at)
	}
}

func TestInMemoryLedgerLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	const date = "2026-05-01"

	entry, recorded, err := s.RecordPending("c1", date, "batch-1")
	if err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	if !recorded {
		t.Fatal("first RecordPending should report recorded")
	}
	if entry.Status != models.StatusPending || entry.RetryCount != 0 {
		t.Errorf("entry = %+v, want pending with zero retries", entry)
	}

	if err := s.MarkProcessingError("c1", date, "boom"); err != nil {
		t.Fatalf("MarkProcessingError: %v", err)
	}

	// Re-recording after an error bumps the retry count.
	entry, recorded, err = s.RecordPending("c1", date, "batch-2")
	if err != nil || !recorded {
		t.Fatalf("RecordPending after error: recorded=%v err=%v", recorded, err)
	}
	if entry.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", entry.RetryCount)
	}
	if entry.BatchID != "batch-2" {
		t.Errorf("BatchID = %q, want batch-2", entry.BatchID)
	}

	if err := s.MarkProcessingSuccess("c1", date); err != nil {
		t.Fatalf("MarkProcessingSuccess: %v", err)
	}

	// Success is terminal: further attempts are rejected and leave the row alone.
	entry, recorded, err = s.RecordPending("c1", date, "batch-3")
	if err != nil {
		t.Fatalf("RecordPending after success: %v", err)
	}
	if recorded {
		t.Error("RecordPending should not record over a successful row")
	}
	if entry.Status != models.StatusSuccess {
		t.Errorf("status = %q, want success", entry.Status)
	}

	// A different date is a fresh row.
	_, recorded, err = s.RecordPending("c1", "2026-05-02", "batch-4")
	if err != nil || !recorded {
		t.Fatalf("RecordPending next day: recorded=%v err=%v", recorded, err)
	}
}

func TestInMemoryLedgerExhaustedIsTerminal(t *testing.T) {
	s := NewInMemoryStore()
	const date = "2026-05-01"

	s.RecordPending("c1", date, "b1")
	if err := s.MarkProcessingExhausted("c1", date, "max retries exceeded"); err != nil {
		t.Fatalf("MarkProcessingExhausted: %v", err)
	}

	entry, recorded, err := s.RecordPending("c1", date, "b2")
	if err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	if recorded {
		t.Error("RecordPending should not record over an exhausted row")
	}
	if entry.Status != models.StatusExhausted {
		t.Errorf("status = %q, want max_retries_exceeded", entry.Status)
	}
	if !entry.Terminal() {
		t.Error("exhausted entry should be terminal")
	}
}

func TestInMemoryProcessedContactIDs(t *testing.T) {
	s := NewInMemoryStore()
	const date = "2026-05-01"

	s.RecordPending("done", date, "b1")
	s.MarkProcessingSuccess("done", date)

	s.RecordPending("gave-up", date, "b1")
	s.MarkProcessingExhausted("gave-up", date, "max retries exceeded")

	s.RecordPending("retryable", date, "b1")
	s.MarkProcessingError("retryable", date, "transient")

	s.RecordPending("other-day", "2026-05-02", "b2")
	s.MarkProcessingSuccess("other-day", "2026-05-02")

	ids, err := s.ProcessedContactIDs(date, models.StatusSuccess, models.StatusExhausted)
	if err != nil {
		t.Fatalf("ProcessedContactIDs: %v", err)
	}
	if len(ids) != 2 || !ids["done"] || !ids["gave-up"] {
		t.Errorf("ids = %v, want done and gave-up only", ids)
	}
}

func TestInMemorySubscriptionAndPreferences(t *testing.T) {
	s := NewInMemoryStore()
	ref := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	if sub, err := s.GetSubscription("u1"); err != nil || sub != nil {
		t.Fatalf("GetSubscription on empty store = %v, %v", sub, err)
	}

	valid := ref.AddDate(0, 1, 0)
	s.SetSubscription(models.Subscription{UserID: "u1", PlanID: models.PlanPremium, Status: "active", ValidUntil: &valid})
	sub, err := s.GetSubscription("u1")
	if err != nil || sub == nil {
		t.Fatalf("GetSubscription: %v, %v", sub, err)
	}
	if !sub.Eligible(ref) {
		t.Error("premium subscription with future expiry should be eligible")
	}

	s.SetUserPreferences(models.UserPreferences{UserID: "u1", Timezone: "Europe/Berlin", AISuggestionsEnabled: false})
	prefs, err := s.GetUserPreferences("u1")
	if err != nil || prefs == nil {
		t.Fatalf("GetUserPreferences: %v, %v", prefs, err)
	}
	if prefs.AISuggestionsEnabled {
		t.Error("AISuggestionsEnabled should be false")
	}
}
