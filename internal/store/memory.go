// Package store provides storage backends for Reachout.
//
// This file implements an in-memory store used by tests; DSN-less runs get
// a SQLite file under the state directory instead.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/reachout/reachout/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps all records in process memory behind one mutex.
type InMemoryStore struct {
	mu            sync.Mutex
	contacts      map[string]models.Contact
	interactions  map[string][]models.Interaction
	reminders     map[string][]models.Reminder
	logs          map[string]models.ProcessingLog // key: contactID + "|" + date
	subscriptions map[string]models.Subscription
	preferences   map[string]models.UserPreferences
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contacts:      make(map[string]models.Contact),
		interactions:  make(map[string][]models.Interaction),
		reminders:     make(map[string][]models.Reminder),
		logs:          make(map[string]models.ProcessingLog),
		subscriptions: make(map[string]models.Subscription),
		preferences:   make(map[string]models.UserPreferences),
	}
}

func logKey(contactID, date string) string { return contactID + "|" + date }

// UpsertContact inserts or replaces a contact record.
func (s *InMemoryStore) UpsertContact(c models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
	return nil
}

// GetContact fetches a single contact by ID, or nil if absent.
func (s *InMemoryStore) GetContact(contactID string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// AddInteraction appends an interaction log entry.
func (s *InMemoryStore) AddInteraction(in models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[in.ContactID] = append(s.interactions[in.ContactID], in)
	return nil
}

// SetSubscription stores a user's subscription record.
func (s *InMemoryStore) SetSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
}

// SetUserPreferences stores a user's settings record.
func (s *InMemoryStore) SetUserPreferences(prefs models.UserPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[prefs.UserID] = prefs
}

func (s *InMemoryStore) ContactsDueBetween(from, to time.Time) ([]models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Contact
	for _, c := range s.contacts {
		if !c.NextContactDue.Before(from) && c.NextContactDue.Before(to) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextContactDue.Before(due[j].NextContactDue) })
	return due, nil
}

func (s *InMemoryStore) LatestInteraction(contactID string) (*models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins := s.interactions[contactID]
	if len(ins) == 0 {
		return nil, nil
	}
	latest := ins[0]
	for _, in := range ins[1:] {
		if in.Date.After(latest.Date) {
			latest = in
		}
	}
	return &latest, nil
}

func (s *InMemoryStore) RecentInteractions(contactID string, limit int) ([]models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins := append([]models.Interaction(nil), s.interactions[contactID]...)
	sort.Slice(ins, func(i, j int) bool { return ins[i].Date.Before(ins[j].Date) })
	if limit > 0 && len(ins) > limit {
		ins = ins[len(ins)-limit:]
	}
	return ins, nil
}

func (s *InMemoryStore) ApplyMiss(contactID string, missed int, nextDue time.Time, reminder models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return models.ErrEmptyContactID
	}
	c.MissedInteractions = missed
	c.NextContactDue = nextDue
	s.contacts[contactID] = c
	s.reminders[contactID] = []models.Reminder{reminder}
	return nil
}

func (s *InMemoryStore) ReplaceReminder(contactID string, reminder models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[contactID]; !ok {
		return models.ErrEmptyContactID
	}
	s.reminders[contactID] = []models.Reminder{reminder}
	return nil
}

func (s *InMemoryStore) SaveSuggestion(contactID, suggestion string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return models.ErrEmptyContactID
	}
	c.AILastSuggestion = suggestion
	t := at
	c.AILastSuggestionDate = &t
	s.contacts[contactID] = c
	return nil
}

func (s *InMemoryStore) GetSubscription(userID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *InMemoryStore) GetUserPreferences(userID string) (*models.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.preferences[userID]
	if !ok {
		return nil, nil
	}
	return &prefs, nil
}

func (s *InMemoryStore) RemindersForContact(contactID string) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reminder(nil), s.reminders[contactID]...), nil
}

func (s *InMemoryStore) GetProcessingLog(contactID, date string) (*models.ProcessingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[logKey(contactID, date)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *InMemoryStore) RecordPending(contactID, date, batchID string) (models.ProcessingLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	key := logKey(contactID, date)
	entry, ok := s.logs[key]
	if !ok {
		entry = models.ProcessingLog{
			ContactID:      contactID,
			ProcessingDate: date,
			BatchID:        batchID,
			Status:         models.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.logs[key] = entry
		return entry, true, nil
	}
	if entry.Terminal() {
		return entry, false, nil
	}
	if entry.Status == models.StatusError {
		entry.RetryCount++
	}
	entry.Status = models.StatusPending
	entry.BatchID = batchID
	entry.UpdatedAt = now
	s.logs[key] = entry
	return entry, true, nil
}

func (s *InMemoryStore) MarkProcessingSuccess(contactID, date string) error {
	return s.setStatus(contactID, date, models.StatusSuccess, "")
}

func (s *InMemoryStore) MarkProcessingError(contactID, date, message string) error {
	return s.setStatus(contactID, date, models.StatusError, message)
}

func (s *InMemoryStore) MarkProcessingExhausted(contactID, date, message string) error {
	return s.setStatus(contactID, date, models.StatusExhausted, message)
}

func (s *InMemoryStore) setStatus(contactID, date string, status models.ProcessingStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey(contactID, date)
	entry, ok := s.logs[key]
	if !ok {
		return nil
	}
	entry.Status = status
	entry.LastError = message
	entry.UpdatedAt = time.Now()
	s.logs[key] = entry
	return nil
}

func (s *InMemoryStore) ProcessedContactIDs(date string, statuses ...models.ProcessingStatus) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool)
	for _, entry := range s.logs {
		if entry.ProcessingDate != date {
			continue
		}
		for _, st := range statuses {
			if entry.Status == st {
				ids[entry.ContactID] = true
				break
			}
		}
	}
	return ids, nil
}

func (s *InMemoryStore) Close() error { return nil }
