// Package store provides storage backends for Reachout.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/reachout/reachout/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ContactsDueBetween(from, to time.Time) ([]models.Contact, error) {
	rows, err := s.db.Query(`SELECT `+contactColumns+` FROM contacts
		WHERE next_contact_due >= ? AND next_contact_due < ?
		ORDER BY next_contact_due`, from, to)
	if err != nil {
		slog.Error("SQLiteStore ContactsDueBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query due contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			slog.Error("SQLiteStore ContactsDueBetween scan failed", "error", err)
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	slog.Debug("SQLiteStore ContactsDueBetween succeeded", "count", len(contacts))
	return contacts, nil
}

func (s *SQLiteStore) LatestInteraction(contactID string) (*models.Interaction, error) {
	rows, err := s.db.Query(`SELECT contact_id, type, date, sentiment FROM interactions
		WHERE contact_id = ? ORDER BY date DESC LIMIT 1`, contactID)
	if err != nil {
		slog.Error("SQLiteStore LatestInteraction query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query latest interaction for %s: %w", contactID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	in, err := scanInteraction(rows)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *SQLiteStore) RecentInteractions(contactID string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.Query(`SELECT contact_id, type, date, sentiment FROM (
			SELECT contact_id, type, date, sentiment FROM interactions
			WHERE contact_id = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date`, contactID, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentInteractions query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query interactions for %s: %w", contactID, err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// ApplyMiss updates the contact and replaces its reminder in a single
// transaction so a failure leaves the contact in its prior state.
func (s *SQLiteStore) ApplyMiss(contactID string, missed int, nextDue time.Time, reminder models.Reminder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin miss transaction for %s: %w", contactID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE contacts SET missed_interactions = ?, next_contact_due = ? WHERE id = ?`,
		missed, nextDue, contactID); err != nil {
		slog.Error("SQLiteStore ApplyMiss contact update failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to update contact %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`DELETE FROM reminders WHERE contact_id = ?`, contactID); err != nil {
		slog.Error("SQLiteStore ApplyMiss reminder delete failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to delete reminders for %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`INSERT INTO reminders (contact_id, user_id, type, due_date, description) VALUES (?, ?, ?, ?, ?)`,
		reminder.ContactID, reminder.UserID, reminder.Type, reminder.DueDate, nilIfEmpty(reminder.Description)); err != nil {
		slog.Error("SQLiteStore ApplyMiss reminder insert failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to insert reminder for %s: %w", contactID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit miss transaction for %s: %w", contactID, err)
	}
	slog.Debug("SQLiteStore ApplyMiss succeeded", "contactID", contactID, "missed", missed, "nextDue", nextDue)
	return nil
}

// ReplaceReminder swaps the contact's reminders for the given one inside a
// transaction, keeping the one-live-reminder rule.
func (s *SQLiteStore) ReplaceReminder(contactID string, reminder models.Reminder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reminder transaction for %s: %w", contactID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reminders WHERE contact_id = ?`, contactID); err != nil {
		slog.Error("SQLiteStore ReplaceReminder delete failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to delete reminders for %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`INSERT INTO reminders (contact_id, user_id, type, due_date, description) VALUES (?, ?, ?, ?, ?)`,
		reminder.ContactID, reminder.UserID, reminder.Type, reminder.DueDate, nilIfEmpty(reminder.Description)); err != nil {
		slog.Error("SQLiteStore ReplaceReminder insert failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to insert reminder for %s: %w", contactID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reminder transaction for %s: %w", contactID, err)
	}
	slog.Debug("SQLiteStore ReplaceReminder succeeded", "contactID", contactID, "type", reminder.Type)
	return nil
}

func (s *SQLiteStore) SaveSuggestion(contactID, suggestion string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE contacts SET ai_last_suggestion = ?, ai_last_suggestion_date = ? WHERE id = ?`,
		suggestion, at, contactID)
	if err != nil {
		slog.Error("SQLiteStore SaveSuggestion failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to save suggestion for %s: %w", contactID, err)
	}
	slog.Debug("SQLiteStore SaveSuggestion succeeded", "contactID", contactID)
	return nil
}

func (s *SQLiteStore) GetSubscription(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	var validUntil sql.NullTime
	err := s.db.QueryRow(`SELECT user_id, plan_id, status, valid_until FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&sub.UserID, &sub.PlanID, &sub.Status, &validUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubscription failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query subscription for %s: %w", userID, err)
	}
	if validUntil.Valid {
		sub.ValidUntil = &validUntil.Time
	}
	return &sub, nil
}

func (s *SQLiteStore) GetUserPreferences(userID string) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	var tz sql.NullString
	err := s.db.QueryRow(`SELECT user_id, timezone, ai_suggestions_enabled FROM user_preferences WHERE user_id = ?`, userID).
		Scan(&prefs.UserID, &tz, &prefs.AISuggestionsEnabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserPreferences failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query preferences for %s: %w", userID, err)
	}
	prefs.Timezone = tz.String
	return &prefs, nil
}

func (s *SQLiteStore) RemindersForContact(contactID string) ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT contact_id, user_id, type, due_date, description FROM reminders WHERE contact_id = ?`, contactID)
	if err != nil {
		slog.Error("SQLiteStore RemindersForContact query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query reminders for %s: %w", contactID, err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var desc sql.NullString
		if err := rows.Scan(&r.ContactID, &r.UserID, &r.Type, &r.DueDate, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		r.Description = desc.String
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// UpsertContact inserts or replaces a contact record (used by tests and tooling).
func (s *SQLiteStore) UpsertContact(c models.Contact) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.RelationshipLevel, nilIfEmpty(string(c.ContactFrequency)), c.MissedInteractions,
		c.LastContacted, c.NextContactDue, nilIfEmpty(string(c.PreferredContactMethod)),
		nilIfEmpty(c.SocialMediaHandle), nilIfEmpty(c.Notes),
		nilIfEmpty(c.AILastSuggestion), c.AILastSuggestionDate)
	if err != nil {
		return fmt.Errorf("failed to upsert contact %s: %w", c.ID, err)
	}
	return nil
}

// AddInteraction appends an interaction log entry (used by tests and tooling).
func (s *SQLiteStore) AddInteraction(in models.Interaction) error {
	_, err := s.db.Exec(`INSERT INTO interactions (contact_id, type, date, sentiment) VALUES (?, ?, ?, ?)`,
		in.ContactID, in.Type, in.Date, nilIfEmpty(in.Sentiment))
	if err != nil {
		return fmt.Errorf("failed to insert interaction for %s: %w", in.ContactID, err)
	}
	return nil
}

// GetContact fetches a single contact by ID, or nil if absent.
func (s *SQLiteStore) GetContact(contactID string) (*models.Contact, error) {
	rows, err := s.db.Query(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact %s: %w", contactID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanContact(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
