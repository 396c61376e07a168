// Package store provides storage backends for Reachout.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/reachout/reachout/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ContactsDueBetween(from, to time.Time) ([]models.Contact, error) {
	rows, err := s.db.Query(`SELECT `+contactColumns+` FROM contacts
		WHERE next_contact_due >= $1 AND next_contact_due < $2
		ORDER BY next_contact_due`, from, to)
	if err != nil {
		slog.Error("PostgresStore ContactsDueBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query due contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			slog.Error("PostgresStore ContactsDueBetween scan failed", "error", err)
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	slog.Debug("PostgresStore ContactsDueBetween succeeded", "count", len(contacts))
	return contacts, nil
}

func (s *PostgresStore) LatestInteraction(contactID string) (*models.Interaction, error) {
	rows, err := s.db.Query(`SELECT contact_id, type, date, sentiment FROM interactions
		WHERE contact_id = $1 ORDER BY date DESC LIMIT 1`, contactID)
	if err != nil {
		slog.Error("PostgresStore LatestInteraction query failed", "error", err, "contactID", contactID)
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

func (s *PostgresStore) RecentInteractions(contactID string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.Query(`SELECT contact_id, type, date, sentiment FROM (
			SELECT contact_id, type, date, sentiment FROM interactions
			WHERE contact_id = $1 ORDER BY date DESC LIMIT $2
		) recent ORDER BY date`, contactID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentInteractions query failed", "error", err, "contactID", contactID)
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
func (s *PostgresStore) ApplyMiss(contactID string, missed int, nextDue time.Time, reminder models.Reminder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin miss transaction for %s: %w", contactID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE contacts SET missed_interactions = $1, next_contact_due = $2 WHERE id = $3`,
		missed, nextDue, contactID); err != nil {
		slog.Error("PostgresStore ApplyMiss contact update failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to update contact %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`DELETE FROM reminders WHERE contact_id = $1`, contactID); err != nil {
		slog.Error("PostgresStore ApplyMiss reminder delete failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to delete reminders for %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`INSERT INTO reminders (contact_id, user_id, type, due_date, description) VALUES ($1, $2, $3, $4, $5)`,
		reminder.ContactID, reminder.UserID, reminder.Type, reminder.DueDate, nilIfEmpty(reminder.Description)); err != nil {
		slog.Error("PostgresStore ApplyMiss reminder insert failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to insert reminder for %s: %w", contactID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit miss transaction for %s: %w", contactID, err)
	}
	slog.Debug("PostgresStore ApplyMiss succeeded", "contactID", contactID, "missed", missed, "nextDue", nextDue)
	return nil
}

// ReplaceReminder swaps the contact's reminders for the given one inside a
// transaction, keeping the one-live-reminder rule.
func (s *PostgresStore) ReplaceReminder(contactID string, reminder models.Reminder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reminder transaction for %s: %w", contactID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reminders WHERE contact_id = $1`, contactID); err != nil {
		slog.Error("PostgresStore ReplaceReminder delete failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to delete reminders for %s: %w", contactID, err)
	}
	if _, err := tx.Exec(`INSERT INTO reminders (contact_id, user_id, type, due_date, description) VALUES ($1, $2, $3, $4, $5)`,
		reminder.ContactID, reminder.UserID, reminder.Type, reminder.DueDate, nilIfEmpty(reminder.Description)); err != nil {
		slog.Error("PostgresStore ReplaceReminder insert failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to insert reminder for %s: %w", contactID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reminder transaction for %s: %w", contactID, err)
	}
	slog.Debug("PostgresStore ReplaceReminder succeeded", "contactID", contactID, "type", reminder.Type)
	return nil
}

func (s *PostgresStore) SaveSuggestion(contactID, suggestion string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE contacts SET ai_last_suggestion = $1, ai_last_suggestion_date = $2 WHERE id = $3`,
		suggestion, at, contactID)
	if err != nil {
		slog.Error("PostgresStore SaveSuggestion failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to save suggestion for %s: %w", contactID, err)
	}
	slog.Debug("PostgresStore SaveSuggestion succeeded", "contactID", contactID)
	return nil
}

func (s *PostgresStore) GetSubscription(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	var validUntil sql.NullTime
	err := s.db.QueryRow(`SELECT user_id, plan_id, status, valid_until FROM subscriptions WHERE user_id = $1`, userID).
		Scan(&sub.UserID, &sub.PlanID, &sub.Status, &validUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubscription failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query subscription for %s: %w", userID, err)
	}
	if validUntil.Valid {
		sub.ValidUntil = &validUntil.Time
	}
	return &sub, nil
}

func (s *PostgresStore) GetUserPreferences(userID string) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	var tz sql.NullString
	err := s.db.QueryRow(`SELECT user_id, timezone, ai_suggestions_enabled FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&prefs.UserID, &tz, &prefs.AISuggestionsEnabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserPreferences failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query preferences for %s: %w", userID, err)
	}
	prefs.Timezone = tz.String
	return &prefs, nil
}

func (s *PostgresStore) RemindersForContact(contactID string) ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT contact_id, user_id, type, due_date, description FROM reminders WHERE contact_id = $1`, contactID)
	if err != nil {
		slog.Error("PostgresStore RemindersForContact query failed", "error", err, "contactID", contactID)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
