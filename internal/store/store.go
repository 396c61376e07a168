// Package store provides storage backends for Reachout.
//
// It defines the Store interface consumed by the reconciliation and batch
// modules, with SQLite and PostgreSQL implementations plus an in-memory
// store for tests. The processing-log ledger operations live behind the
// LedgerRepo interface in ledger_repo.go.
package store

import (
	"strings"
	"time"

	"github.com/reachout/reachout/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (file path for SQLite,
	// connection URL or key=value string for Postgres).
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs
// are URLs or key=value connection strings; everything else is treated as
// a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the persistence interface the pipeline runs against. The core
// only needs equality filters, a timestamp range filter over the due date,
// and an ordered limit-one lookup for the most recent interaction.
type Store interface {
	LedgerRepo

	// ContactsDueBetween returns contacts whose next_contact_due falls in
	// [from, to). Results are ordered by due date.
	ContactsDueBetween(from, to time.Time) ([]models.Contact, error)

	// LatestInteraction returns the most recent interaction for a contact,
	// or nil if none was ever logged.
	LatestInteraction(contactID string) (*models.Interaction, error)

	// RecentInteractions returns up to limit interactions for a contact,
	// oldest first.
	RecentInteractions(contactID string, limit int) ([]models.Interaction, error)

	// ApplyMiss records a missed outreach as one logical unit: it bumps the
	// contact's miss counter, moves its due date, and replaces any existing
	// reminder with the given one. If any part fails the contact keeps its
	// prior state.
	ApplyMiss(contactID string, missed int, nextDue time.Time, reminder models.Reminder) error

	// SaveSuggestion overwrites the contact's AI suggestion fields.
	SaveSuggestion(contactID, suggestion string, at time.Time) error

	// ReplaceReminder swaps any live reminders for the contact with the
	// given one in a single logical operation.
	ReplaceReminder(contactID string, reminder models.Reminder) error

	// GetSubscription returns the user's subscription, or nil if absent.
	GetSubscription(userID string) (*models.Subscription, error)

	// GetUserPreferences returns the user's settings, or nil if absent.
	GetUserPreferences(userID string) (*models.UserPreferences, error)

	// RemindersForContact returns the live reminders for a contact.
	RemindersForContact(contactID string) ([]models.Reminder, error)

	// Close releases the underlying database resources.
	Close() error
}
