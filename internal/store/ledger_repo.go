// Package store provides the LedgerRepo interface for the per-contact per-day processing ledger.
package store

import "github.com/reachout/reachout/internal/models"

// LedgerRepo defines the processing-log ledger operations. The ledger is
// the single source of truth for "has this contact been handled today":
// rows are keyed (contact_id, processing_date) with a store-level unique
// constraint, so overlapping runs settle through upsert semantics.
type LedgerRepo interface {
	// GetProcessingLog returns the ledger row for a contact and date, or
	// nil if the contact has not been selected that day.
	GetProcessingLog(contactID, date string) (*models.ProcessingLog, error)

	// RecordPending upserts the row to pending before an attempt. When the
	// existing row is in error state the retry count is bumped; a row that
	// is already terminal is returned unchanged with recorded=false.
	RecordPending(contactID, date, batchID string) (models.ProcessingLog, bool, error)

	// MarkProcessingSuccess sets the terminal success status.
	MarkProcessingSuccess(contactID, date string) error

	// MarkProcessingError records a failed attempt with its message.
	MarkProcessingError(contactID, date, message string) error

	// MarkProcessingExhausted sets the terminal max_retries_exceeded status.
	MarkProcessingExhausted(contactID, date, message string) error

	// ProcessedContactIDs returns the contacts whose row for the date has
	// one of the given statuses.
	ProcessedContactIDs(date string, statuses ...models.ProcessingStatus) (map[string]bool, error)
}
