package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reachout/reachout/internal/models"
)

// Compile-time check that PostgresStore implements LedgerRepo.
var _ LedgerRepo = (*PostgresStore)(nil)

func (s *PostgresStore) GetProcessingLog(contactID, date string) (*models.ProcessingLog, error) {
	row := s.db.QueryRow(`SELECT contact_id, processing_date, batch_id, status, retry_count, last_error, created_at, updated_at
		FROM processing_logs WHERE contact_id = $1 AND processing_date = $2`, contactID, date)
	p, err := scanProcessingLogRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProcessingLog failed", "error", err, "contactID", contactID, "date", date)
		return nil, fmt.Errorf("failed to query processing log for %s/%s: %w", contactID, date, err)
	}
	return &p, nil
}

// RecordPending upserts the (contact_id, processing_date) row to pending.
// The unique key makes overlapping runs settle on one row; a row already in
// a terminal state is left untouched.
func (s *PostgresStore) RecordPending(contactID, date, batchID string) (models.ProcessingLog, bool, error) {
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO processing_logs (contact_id, processing_date, batch_id, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (contact_id, processing_date) DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			retry_count = CASE WHEN processing_logs.status = 'error' THEN processing_logs.retry_count + 1 ELSE processing_logs.retry_count END,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE processing_logs.status NOT IN ('success', 'max_retries_exceeded')`,
		contactID, date, batchID, models.StatusPending, now)
	if err != nil {
		slog.Error("PostgresStore RecordPending failed", "error", err, "contactID", contactID, "date", date)
		return models.ProcessingLog{}, false, fmt.Errorf("failed to record pending for %s/%s: %w", contactID, date, err)
	}
	n, _ := res.RowsAffected()

	entry, err := s.GetProcessingLog(contactID, date)
	if err != nil {
		return models.ProcessingLog{}, false, err
	}
	if entry == nil {
		return models.ProcessingLog{}, false, fmt.Errorf("processing log for %s/%s missing after upsert", contactID, date)
	}
	return *entry, n > 0, nil
}

func (s *PostgresStore) MarkProcessingSuccess(contactID, date string) error {
	return s.setProcessingStatus(contactID, date, models.StatusSuccess, "")
}

func (s *PostgresStore) MarkProcessingError(contactID, date, message string) error {
	return s.setProcessingStatus(contactID, date, models.StatusError, message)
}

func (s *PostgresStore) MarkProcessingExhausted(contactID, date, message string) error {
	return s.setProcessingStatus(contactID, date, models.StatusExhausted, message)
}

func (s *PostgresStore) setProcessingStatus(contactID, date string, status models.ProcessingStatus, message string) error {
	_, err := s.db.Exec(`UPDATE processing_logs SET status = $1, last_error = $2, updated_at = $3
		WHERE contact_id = $4 AND processing_date = $5`,
		status, nilIfEmpty(message), time.Now(), contactID, date)
	if err != nil {
		slog.Error("PostgresStore setProcessingStatus failed", "error", err, "contactID", contactID, "date", date, "status", status)
		return fmt.Errorf("failed to mark processing log %s for %s/%s: %w", status, contactID, date, err)
	}
	slog.Debug("PostgresStore processing log updated", "contactID", contactID, "date", date, "status", status)
	return nil
}

func (s *PostgresStore) ProcessedContactIDs(date string, statuses ...models.ProcessingStatus) (map[string]bool, error) {
	if len(statuses) == 0 {
		return map[string]bool{}, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, date)
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, st)
	}

	rows, err := s.db.Query(`SELECT contact_id FROM processing_logs
		WHERE processing_date = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		slog.Error("PostgresStore ProcessedContactIDs query failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to query processed contacts for %s: %w", date, err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed contact id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
