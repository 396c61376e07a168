package store

import (
	"database/sql"
	"fmt"

	"github.com/reachout/reachout/internal/models"
)

// contactColumns is the column list shared by the contact queries in both
// SQL backends.
const contactColumns = `id, user_id, name, relationship_level, contact_frequency, missed_interactions,
	last_contacted, next_contact_due, preferred_contact_method, social_media_handle, notes,
	ai_last_suggestion, ai_last_suggestion_date`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanContact scans a Contact from sql.Rows.
func scanContact(rows *sql.Rows) (models.Contact, error) {
	var c models.Contact
	var frequency, method, social, notes, suggestion sql.NullString
	var lastContacted, nextDue, suggestionDate sql.NullTime
	err := rows.Scan(
		&c.ID, &c.UserID, &c.Name, &c.RelationshipLevel, &frequency, &c.MissedInteractions,
		&lastContacted, &nextDue, &method, &social, &notes,
		&suggestion, &suggestionDate,
	)
	if err != nil {
		return c, fmt.Errorf("scan contact failed: %w", err)
	}
	c.ContactFrequency = models.ContactFrequency(frequency.String)
	c.PreferredContactMethod = models.ContactMethod(method.String)
	c.SocialMediaHandle = social.String
	c.Notes = notes.String
	c.AILastSuggestion = suggestion.String
	if lastContacted.Valid {
		c.LastContacted = &lastContacted.Time
	}
	if nextDue.Valid {
		c.NextContactDue = nextDue.Time
	}
	if suggestionDate.Valid {
		c.AILastSuggestionDate = &suggestionDate.Time
	}
	return c, nil
}

// scanInteraction scans an Interaction from sql.Rows.
func scanInteraction(rows *sql.Rows) (models.Interaction, error) {
	var in models.Interaction
	var sentiment sql.NullString
	if err := rows.Scan(&in.ContactID, &in.Type, &in.Date, &sentiment); err != nil {
		return in, fmt.Errorf("scan interaction failed: %w", err)
	}
	in.Sentiment = sentiment.String
	return in, nil
}

// scanProcessingLogRow scans a ProcessingLog from a single sql.Row.
func scanProcessingLogRow(row *sql.Row) (models.ProcessingLog, error) {
	var p models.ProcessingLog
	var batchID, lastError sql.NullString
	err := row.Scan(
		&p.ContactID, &p.ProcessingDate, &batchID, &p.Status, &p.RetryCount,
		&lastError, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.BatchID = batchID.String
	p.LastError = lastError.String
	return p, nil
}
