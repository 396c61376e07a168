// Package models defines the core data structures for Reachout.
//
// It includes the contact, interaction, reminder and processing-log types
// shared across the reconciliation and batch modules, along with the batch
// configuration and result types.
package models

import (
	"errors"
	"time"
)

// ContactFrequency describes how often a contact wants to be reached.
type ContactFrequency string

const (
	// FrequencyEveryThreeDays schedules outreach roughly twice a week.
	FrequencyEveryThreeDays ContactFrequency = "every_three_days"
	// FrequencyWeekly schedules outreach once a week.
	FrequencyWeekly ContactFrequency = "weekly"
	// FrequencyFortnightly schedules outreach every two weeks.
	FrequencyFortnightly ContactFrequency = "fortnightly"
	// FrequencyMonthly schedules outreach once a month.
	FrequencyMonthly ContactFrequency = "monthly"
	// FrequencyQuarterly schedules outreach once a quarter.
	FrequencyQuarterly ContactFrequency = "quarterly"
)

// IsValidFrequency checks if the given frequency is supported. The empty
// string is valid and means "no explicit preference" (treated as weekly).
func IsValidFrequency(f ContactFrequency) bool {
	switch f {
	case "", FrequencyEveryThreeDays, FrequencyWeekly, FrequencyFortnightly, FrequencyMonthly, FrequencyQuarterly:
		return true
	default:
		return false
	}
}

// ContactMethod is a channel for reaching a contact.
type ContactMethod string

const (
	MethodCall    ContactMethod = "call"
	MethodMessage ContactMethod = "message"
	MethodSocial  ContactMethod = "social"
)

// Relationship level bounds. Level 1 is a distant acquaintance, level 5 a
// close relationship that warrants the most frequent contact.
const (
	MinRelationshipLevel = 1
	MaxRelationshipLevel = 5
)

// Error variables for better error handling and testability
var (
	ErrInvalidRelationshipLevel = errors.New("relationship level must be between 1 and 5")
	ErrInvalidFrequency         = errors.New("invalid contact frequency")
	ErrEmptyContactID           = errors.New("contact ID cannot be empty")
	ErrInvalidBatchSize         = errors.New("batch size must be positive")
	ErrInvalidMaxContacts       = errors.New("max contacts per run must be positive")
	ErrInvalidRetryAttempts     = errors.New("retry attempts must be positive")
	ErrInvalidBackoff           = errors.New("backoff multiplier must be at least 1")
)

// Contact represents a person being tracked. The record is owned by the
// store; the pipeline mutates fields through explicit update calls and
// never holds a copy across steps.
type Contact struct {
	ID                     string           `json:"id"`
	UserID                 string           `json:"user_id"`
	Name                   string           `json:"name"`
	RelationshipLevel      int              `json:"relationship_level"`
	ContactFrequency       ContactFrequency `json:"contact_frequency,omitempty"`
	MissedInteractions     int              `json:"missed_interactions"`
	LastContacted          *time.Time       `json:"last_contacted,omitempty"`
	NextContactDue         time.Time        `json:"next_contact_due"`
	PreferredContactMethod ContactMethod    `json:"preferred_contact_method,omitempty"`
	SocialMediaHandle      string           `json:"social_media_handle,omitempty"`
	Notes                  string           `json:"notes,omitempty"`
	AILastSuggestion       string           `json:"ai_last_suggestion,omitempty"`
	AILastSuggestionDate   *time.Time       `json:"ai_last_suggestion_date,omitempty"`
}

// Validate checks the fields the pipeline relies on.
func (c Contact) Validate() error {
	if c.ID == "" {
		return ErrEmptyContactID
	}
	if c.RelationshipLevel < MinRelationshipLevel || c.RelationshipLevel > MaxRelationshipLevel {
		return ErrInvalidRelationshipLevel
	}
	if !IsValidFrequency(c.ContactFrequency) {
		return ErrInvalidFrequency
	}
	return nil
}

// Interaction is an immutable log entry created by the user-facing logging
// flow. The pipeline only ever reads interactions.
type Interaction struct {
	ContactID string    `json:"contact_id"`
	Type      string    `json:"type"`
	Date      time.Time `json:"date"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// Reminder is a derived, disposable artifact consumed by the external
// notification surface. At most one missed-interaction reminder per contact
// is live at a time; reconciliation replaces rather than appends.
type Reminder struct {
	ContactID   string        `json:"contact_id"`
	UserID      string        `json:"user_id"`
	Type        ContactMethod `json:"type"`
	DueDate     time.Time     `json:"due_date"`
	Description string        `json:"description,omitempty"`
}

// ProcessingStatus is the state of a contact's ledger row for one day.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusSuccess   ProcessingStatus = "success"
	StatusError     ProcessingStatus = "error"
	StatusExhausted ProcessingStatus = "max_retries_exceeded"
)

// MaxLedgerAttempts is the cross-run retry ceiling for a single calendar
// day. It is independent of BatchConfig.RetryAttempts, which bounds the
// immediate in-run retries of one attempt.
const MaxLedgerAttempts = 3

// ProcessingLog is the idempotency and retry ledger row, unique per
// (contact, processing date).
type ProcessingLog struct {
	ContactID      string           `json:"contact_id"`
	ProcessingDate string           `json:"processing_date"` // YYYY-MM-DD
	BatchID        string           `json:"batch_id,omitempty"`
	Status         ProcessingStatus `json:"status"`
	RetryCount     int              `json:"retry_count"`
	LastError      string           `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Terminal reports whether the row short-circuits all further work for the
// contact on its processing date.
func (p ProcessingLog) Terminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusExhausted
}

// Subscription is the billing collaborator's view of a user, read only to
// decide plan eligibility for model calls.
type Subscription struct {
	UserID     string     `json:"user_id"`
	PlanID     string     `json:"plan_id"`
	Status     string     `json:"status"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// PlanPremium is the plan eligible for model-backed suggestions.
const PlanPremium = "premium"

// Eligible reports whether the subscription grants model-backed suggestions
// at the given reference time.
func (s *Subscription) Eligible(ref time.Time) bool {
	if s == nil {
		return false
	}
	return s.PlanID == PlanPremium && s.ValidUntil != nil && s.ValidUntil.After(ref)
}

// UserPreferences holds the per-user settings the pipeline consults.
type UserPreferences struct {
	UserID               string `json:"user_id"`
	Timezone             string `json:"timezone,omitempty"`
	AISuggestionsEnabled bool   `json:"ai_suggestions_enabled"`
}

// BatchConfig holds the immutable run parameters for the batch processor.
// It is assembled once at startup and passed down explicitly.
type BatchConfig struct {
	BatchSize            int           `json:"batch_size"`
	DelayBetweenBatches  time.Duration `json:"delay_between_batches"`
	DelayBetweenContacts time.Duration `json:"delay_between_contacts"`
	MaxContactsPerRun    int           `json:"max_contacts_per_run"`
	RetryAttempts        int           `json:"retry_attempts"`
	RetryDelay           time.Duration `json:"retry_delay"`
	MaxRetryDelay        time.Duration `json:"max_retry_delay"`
	BackoffMultiplier    float64       `json:"backoff_multiplier"`
	RateLimitStatusCodes []int         `json:"rate_limit_status_codes"`
}

// DefaultBatchConfig returns the documented defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:            20,
		DelayBetweenBatches:  5 * time.Second,
		DelayBetweenContacts: time.Second,
		MaxContactsPerRun:    100,
		RetryAttempts:        3,
		RetryDelay:           2 * time.Second,
		MaxRetryDelay:        30 * time.Second,
		BackoffMultiplier:    2,
		RateLimitStatusCodes: []int{429, 503},
	}
}

// Validate checks that the configuration is usable.
func (c BatchConfig) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxContactsPerRun <= 0 {
		return ErrInvalidMaxContacts
	}
	if c.RetryAttempts <= 0 {
		return ErrInvalidRetryAttempts
	}
	if c.BackoffMultiplier < 1 {
		return ErrInvalidBackoff
	}
	return nil
}

// IsRateLimitStatus reports whether the given HTTP status code is treated
// as an upstream rate-limit signal.
func (c BatchConfig) IsRateLimitStatus(code int) bool {
	for _, s := range c.RateLimitStatusCodes {
		if s == code {
			return true
		}
	}
	return false
}

// BatchError records a per-contact failure inside a batch result.
type BatchError struct {
	ContactID string `json:"contact_id"`
	Error     string `json:"error"`
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	BatchID        string       `json:"batch_id"`
	ProcessedCount int          `json:"processed_count"`
	SuccessCount   int          `json:"success_count"`
	ErrorCount     int          `json:"error_count"`
	Errors         []BatchError `json:"errors,omitempty"`
}

// ReconcileResult is the typed outcome of reconciling one contact.
type ReconcileResult struct {
	ContactID string `json:"contact_id"`
	Missed    bool   `json:"missed"`
	Error     string `json:"error,omitempty"`
}

// RunSummary is the structured exit report of one daily pipeline run.
type RunSummary struct {
	RunID            string        `json:"run_id"`
	ProcessingDate   string        `json:"processing_date"`
	Message          string        `json:"message"`
	Reconciled       int           `json:"reconciled"`
	MissesRecorded   int           `json:"misses_recorded"`
	ContactsFound    int           `json:"contacts_found"`
	Unprocessed      int           `json:"unprocessed"`
	BatchesProcessed int           `json:"batches_processed"`
	TotalProcessed   int           `json:"total_processed"`
	TotalSuccess     int           `json:"total_success"`
	TotalErrors      int           `json:"total_errors"`
	Results          []BatchResult `json:"results,omitempty"`
}

// API response types for consistent JSON responses

// APIStatus is the status field of an API response envelope.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
