package batch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/genai"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/store"
)

// UpsellSuggestion is written instead of a model completion for users whose
// plan is not eligible for AI suggestions. Still counted as success.
const UpsellSuggestion = "Upgrade to premium to get personalized AI suggestions for this contact!"

// recentInteractionLimit bounds how much history goes into the prompt.
const recentInteractionLimit = 10

// maxJitter is the upper bound of the random addition to every backoff
// delay, spreading retries that would otherwise fire together.
const maxJitter = time.Second

// errLedgerExhausted marks contacts skipped because their ledger row hit
// the per-day retry ceiling.
var errLedgerExhausted = errors.New("max retries exceeded for today")

// Suggester generates outreach suggestions for one contact. The batch
// processor owns all retry and backoff orchestration around it.
type Suggester interface {
	Suggest(ctx context.Context, contact models.Contact, interactions []models.Interaction, ref time.Time) (string, error)
}

// contactBatch is a fixed-size slice of the day's candidates.
type contactBatch struct {
	ID       string
	Contacts []models.Contact
}

// contactResult is the settled outcome of one contact's processing.
type contactResult struct {
	ContactID   string
	Err         error
	RateLimited bool
}

// Processor partitions contacts into batches and processes them with
// controlled concurrency, pacing, retries and ledger bookkeeping.
type Processor struct {
	store     store.Store
	suggester Suggester
	cfg       models.BatchConfig
	loc       *time.Location

	// sleep and jitter are injection points for tests; production uses a
	// context-aware timer and a random jitter up to maxJitter.
	sleep  func(context.Context, time.Duration) error
	jitter func() time.Duration
}

// NewProcessor creates a batch processor with the given immutable config.
func NewProcessor(st store.Store, sg Suggester, cfg models.BatchConfig, loc *time.Location) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{
		store:     st,
		suggester: sg,
		cfg:       cfg,
		loc:       loc,
		sleep:     sleepContext,
		jitter:    randomJitter,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

// Run processes the given contacts in batches and returns one result per
// batch. The input is truncated to MaxContactsPerRun before any batching;
// batches run strictly sequentially with DelayBetweenBatches between them,
// plus one extra cooldown after any batch that saw a rate-limit response.
func (p *Processor) Run(ctx context.Context, ref time.Time, contacts []models.Contact) []models.BatchResult {
	if len(contacts) > p.cfg.MaxContactsPerRun {
		slog.Info("batch: truncating run to max contacts", "found", len(contacts), "max", p.cfg.MaxContactsPerRun)
		contacts = contacts[:p.cfg.MaxContactsPerRun]
	}

	batches := p.partition(contacts)
	results := make([]models.BatchResult, 0, len(batches))
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			// The run is being torn down; settle the remaining batches as
			// synthetic errors rather than dropping them silently.
			results = append(results, syntheticErrorResult(b.ID, err))
			continue
		}

		result, rateLimited := p.processBatch(ctx, ref, b)
		results = append(results, result)

		if i < len(batches)-1 {
			if err := p.sleep(ctx, p.cfg.DelayBetweenBatches); err != nil {
				continue
			}
			if rateLimited {
				cooldown := minDuration(p.cfg.MaxRetryDelay,
					time.Duration(float64(p.cfg.DelayBetweenBatches)*p.cfg.BackoffMultiplier))
				slog.Info("batch: rate limit detected, cooling down before next batch", "cooldown", cooldown)
				if err := p.sleep(ctx, cooldown); err != nil {
					continue
				}
			}
		}
	}
	return results
}

// partition splits contacts into fixed-size batches, each with a fresh ID.
func (p *Processor) partition(contacts []models.Contact) []contactBatch {
	var batches []contactBatch
	for start := 0; start < len(contacts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(contacts) {
			end = len(contacts)
		}
		batches = append(batches, contactBatch{ID: uuid.NewString(), Contacts: contacts[start:end]})
	}
	return batches
}

// processBatch dispatches the batch's contacts concurrently, each staggered
// by its index so outbound calls ramp instead of bursting. It reports
// whether any contact saw a rate-limit response.
func (p *Processor) processBatch(ctx context.Context, ref time.Time, b contactBatch) (models.BatchResult, bool) {
	slog.Info("batch: processing", "batchID", b.ID, "contacts", len(b.Contacts))

	results := make([]contactResult, len(b.Contacts))
	var g errgroup.Group
	for i, contact := range b.Contacts {
		i, contact := i, contact
		g.Go(func() error {
			if i > 0 {
				if err := p.sleep(ctx, time.Duration(i)*p.cfg.DelayBetweenContacts); err != nil {
					results[i] = contactResult{ContactID: contact.ID, Err: err}
					return nil
				}
			}
			results[i] = p.processContact(ctx, ref, contact, b.ID)
			return nil
		})
	}
	g.Wait()

	result := models.BatchResult{BatchID: b.ID, ProcessedCount: len(results)}
	rateLimited := false
	for _, r := range results {
		if r.Err == nil {
			result.SuccessCount++
		} else {
			result.ErrorCount++
			result.Errors = append(result.Errors, models.BatchError{ContactID: r.ContactID, Error: r.Err.Error()})
		}
		if r.RateLimited {
			rateLimited = true
		}
	}
	slog.Info("batch: completed", "batchID", b.ID, "success", result.SuccessCount, "errors", result.ErrorCount, "rateLimited", rateLimited)
	return result, rateLimited
}

// processContact resolves one contact through the ledger gates, the user
// preference and plan gates, and finally the model call with in-run
// retries. Every path leaves a terminal ledger status behind.
func (p *Processor) processContact(ctx context.Context, ref time.Time, contact models.Contact, batchID string) contactResult {
	date := cadence.ProcessingDate(ref, p.loc)

	entry, err := p.store.GetProcessingLog(contact.ID, date)
	if err != nil {
		return contactResult{ContactID: contact.ID, Err: err}
	}
	if entry != nil {
		switch entry.Status {
		case models.StatusSuccess:
			slog.Debug("batch: contact already processed today, skipping", "contactID", contact.ID, "date", date)
			return contactResult{ContactID: contact.ID}
		case models.StatusExhausted:
			return contactResult{ContactID: contact.ID, Err: errLedgerExhausted}
		case models.StatusError:
			if entry.RetryCount >= models.MaxLedgerAttempts {
				if err := p.store.MarkProcessingExhausted(contact.ID, date, entry.LastError); err != nil {
					slog.Error("batch: failed to mark contact exhausted", "error", err, "contactID", contact.ID)
				}
				return contactResult{ContactID: contact.ID, Err: errLedgerExhausted}
			}
		}
	}

	entry2, recorded, err := p.store.RecordPending(contact.ID, date, batchID)
	if err != nil {
		return contactResult{ContactID: contact.ID, Err: err}
	}
	if !recorded && entry2.Terminal() {
		// Lost an upsert race to a concurrent run that already settled the
		// contact; adopt its outcome.
		if entry2.Status == models.StatusSuccess {
			return contactResult{ContactID: contact.ID}
		}
		return contactResult{ContactID: contact.ID, Err: errLedgerExhausted}
	}

	prefs, err := p.store.GetUserPreferences(contact.UserID)
	if err != nil {
		return p.fail(contact.ID, date, err, false)
	}
	if prefs != nil && !prefs.AISuggestionsEnabled {
		// User opted out; settle as success with nothing written.
		slog.Debug("batch: suggestions disabled for user, skipping model call", "contactID", contact.ID, "userID", contact.UserID)
		if err := p.store.MarkProcessingSuccess(contact.ID, date); err != nil {
			return contactResult{ContactID: contact.ID, Err: err}
		}
		return contactResult{ContactID: contact.ID}
	}

	sub, err := p.store.GetSubscription(contact.UserID)
	if err != nil {
		return p.fail(contact.ID, date, err, false)
	}

	var suggestion string
	var rateLimited bool
	if !sub.Eligible(ref) {
		suggestion = UpsellSuggestion
	} else {
		interactions, err := p.store.RecentInteractions(contact.ID, recentInteractionLimit)
		if err != nil {
			return p.fail(contact.ID, date, err, false)
		}
		suggestion, rateLimited, err = p.suggestWithRetry(ctx, contact, interactions, ref)
		if err != nil {
			return p.fail(contact.ID, date, err, rateLimited)
		}
	}

	if err := p.store.SaveSuggestion(contact.ID, suggestion, ref); err != nil {
		return p.fail(contact.ID, date, err, rateLimited)
	}
	if sub.Eligible(ref) {
		// Only a real model suggestion earns a follow-up reminder; the
		// upsell placeholder leaves any existing reminder alone.
		if err := p.writeFollowUpReminder(contact, suggestion); err != nil {
			return p.fail(contact.ID, date, err, rateLimited)
		}
	}
	if err := p.store.MarkProcessingSuccess(contact.ID, date); err != nil {
		return contactResult{ContactID: contact.ID, Err: err, RateLimited: rateLimited}
	}
	return contactResult{ContactID: contact.ID, RateLimited: rateLimited}
}

// writeFollowUpReminder leaves the contact one live reminder carrying the
// fresh suggestion. The type comes from the escalation table and the due
// date from the contact's own schedule.
func (p *Processor) writeFollowUpReminder(contact models.Contact, suggestion string) error {
	reminder := models.Reminder{
		ContactID:   contact.ID,
		UserID:      contact.UserID,
		Type:        cadence.SuggestMethod(contact.RelationshipLevel, contact.PreferredContactMethod, contact.MissedInteractions),
		DueDate:     contact.NextContactDue,
		Description: suggestion,
	}
	return p.store.ReplaceReminder(contact.ID, reminder)
}

// fail records the attempt's terminal error status and returns the result.
func (p *Processor) fail(contactID, date string, err error, rateLimited bool) contactResult {
	if mErr := p.store.MarkProcessingError(contactID, date, err.Error()); mErr != nil {
		slog.Error("batch: failed to record processing error", "error", mErr, "contactID", contactID)
	}
	return contactResult{ContactID: contactID, Err: err, RateLimited: rateLimited}
}

// suggestWithRetry performs the model call with exponential backoff on
// transient failures. Permanent failures return immediately. The bool
// reports whether any attempt hit a rate limit, even when a later retry
// recovered; the caller still owes the cross-batch cooldown for it.
func (p *Processor) suggestWithRetry(ctx context.Context, contact models.Contact, interactions []models.Interaction, ref time.Time) (string, bool, error) {
	rateLimited := false
	for attempt := 1; ; attempt++ {
		suggestion, err := p.suggester.Suggest(ctx, contact, interactions, ref)
		if err == nil {
			return suggestion, rateLimited, nil
		}
		if code, ok := genai.StatusCode(err); ok && p.cfg.IsRateLimitStatus(code) {
			rateLimited = true
		}
		if !genai.IsTransient(err) || attempt >= p.cfg.RetryAttempts {
			return "", rateLimited, err
		}
		delay := p.backoffDelay(attempt)
		slog.Debug("batch: transient failure, retrying", "contactID", contact.ID, "attempt", attempt, "delay", delay)
		if serr := p.sleep(ctx, delay); serr != nil {
			return "", rateLimited, err
		}
	}
}

func (p *Processor) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(p.cfg.RetryDelay) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt-1)))
	return minDuration(p.cfg.MaxRetryDelay, delay) + p.jitter()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// syntheticErrorResult stands in for a batch that never produced
// per-contact results.
func syntheticErrorResult(batchID string, err error) models.BatchResult {
	return models.BatchResult{
		BatchID:    batchID,
		ErrorCount: 1,
		Errors:     []models.BatchError{{ContactID: "batch", Error: err.Error()}},
	}
}
