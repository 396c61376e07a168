// Package batch drives the daily suggestion pipeline: selecting the day's
// candidate contacts, processing them in paced batches against the model,
// and recording every attempt in the processing ledger.
package batch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/store"
)

// Selector computes the work list for a run: contacts due in the next 24
// hours that the ledger has not already settled for the processing date.
type Selector struct {
	store store.Store
	loc   *time.Location
}

// NewSelector creates a selector. loc determines the ledger's processing
// date for the reference time.
func NewSelector(st store.Store, loc *time.Location) *Selector {
	if loc == nil {
		loc = time.UTC
	}
	return &Selector{store: st, loc: loc}
}

// DueSoon returns the unprocessed contacts due inside [ref, ref+24h) along
// with the total number found before the ledger filter. An empty work list
// is a normal outcome, not an error.
func (s *Selector) DueSoon(ref time.Time) ([]models.Contact, int, error) {
	from, to := cadence.NextDayWindow(ref)
	contacts, err := s.store.ContactsDueBetween(from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select due contacts: %w", err)
	}
	if len(contacts) == 0 {
		slog.Debug("selector: no contacts due in window", "from", from, "to", to)
		return nil, 0, nil
	}

	date := cadence.ProcessingDate(ref, s.loc)
	settled, err := s.store.ProcessedContactIDs(date, models.StatusSuccess, models.StatusExhausted)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load processed contacts for %s: %w", date, err)
	}

	work := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if !settled[c.ID] {
			work = append(work, c)
		}
	}
	slog.Debug("selector: work list computed", "found", len(contacts), "settled", len(settled), "work", len(work), "date", date)
	return work, len(contacts), nil
}
