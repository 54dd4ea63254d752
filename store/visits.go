package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
)

const DefaultResetReason = "Manual reset by admin"

var ErrNoSession = errors.New("missing session id")

// VisitCounter counts each visitor session at most once, keeps a daily
// tally that rolls over lazily on the first touch of a new UTC day, and
// persists after every mutation.
type VisitCounter struct {
	mu       sync.Mutex
	backend  Backend
	now      Clock
	counter  model.VisitCounter
	sessions map[string]struct{}
}

func OpenVisitCounter(backend Backend, now Clock) (*VisitCounter, error) {
	if now == nil {
		now = SystemClock
	}

	vc := &VisitCounter{
		backend:  backend,
		now:      now,
		sessions: map[string]struct{}{},
	}

	stored, err := backend.LoadCounter()
	switch {
	case errors.Is(err, ErrCorruptCounter):
		log.Warnf("store.load_counter.skip: %s", err)
		stored = nil
	case err != nil:
		return nil, errors.Wrap(err, "load visit counter")
	}

	if stored != nil {
		vc.counter = *stored
		log.Infof("store.load_counter: %d total, %d today", stored.TotalVisits, stored.DailyVisits)
		return vc, nil
	}

	ts := model.FormatTimestamp(now())
	vc.counter = model.VisitCounter{
		LastResetDate: ts,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := backend.SaveCounter(vc.counter); err != nil {
		log.Errorf("store.init_counter: %s", err)
	}
	log.Info("store.init_counter: new visit counter")
	return vc, nil
}

// rollover zeroes the daily tally when lastResetDate falls on an earlier
// UTC day than now. Must be called with vc.mu held.
func (vc *VisitCounter) rollover(now time.Time) bool {
	last, err := model.ParseTimestamp(vc.counter.LastResetDate)
	if err == nil && sameDay(last, now) {
		return false
	}

	ts := model.FormatTimestamp(now)
	vc.counter.DailyVisits = 0
	vc.counter.LastResetDate = ts
	vc.counter.UpdatedAt = ts
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Get returns a snapshot of the counter.
func (vc *VisitCounter) Get() model.VisitCounter {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if vc.rollover(vc.now()) {
		if err := vc.backend.SaveCounter(vc.counter); err != nil {
			log.Errorf("store.counter_rollover: %s", err)
		}
	}
	return vc.counter.Clone()
}

// IncrementForSession counts a visit for sessionID unless that session was
// already counted since startup or the last reset.
func (vc *VisitCounter) IncrementForSession(sessionID string) (model.VisitCounter, error) {
	if sessionID == "" {
		return model.VisitCounter{}, ErrNoSession
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	now := vc.now()
	rolled := vc.rollover(now)

	if _, seen := vc.sessions[sessionID]; seen {
		if rolled {
			if err := vc.backend.SaveCounter(vc.counter); err != nil {
				log.Errorf("store.counter_rollover: %s", err)
			}
		}
		return vc.counter.Clone(), nil
	}

	prev := vc.counter.Clone()
	vc.counter.TotalVisits++
	vc.counter.DailyVisits++
	vc.counter.UpdatedAt = model.FormatTimestamp(now)

	if err := vc.backend.SaveCounter(vc.counter); err != nil {
		vc.counter = prev
		log.Errorf("store.increment_counter: %s", err)
		return vc.counter.Clone(), errors.Wrap(err, "persist visit counter")
	}

	vc.sessions[sessionID] = struct{}{}
	return vc.counter.Clone(), nil
}

// Reset overwrites the totals on behalf of adminUsername and forgets every
// counted session. A nil resetTo means zero.
func (vc *VisitCounter) Reset(resetTo *int, reason, adminUsername string) (model.VisitCounter, error) {
	total := 0
	if resetTo != nil {
		total = *resetTo
	}
	if total < 0 {
		return model.VisitCounter{}, errors.Errorf("invalid reset value %d", total)
	}
	if reason == "" {
		reason = DefaultResetReason
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	prev := vc.counter.Clone()
	ts := model.FormatTimestamp(vc.now())
	vc.counter.TotalVisits = total
	vc.counter.DailyVisits = 0
	vc.counter.LastResetDate = ts
	vc.counter.LastResetBy = &adminUsername
	vc.counter.LastResetReason = &reason
	vc.counter.UpdatedAt = ts

	if err := vc.backend.SaveCounter(vc.counter); err != nil {
		vc.counter = prev
		log.Errorf("store.reset_counter: %s", err)
		return vc.counter.Clone(), errors.Wrap(err, "persist visit counter")
	}

	vc.sessions = map[string]struct{}{}
	log.WithFields(log.Fields{
		"by":      adminUsername,
		"reason":  reason,
		"resetTo": total,
	}).Info("store.reset_counter")
	return vc.counter.Clone(), nil
}

// Sessions reports how many distinct sessions were counted since startup or
// the last reset.
func (vc *VisitCounter) Sessions() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.sessions)
}
