// Package store keeps form submissions and the visit counter in memory and
// writes every mutation through to a Backend before reporting success.
package store

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/model"
)

// ErrCorruptCounter is reported by LoadCounter when the stored counter
// exists but cannot be decoded. The backend has already set the record
// aside, so the next SaveCounter starts clean.
var ErrCorruptCounter = errors.New("corrupt visit counter")

// Backend is the durable medium behind the stores: one record per
// submission id and one record for the visit counter.
type Backend interface {
	// LoadSubmissions returns every readable submission. Records that could
	// not be read are reported through a *multierror.Error alongside the
	// records that could; any other error is fatal.
	LoadSubmissions() ([]model.FormSubmission, error)
	SaveSubmission(sub model.FormSubmission) error
	// DeleteSubmission reports whether a record with that id existed.
	DeleteSubmission(id string) (bool, error)

	// LoadCounter returns nil, nil when no counter was ever persisted, and
	// an error wrapping ErrCorruptCounter when the record is unreadable.
	LoadCounter() (*model.VisitCounter, error)
	SaveCounter(counter model.VisitCounter) error

	Close() error
}

// Clock supplies the current time to the stores.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}
