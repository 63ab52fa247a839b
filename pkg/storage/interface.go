package storage

import (
	"context"
	"time"

	"websearch/pkg/models"
)

// StateStore tracks per-URL crawl outcomes so a crawl can resume
// without refetching terminal URLs.
type StateStore interface {
	// MarkPending records that a URL has been handed to a worker.
	// Returns true if the URL was newly added, false if already present.
	MarkPending(normalizedURL string, depth int) (bool, error)

	// CheckState retrieves the stored state for a URL.
	// StateUnset with a nil entry means the URL was never seen.
	CheckState(normalizedURL string) (models.FetchState, *models.PageDBEntry, error)

	// UpdateState overwrites the stored entry for a URL.
	UpdateState(normalizedURL string, entry *models.PageDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations.
type StoreAdmin interface {
	// GetVisitedCount returns the number of tracked URLs.
	GetVisitedCount() (int, error)

	// RequeueIncomplete scans the store and sends non-terminal URLs
	// (pending, transient-fail, malformed entries) to workChan.
	// Called only when resuming a crawl.
	RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (requeuedCount int, scanErrors int, err error)

	// LoadTerminal scans the store and invokes fn for every URL in a
	// terminal state, so the frontier can be pre-seeded on resume.
	LoadTerminal(ctx context.Context, fn func(url string)) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database.
	Close() error
}

// VisitedStore combines the store interfaces for components needing full access.
type VisitedStore interface {
	StateStore
	StoreAdmin
}
