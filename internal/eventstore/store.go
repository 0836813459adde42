// Package eventstore is the append-only dispatch ledger: one row per
// dispatch outcome, keyed by project slug, pruned by age.
package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves ledger events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, e Event) error

	// ByProject returns every event for a project, oldest first.
	ByProject(ctx context.Context, project string) ([]Event, error)

	// Prune deletes events older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
