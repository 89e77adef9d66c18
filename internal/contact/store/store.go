// Package store persists contact records. Stores are interface-driven so the
// resolution service stays testable against the in-memory implementation and
// deploys against PostgreSQL without rewiring.
package store

import (
	"context"

	"identity-link/internal/contact/models"
)

// Store is the contact persistence contract consumed by the resolution
// service. Implementations return copies; callers never observe aliased
// records across calls.
type Store interface {
	// FindMatching returns every contact whose email equals the given email
	// (when non-empty) or whose phone number equals the given phone (when
	// non-empty). Exact string equality; absent fields never match. Callers
	// must not rely on result ordering. A miss returns an empty slice.
	FindMatching(ctx context.Context, email, phone string) ([]*models.Contact, error)

	// FindByID returns the contact with the given id, or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id int64) (*models.Contact, error)

	// FindByLinkedID returns every contact directly linked to the given
	// contact id, in ascending id order.
	FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error)

	// Create persists a draft, assigning id and timestamps. Ids are
	// monotonically increasing and never reused.
	Create(ctx context.Context, draft models.ContactDraft) (*models.Contact, error)

	// Save persists mutations to an existing record and refreshes its
	// updated_at. Returns sentinel.ErrNotFound for unknown ids.
	Save(ctx context.Context, contact *models.Contact) error

	// Relink points every listed contact at newLinkedID in one batch,
	// refreshing updated_at.
	Relink(ctx context.Context, ids []int64, newLinkedID int64) error
}

// Tx provides a transactional boundary for a resolution pass. All reads and
// writes of one request run inside a single fn invocation; implementations
// guarantee that concurrent invocations touching the same email or phone
// value are serialized, so two racing requests for the same new identity
// cannot both create a primary.
type Tx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

type lockKeysKey struct{}

// WithLockKeys stores the request's normalized identifier keys in context.
// Tx implementations that lock (rather than rely on database isolation) use
// them to scope their locks.
func WithLockKeys(ctx context.Context, keys []string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	return context.WithValue(ctx, lockKeysKey{}, keys)
}

// LockKeysFrom extracts identifier keys stored by WithLockKeys.
func LockKeysFrom(ctx context.Context) []string {
	if keys, ok := ctx.Value(lockKeysKey{}).([]string); ok {
		return keys
	}
	return nil
}
