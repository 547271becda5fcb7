package model

import (
	"context"
	"time"
)

// CatalogStore is the durable keyed storage canonical records live in.
// Records are keyed by ID; implementations must also keep a secondary index
// on DedupHash so exact re-sighting lookup stays O(1).
type CatalogStore interface {
	// Upsert inserts job, or fully replaces the record with the same ID.
	// Claiming a DedupHash already held by a different ID fails with
	// ErrHashConflict.
	Upsert(ctx context.Context, job CanonicalJob) error

	// GetByID returns the record stored under id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (CanonicalJob, error)

	// FindByHash returns the record carrying hash, or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (CanonicalJob, error)

	// ListByCompany returns the non-duplicate records whose CompanyKey
	// equals companyKey.
	ListByCompany(ctx context.Context, companyKey string) ([]CanonicalJob, error)

	// ListScorable returns every record eligible for scoring.
	ListScorable(ctx context.Context) ([]CanonicalJob, error)

	// ListUnseenSince returns non-terminal records whose LastCheckedAt is
	// before cutoff.
	ListUnseenSince(ctx context.Context, cutoff time.Time) ([]CanonicalJob, error)

	// ListAll returns every record, terminal ones included.
	ListAll(ctx context.Context) ([]CanonicalJob, error)

	// MarkDuplicate demotes childID under parentID. The parent must itself
	// be canonical; linking under a duplicate is rejected so links never
	// chain.
	MarkDuplicate(ctx context.Context, childID, parentID string) error

	// MarkExpired moves the record to EXPIRED.
	MarkExpired(ctx context.Context, id string) error

	// MarkStale moves the record to STALE.
	MarkStale(ctx context.Context, id string) error

	// Redirect records that oldID's canonical identity moved to newID, so
	// external references (saved jobs, prior scores) keep resolving after a
	// retroactive demotion.
	Redirect(ctx context.Context, oldID, newID string) error

	// Resolve follows redirects and duplicate links from any known ID to
	// the surviving canonical ID.
	Resolve(ctx context.Context, id string) (string, error)

	Close() error
}
