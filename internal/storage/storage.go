package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

// Package storage persists the canonical listing state that reconciliation
// runs diff against.

// Store is the listing persistence contract. Listings are keyed by (id, kind):
// the same origin id can exist as a sale and as a rental over its lifetime.
type Store interface {
	Close() error
	// UpsertListing inserts or replaces the stored record for (rec.ID, rec.Kind).
	UpsertListing(ctx context.Context, rec domain.ListingRecord) error
	// GetListing returns the stored record, or false when none exists.
	GetListing(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, bool, error)
	// IsArchived reports whether the stored record for (id, kind) is archived.
	// Unknown ids are not archived.
	IsArchived(ctx context.Context, id string, kind domain.TransactionKind) (bool, error)
	// MarkArchived flips the stored record for (id, kind) to archived. Marking
	// an unknown id is a no-op.
	MarkArchived(ctx context.Context, id string, kind domain.TransactionKind) error
	// NonArchivedIDs lists every stored id of the kind that is not archived.
	NonArchivedIDs(ctx context.Context, kind domain.TransactionKind) ([]string, error)
}

// Options selects and configures a concrete store backend.
type Options struct {
	BBoltPath   string
	PostgresDSN string
}

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, typ string, opts Options) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(typ)) {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath)
	case "postgres":
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// noopStore keeps nothing; every run then sees an empty baseline, so it never
// archives anything either.
type noopStore struct{}

func (noopStore) Close() error { return nil }
func (noopStore) UpsertListing(context.Context, domain.ListingRecord) error {
	return nil
}
func (noopStore) GetListing(context.Context, string, domain.TransactionKind) (domain.ListingRecord, bool, error) {
	return domain.ListingRecord{}, false, nil
}
func (noopStore) IsArchived(context.Context, string, domain.TransactionKind) (bool, error) {
	return false, nil
}
func (noopStore) MarkArchived(context.Context, string, domain.TransactionKind) error {
	return nil
}
func (noopStore) NonArchivedIDs(context.Context, domain.TransactionKind) ([]string, error) {
	return nil, nil
}
