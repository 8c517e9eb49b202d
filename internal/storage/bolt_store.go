package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

// boltStore implements a Store backed by BoltDB. Listings live in one bucket
// per transaction kind, keyed by origin id, valued with the JSON record.
type boltStore struct {
	db *bolt.DB
}

func kindBucket(kind domain.TransactionKind) []byte {
	return []byte("listings_" + string(kind))
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, kind := range []domain.TransactionKind{domain.KindSale, domain.KindRental} {
			if _, err := tx.CreateBucketIfNotExists(kindBucket(kind)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) UpsertListing(_ context.Context, rec domain.ListingRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert listing: empty id")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", rec.ID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(kindBucket(rec.Kind))
		if bucket == nil {
			return fmt.Errorf("bucket for kind %q missing", rec.Kind)
		}
		return bucket.Put([]byte(rec.ID), value)
	})
}

func (b *boltStore) GetListing(_ context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, bool, error) {
	var (
		rec   domain.ListingRecord
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(kindBucket(kind))
		if bucket == nil {
			return fmt.Errorf("bucket for kind %q missing", kind)
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return nil
		}
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode listing %s: %w", id, err)
		}
		found = true
		return nil
	})
	return rec, found, err
}

func (b *boltStore) IsArchived(ctx context.Context, id string, kind domain.TransactionKind) (bool, error) {
	rec, found, err := b.GetListing(ctx, id, kind)
	if err != nil || !found {
		return false, err
	}
	return rec.Archived, nil
}

func (b *boltStore) MarkArchived(ctx context.Context, id string, kind domain.TransactionKind) error {
	rec, found, err := b.GetListing(ctx, id, kind)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if rec.Archived {
		return nil
	}
	rec.Archived = true
	return b.UpsertListing(ctx, rec)
}

func (b *boltStore) NonArchivedIDs(_ context.Context, kind domain.TransactionKind) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(kindBucket(kind))
		if bucket == nil {
			return fmt.Errorf("bucket for kind %q missing", kind)
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec domain.ListingRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode listing %s: %w", k, err)
			}
			if !rec.Archived {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
