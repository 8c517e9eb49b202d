package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

const listingsSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id                  TEXT        NOT NULL,
	kind                TEXT        NOT NULL,
	price               BIGINT      NOT NULL DEFAULT 0,
	area                DOUBLE PRECISION NOT NULL DEFAULT 0,
	type_bucket         TEXT        NOT NULL DEFAULT '',
	residential_complex TEXT        NOT NULL DEFAULT '',
	city                TEXT        NOT NULL DEFAULT '',
	floor               INT         NOT NULL DEFAULT 0,
	total_floors        INT         NOT NULL DEFAULT 0,
	construction_year   INT         NOT NULL DEFAULT 0,
	parking             TEXT        NOT NULL DEFAULT '',
	description         TEXT        NOT NULL DEFAULT '',
	archived            BOOLEAN     NOT NULL DEFAULT FALSE,
	source_used         TEXT        NOT NULL DEFAULT '',
	fetched_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (id, kind)
);
CREATE INDEX IF NOT EXISTS listings_kind_active_idx ON listings (kind) WHERE NOT archived;
`

// postgresStore implements a Store on a pgx connection pool. One row per
// (id, kind); upserts replace the row wholesale since the origin is the
// source of truth for every field.
type postgresStore struct {
	pool *pgxpool.Pool
}

// openPostgres connects a pool and ensures the schema exists.
func openPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, listingsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure listings schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *postgresStore) UpsertListing(ctx context.Context, rec domain.ListingRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert listing: empty id")
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO listings (
			id, kind, price, area, type_bucket, residential_complex, city,
			floor, total_floors, construction_year, parking, description,
			archived, source_used, fetched_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id, kind) DO UPDATE SET
			price = EXCLUDED.price,
			area = EXCLUDED.area,
			type_bucket = EXCLUDED.type_bucket,
			residential_complex = EXCLUDED.residential_complex,
			city = EXCLUDED.city,
			floor = EXCLUDED.floor,
			total_floors = EXCLUDED.total_floors,
			construction_year = EXCLUDED.construction_year,
			parking = EXCLUDED.parking,
			description = EXCLUDED.description,
			archived = EXCLUDED.archived,
			source_used = EXCLUDED.source_used,
			fetched_at = EXCLUDED.fetched_at`,
		rec.ID, string(rec.Kind), rec.Price, rec.Area, string(rec.TypeBucket),
		rec.ResidentialComplex, rec.City, rec.Floor, rec.TotalFloors,
		rec.ConstructionYear, rec.Parking, rec.Description, rec.Archived,
		string(rec.SourceUsed), rec.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", rec.ID, err)
	}
	return nil
}

func (p *postgresStore) GetListing(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, bool, error) {
	var (
		rec        domain.ListingRecord
		kindText   string
		bucketText string
		sourceText string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, kind, price, area, type_bucket, residential_complex, city,
		       floor, total_floors, construction_year, parking, description,
		       archived, source_used, fetched_at
		FROM listings WHERE id = $1 AND kind = $2`, id, string(kind),
	).Scan(
		&rec.ID, &kindText, &rec.Price, &rec.Area, &bucketText,
		&rec.ResidentialComplex, &rec.City, &rec.Floor, &rec.TotalFloors,
		&rec.ConstructionYear, &rec.Parking, &rec.Description,
		&rec.Archived, &sourceText, &rec.FetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ListingRecord{}, false, nil
	}
	if err != nil {
		return domain.ListingRecord{}, false, fmt.Errorf("get listing %s: %w", id, err)
	}
	rec.Kind = domain.TransactionKind(kindText)
	rec.TypeBucket = domain.TypeBucket(bucketText)
	rec.SourceUsed = domain.SourceName(sourceText)
	return rec, true, nil
}

func (p *postgresStore) IsArchived(ctx context.Context, id string, kind domain.TransactionKind) (bool, error) {
	var archived bool
	err := p.pool.QueryRow(ctx,
		`SELECT archived FROM listings WHERE id = $1 AND kind = $2`,
		id, string(kind),
	).Scan(&archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check archived %s: %w", id, err)
	}
	return archived, nil
}

func (p *postgresStore) MarkArchived(ctx context.Context, id string, kind domain.TransactionKind) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE listings SET archived = TRUE WHERE id = $1 AND kind = $2`,
		id, string(kind),
	)
	if err != nil {
		return fmt.Errorf("mark archived %s: %w", id, err)
	}
	return nil
}

func (p *postgresStore) NonArchivedIDs(ctx context.Context, kind domain.TransactionKind) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM listings WHERE kind = $1 AND NOT archived`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list active ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active ids: %w", err)
	}
	return ids, nil
}
