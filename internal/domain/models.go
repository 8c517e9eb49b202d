package domain

import (
	"fmt"
	"strings"
	"time"
)

// Domain contains the canonical listing model shared across packages.

// TransactionKind distinguishes sale from rental listings. The two kinds are
// reconciled independently: the same origin id can exist under both kinds
// over its lifetime.
type TransactionKind string

const (
	KindSale   TransactionKind = "sale"
	KindRental TransactionKind = "rental"
)

// ParseKind normalizes a free-text transaction kind.
func ParseKind(s string) (TransactionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale", "sales", "prodazha":
		return KindSale, nil
	case "rental", "rent", "arenda":
		return KindRental, nil
	default:
		return "", fmt.Errorf("unknown transaction kind %q", s)
	}
}

// TypeBucket is the coarse unit-size classification of a listing.
type TypeBucket string

const (
	BucketStudio    TypeBucket = "Studio"
	BucketOneRoom   TypeBucket = "1BR"
	BucketTwoRoom   TypeBucket = "2BR"
	BucketThreePlus TypeBucket = "3BR+"
)

// SourceName identifies which fetch strategy produced a record.
type SourceName string

const (
	SourcePrimary  SourceName = "primary"
	SourceFallback SourceName = "fallback"
)

// ListingRecord is the canonical normalized listing. A non-archived record
// must carry a resolvable price and area; ids are the origin's stable listing
// ids, so repeated scrapes of the same advert update one row.
type ListingRecord struct {
	ID                 string          `json:"id"`
	Price              int64           `json:"price"`
	Area               float64         `json:"area"`
	Kind               TransactionKind `json:"kind"`
	TypeBucket         TypeBucket      `json:"type_bucket"`
	ResidentialComplex string          `json:"residential_complex,omitempty"`
	City               string          `json:"city,omitempty"`
	Floor              int             `json:"floor,omitempty"`
	TotalFloors        int             `json:"total_floors,omitempty"`
	ConstructionYear   int             `json:"construction_year,omitempty"`
	Parking            string          `json:"parking,omitempty"`
	Description        string          `json:"description,omitempty"`
	Archived           bool            `json:"archived"`
	SourceUsed         SourceName      `json:"source_used"`
	FetchedAt          time.Time       `json:"fetched_at"`
}

// Validate reports whether the record is acceptable as a fetch success.
// Archived records have been taken down by the origin and may legitimately
// lack price or area.
func (r ListingRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("listing record has empty id")
	}
	if r.Archived {
		return nil
	}
	if r.Price <= 0 {
		return fmt.Errorf("listing %s: unresolved price", r.ID)
	}
	if r.Area <= 0 {
		return fmt.Errorf("listing %s: unresolved area", r.ID)
	}
	return nil
}

// RunSummary is the outward result of one reconciliation run over a scope.
type RunSummary struct {
	RunID         string          `json:"run_id"`
	Scope         string          `json:"scope"`
	Kind          TransactionKind `json:"kind"`
	Attempted     int             `json:"attempted"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	ArchivedNewly []string        `json:"archived_newly"`
	StartedAt     time.Time       `json:"started_at"`
	Elapsed       time.Duration   `json:"elapsed"`
}
