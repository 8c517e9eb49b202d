package publishers

import (
	"time"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

// Supported event types.
const (
	EventListingSaved    = "listing_saved"
	EventListingArchived = "listing_archived"
	EventRunCompleted    = "run_completed"
)

// Event represents the payload published downstream.
type Event struct {
	Type       string                 `json:"type"`
	ScopeID    string                 `json:"scope_id"`
	ScopeName  string                 `json:"scope_name,omitempty"`
	Kind       domain.TransactionKind `json:"kind,omitempty"`
	Listing    *domain.ListingRecord  `json:"listing,omitempty"`
	Summary    *domain.RunSummary     `json:"summary,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewListingSavedEvent constructs an Event for a freshly upserted listing.
func NewListingSavedEvent(scopeID, scopeName string, rec domain.ListingRecord) Event {
	return Event{
		Type:       EventListingSaved,
		ScopeID:    scopeID,
		ScopeName:  scopeName,
		Kind:       rec.Kind,
		Listing:    &rec,
		OccurredAt: time.Now().UTC(),
	}
}

// NewListingArchivedEvent constructs an Event for a confirmed delisting.
func NewListingArchivedEvent(scopeID, scopeName string, rec domain.ListingRecord) Event {
	return Event{
		Type:       EventListingArchived,
		ScopeID:    scopeID,
		ScopeName:  scopeName,
		Kind:       rec.Kind,
		Listing:    &rec,
		OccurredAt: time.Now().UTC(),
	}
}

// NewRunCompletedEvent constructs an Event carrying a reconciliation summary.
func NewRunCompletedEvent(scopeID, scopeName string, summary domain.RunSummary) Event {
	return Event{
		Type:       EventRunCompleted,
		ScopeID:    scopeID,
		ScopeName:  scopeName,
		Kind:       summary.Kind,
		Summary:    &summary,
		OccurredAt: time.Now().UTC(),
	}
}
