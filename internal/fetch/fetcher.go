package fetch

import (
	"context"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/logger"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
)

// Fetcher retrieves listings through an ordered chain of sources, failing
// over to the next source when one cannot produce a valid record. The whole
// attempt, fallbacks included, runs under a single throttle slot so the
// origin sees at most budget concurrent workers regardless of retries.
type Fetcher struct {
	sources  []Source
	throttle *throttle.Throttle
	log      logger.Logger
}

func NewFetcher(throttle *throttle.Throttle, log logger.Logger, sources ...Source) *Fetcher {
	if log == nil {
		log = logger.Nop{}
	}
	return &Fetcher{sources: sources, throttle: throttle, log: log}
}

// FetchListing fetches one listing by id. Every transport attempt is reported
// to the throttle, so a rate-limited primary shrinks the budget even when the
// fallback then succeeds. Returns a *FetchError when every source failed.
func (f *Fetcher) FetchListing(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, error) {
	if !f.throttle.Acquire(ctx) {
		return domain.ListingRecord{}, ctx.Err()
	}
	defer f.throttle.Release()

	var attempts []Attempt
	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return domain.ListingRecord{}, err
		}

		rec, outcome, err := src.Fetch(ctx, id, kind)
		f.throttle.Observe(outcome)
		if err == nil {
			if len(attempts) > 0 {
				f.log.DebugObj("listing fetched after failover", "fetch_failover", map[string]any{
					"listing_id": id,
					"source":     string(src.Name()),
					"failed":     len(attempts),
				})
			}
			return rec, nil
		}

		f.log.DebugObj("listing source attempt failed", "fetch_attempt_failed", map[string]any{
			"listing_id": id,
			"source":     string(src.Name()),
			"outcome":    outcome.String(),
			"error":      err.Error(),
		})
		attempts = append(attempts, Attempt{Source: src.Name(), Err: err})
	}

	return domain.ListingRecord{}, &FetchError{ID: id, Attempts: attempts}
}
