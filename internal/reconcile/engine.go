package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/fetch"
	"github.com/orthanc-kz/orthanc-harvester/internal/logger"
	"github.com/orthanc-kz/orthanc-harvester/internal/storage"
	"github.com/orthanc-kz/orthanc-harvester/pkg/publishers"
	"github.com/orthanc-kz/orthanc-harvester/pkg/scopes"
)

// Package reconcile runs the full scope cycle: discover candidate listings,
// fetch them through the failover chain, and archive stored listings the
// origin no longer serves.

// ErrNoCandidates is returned when discovery produced nothing at all. An
// empty result almost always means the origin blocked us, not that every
// listing disappeared at once, so the run must not archive anything.
var ErrNoCandidates = errors.New("discovery produced no candidates")

// ErrPersistence is returned when every fetched record failed to write. One
// bad record is logged and skipped; all of them failing means the store
// itself is broken.
var ErrPersistence = errors.New("all listing writes failed")

// Discoverer walks search pages and collects candidate listing ids.
type Discoverer interface {
	DiscoverAll(ctx context.Context, baseURL string, maxPages, maxListings int) ([]string, error)
}

// Fetcher retrieves one listing through the source failover chain.
type Fetcher interface {
	FetchListing(ctx context.Context, id string, kind domain.TransactionKind) (domain.ListingRecord, error)
}

// Prober confirms a suspected delisting.
type Prober interface {
	ConfirmDelisted(ctx context.Context, id string) (fetch.ProbeResult, error)
}

// EventSink receives pipeline events; *publishers.Fanout satisfies it.
type EventSink interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Config carries the engine knobs that are not per-scope.
type Config struct {
	Workers     int // fetch worker pool size, usually the throttle's max budget
	MaxPages    int // default page cap when the scope sets none
	MaxListings int // default candidate cap when the scope sets none, 0 = unlimited
}

// Engine reconciles one scope at a time. All cross-worker coordination lives
// in Run; the collaborators are stateless with respect to a run.
type Engine struct {
	discoverer Discoverer
	fetcher    Fetcher
	prober     Prober
	store      storage.Store
	events     EventSink
	cfg        Config
	log        logger.Logger
}

func NewEngine(d Discoverer, f Fetcher, p Prober, store storage.Store, events EventSink, cfg Config, log logger.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Engine{
		discoverer: d,
		fetcher:    f,
		prober:     p,
		store:      store,
		events:     events,
		cfg:        cfg,
		log:        log,
	}
}

// Run reconciles one scope. The returned summary is valid even on error; a
// cancelled or blocked run reports what it managed before stopping and never
// reaches the archival phase.
func (e *Engine) Run(ctx context.Context, scope scopes.Scope) (domain.RunSummary, error) {
	kind := scope.TransactionKind()
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		Scope:     scope.ID,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.Elapsed = time.Since(summary.StartedAt) }()

	maxPages := scope.MaxPages
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}
	maxListings := scope.MaxListings
	if maxListings <= 0 {
		maxListings = e.cfg.MaxListings
	}

	candidates, err := e.discoverer.DiscoverAll(ctx, scope.SearchURL, maxPages, maxListings)
	if err != nil {
		return summary, err
	}
	if len(candidates) == 0 {
		e.log.WarnObj("discovery returned nothing, skipping run", "reconcile_no_candidates", map[string]any{
			"run_id": summary.RunID,
			"scope":  scope.ID,
		})
		return summary, ErrNoCandidates
	}

	e.log.InfoObj("reconciliation run started", "reconcile_started", map[string]any{
		"run_id":     summary.RunID,
		"scope":      scope.ID,
		"kind":       string(kind),
		"candidates": len(candidates),
	})

	toFetch, err := e.filterArchived(ctx, candidates, kind)
	if err != nil {
		return summary, err
	}

	writeFailures := e.fetchAll(ctx, scope, kind, toFetch, &summary)
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	if writeFailures > 0 && summary.Succeeded == 0 {
		return summary, fmt.Errorf("%d writes failed: %w", writeFailures, ErrPersistence)
	}

	// The candidate set, not the fetched set, is the liveness signal: an id
	// the search still lists is present on the origin even if its fetch
	// failed this run.
	candidateSet := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		candidateSet[id] = struct{}{}
	}

	if err := e.archiveMissing(ctx, scope, kind, candidateSet, &summary); err != nil {
		return summary, err
	}

	e.publish(ctx, publishers.NewRunCompletedEvent(scope.ID, scope.Name, summary))
	e.log.InfoObj("reconciliation run finished", "reconcile_finished", map[string]any{
		"run_id":    summary.RunID,
		"scope":     scope.ID,
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"archived":  len(summary.ArchivedNewly),
	})
	return summary, nil
}

// filterArchived drops candidates whose stored record is already archived.
// A relisted advert gets a fresh id on the origin, so refetching archived ids
// only burns budget.
func (e *Engine) filterArchived(ctx context.Context, candidates []string, kind domain.TransactionKind) ([]string, error) {
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		archived, err := e.store.IsArchived(ctx, id, kind)
		if err != nil {
			return nil, err
		}
		if archived {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// fetchAll runs the worker pool over the candidate ids. The pool size matches
// the throttle ceiling; the throttle itself does the admission control, so
// idle workers just park in Acquire.
func (e *Engine) fetchAll(ctx context.Context, scope scopes.Scope, kind domain.TransactionKind, ids []string, summary *domain.RunSummary) (writeFailures int) {
	summary.Attempted = len(ids)

	var mu sync.Mutex

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				rec, err := e.fetcher.FetchListing(ctx, id, kind)
				if err != nil {
					mu.Lock()
					summary.Failed++
					mu.Unlock()
					e.log.WarnObj("listing fetch failed", "reconcile_fetch_failed", map[string]any{
						"run_id":     summary.RunID,
						"listing_id": id,
						"error":      err.Error(),
					})
					continue
				}
				if err := e.store.UpsertListing(ctx, rec); err != nil {
					mu.Lock()
					summary.Failed++
					writeFailures++
					mu.Unlock()
					e.log.ErrorObj("listing upsert failed", "reconcile_upsert_failed", map[string]any{
						"run_id":     summary.RunID,
						"listing_id": id,
						"error":      err.Error(),
					})
					continue
				}
				mu.Lock()
				summary.Succeeded++
				mu.Unlock()
				e.publish(ctx, publishers.NewListingSavedEvent(scope.ID, scope.Name, rec))
			}
		}()
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return writeFailures
		case work <- id:
		}
	}
	close(work)
	wg.Wait()
	return writeFailures
}

// archiveMissing probes every stored active id the search no longer lists and
// archives the confirmed delistings. Probes run sequentially: this phase is
// small and the throttle budget belongs to the next run's fetches.
func (e *Engine) archiveMissing(ctx context.Context, scope scopes.Scope, kind domain.TransactionKind, candidateSet map[string]struct{}, summary *domain.RunSummary) error {
	stored, err := e.store.NonArchivedIDs(ctx, kind)
	if err != nil {
		return err
	}

	for _, id := range stored {
		if _, listed := candidateSet[id]; listed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := e.prober.ConfirmDelisted(ctx, id)
		if err != nil {
			e.log.WarnObj("delisting probe failed", "reconcile_probe_failed", map[string]any{
				"run_id":     summary.RunID,
				"listing_id": id,
				"error":      err.Error(),
			})
		}
		if result != fetch.ProbeDelisted {
			continue
		}

		if err := e.store.MarkArchived(ctx, id, kind); err != nil {
			e.log.ErrorObj("archive mark failed", "reconcile_archive_failed", map[string]any{
				"run_id":     summary.RunID,
				"listing_id": id,
				"error":      err.Error(),
			})
			continue
		}
		summary.ArchivedNewly = append(summary.ArchivedNewly, id)

		rec, found, err := e.store.GetListing(ctx, id, kind)
		if err != nil || !found {
			rec = domain.ListingRecord{ID: id, Kind: kind, Archived: true}
		}
		e.publish(ctx, publishers.NewListingArchivedEvent(scope.ID, scope.Name, rec))
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, evt publishers.Event) {
	if e.events == nil {
		return
	}
	if _, err := e.events.Publish(ctx, evt); err != nil {
		e.log.WarnObj("event publish failed", "reconcile_publish_failed", map[string]any{
			"event_type": evt.Type,
			"error":      err.Error(),
		})
	}
}
