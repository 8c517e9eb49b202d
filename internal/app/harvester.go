package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orthanc-kz/orthanc-harvester/internal/config"
	"github.com/orthanc-kz/orthanc-harvester/internal/discovery"
	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
	"github.com/orthanc-kz/orthanc-harvester/internal/fetch"
	"github.com/orthanc-kz/orthanc-harvester/internal/logger"
	"github.com/orthanc-kz/orthanc-harvester/internal/reconcile"
	"github.com/orthanc-kz/orthanc-harvester/internal/storage"
	"github.com/orthanc-kz/orthanc-harvester/internal/throttle"
	"github.com/orthanc-kz/orthanc-harvester/pkg/httpclient"
	"github.com/orthanc-kz/orthanc-harvester/pkg/publishers"
	"github.com/orthanc-kz/orthanc-harvester/pkg/scopes"
)

// Harvester represents the listing harvester runtime. It manages the sync
// loop, coordinating scopes, the reconciliation engine, and publishers. It
// also handles storage initialization and cleanup.
type Harvester struct {
	cfg      *config.Config
	client   httpclient.Client
	throttle *throttle.Throttle
	fanout   *publishers.Fanout
	store    storage.Store
	interval time.Duration
	log      logger.Logger
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.Nop{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := scopes.LoadScopes(cfg.ScopesFile); err != nil {
		return nil, fmt.Errorf("load scopes registry: %w", err)
	}
	scopeList := scopes.Scopes()
	scopeIDs := make([]string, 0, len(scopeList))
	for _, s := range scopeList {
		scopeIDs = append(scopeIDs, s.ID)
	}
	log.InfoObj("scopes registry loaded", "scopes_meta", map[string]any{
		"count": len(scopeIDs),
		"ids":   scopeIDs,
	})

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, cfg.StorageType, storage.Options{
		BBoltPath:   cfg.BBoltPath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	th := throttle.New(throttle.Config{
		MinBudget:        cfg.ThrottleMinBudget,
		MaxBudget:        cfg.ThrottleMaxBudget,
		InitialBudget:    cfg.ThrottleInitialBudget,
		SuccessThreshold: cfg.ThrottleSuccessThreshold,
		ShrinkFactor:     cfg.ThrottleShrinkFactor,
		Cooldown:         cfg.ThrottleCooldown,
	})

	var client httpclient.Client
	if cfg.RequestRPS > 0 {
		client = httpclient.NewRateLimitedClient(cfg.HTTPTimeout, cfg.RequestRPS)
	} else {
		client = httpclient.NewRestyClient(cfg.HTTPTimeout)
	}

	return &Harvester{
		cfg:      cfg,
		client:   client,
		throttle: th,
		fanout:   fanout,
		store:    store,
		interval: cfg.SyncInterval,
		log:      log,
	}, nil
}

// buildFanout loads and instantiates the configured publishers. A missing or
// empty publishers file leaves the pipeline running without downstream sinks.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no publishers enabled; events will be dropped", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return fanout, nil
}

// Run starts the sync loop until the context is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.store == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.closeStore()

	scopeList := scopes.Scopes()
	if len(scopeList) == 0 {
		h.log.WarnObj("no scopes configured; harvester idle", "scopes_file", h.cfg.ScopesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	h.log.InfoObj("harvester loop starting", "harvester_state", map[string]any{
		"scopes_count":     len(scopeList),
		"publishers_count": h.fanout.Size(),
		"sync_interval":    h.interval.String(),
	})

	if err := h.RunOnce(ctx); err != nil {
		h.log.ErrorObj("initial sync failed", "error", err)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := h.RunOnce(ctx); err != nil {
				h.log.ErrorObj("scheduled sync failed", "error", err)
			}
		}
	}
}

// RunOnce reconciles every configured scope once, sequentially. Scopes share
// the throttle, so running them in parallel would just split the same budget.
func (h *Harvester) RunOnce(ctx context.Context) error {
	start := time.Now()
	scopeList := scopes.Scopes()

	var errs []error
	for _, scope := range scopeList {
		if err := ctx.Err(); err != nil {
			return err
		}

		summary, err := h.runScope(ctx, scope)
		switch {
		case errors.Is(err, reconcile.ErrNoCandidates):
			// Already logged by the engine; nothing to reconcile.
		case err != nil:
			errs = append(errs, fmt.Errorf("scope %s: %w", scope.ID, err))
			h.log.ErrorObj("scope sync failed", "sync_scope_error", map[string]any{
				"scope": scope.ID,
				"error": err.Error(),
			})
		default:
			h.log.InfoObj("scope sync completed", "sync_scope_summary", map[string]any{
				"scope":      scope.ID,
				"run_id":     summary.RunID,
				"attempted":  summary.Attempted,
				"succeeded":  summary.Succeeded,
				"failed":     summary.Failed,
				"archived":   len(summary.ArchivedNewly),
				"elapsed_ms": summary.Elapsed.Milliseconds(),
			})
		}
	}

	h.log.InfoObj("sync completed", "sync_meta", map[string]any{
		"scopes_count": len(scopeList),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	})
	return errors.Join(errs...)
}

// runScope assembles the per-scope collaborators and runs the engine once.
// Scope headers differ, so discovery and fetch are built per scope; the
// throttle and store are shared.
func (h *Harvester) runScope(ctx context.Context, scope scopes.Scope) (domain.RunSummary, error) {
	headers := scopes.Headers(scope)

	discoverer := discovery.NewDiscoverer(h.client, headers, h.cfg.ResultsPerPage, h.log)
	fetcher := fetch.NewFetcher(h.throttle, h.log,
		fetch.NewAnalyticsSource(h.client, headers),
		fetch.NewPageSource(h.client, headers),
	)
	prober := fetch.NewProber(h.client, headers, h.throttle)

	engine := reconcile.NewEngine(discoverer, fetcher, prober, h.store, h.fanout, reconcile.Config{
		Workers:     h.throttle.MaxBudget(),
		MaxPages:    h.cfg.DefaultMaxPages,
		MaxListings: h.cfg.DefaultMaxCandidate,
	}, h.log)

	return engine.Run(ctx, scope)
}

// Close releases the harvester's resources. Run closes them itself; one-shot
// callers of RunOnce must Close explicitly.
func (h *Harvester) Close() {
	h.closeStore()
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (h *Harvester) closeStore() {
	if h == nil || h.store == nil {
		return
	}
	if err := h.store.Close(); err != nil {
		h.log.ErrorObj("storage close failed", "error", err)
	}
}
