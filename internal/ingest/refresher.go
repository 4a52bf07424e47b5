// Package ingest drives the incremental refresh cycle: per family, compute
// the watermark, fetch only newer data, validate it and upsert it, then purge
// the query cache. The cycle runs in the background so the interactive path
// never waits on provider I/O.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
	"github.com/1509Chamma/ukenergydashboard/internal/pipeline"
	"github.com/1509Chamma/ukenergydashboard/internal/sources"
)

// Store is the slice of the historical store the refresher writes through.
type Store interface {
	Watermark(ctx context.Context, family models.Family) (time.Time, bool, error)
	Upsert(ctx context.Context, family models.Family, rows []models.CanonicalRow) (inserted, updated int, err error)
}

// Purger invalidates the query cache once a cycle completes.
type Purger interface {
	PurgeAll()
}

// FamilyStats reports one family's outcome within a refresh cycle.
type FamilyStats struct {
	Family        models.Family               `json:"family"`
	Outcome       string                      `json:"outcome"` // ok, failed, skipped
	Watermark     *time.Time                  `json:"watermark,omitempty"`
	Fetched       int                         `json:"fetched"`
	Accepted      int                         `json:"accepted"`
	Rejected      int                         `json:"rejected"`
	RejectReasons map[models.RejectReason]int `json:"reject_reasons,omitempty"`
	Inserted      int                         `json:"inserted"`
	Updated       int                         `json:"updated"`
	Error         string                      `json:"error,omitempty"`
	Duration      time.Duration               `json:"duration_ns"`
}

// CycleStats reports one full refresh cycle.
type CycleStats struct {
	ID         string                         `json:"id"`
	StartedAt  time.Time                      `json:"started_at"`
	FinishedAt time.Time                      `json:"finished_at"`
	Families   map[models.Family]*FamilyStats `json:"families"`
}

// Refresher coordinates refresh cycles across the three families.
type Refresher struct {
	store    Store
	adapters map[models.Family]sources.Adapter
	cache    Purger
	timeout  time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	running  bool
	inFlight map[models.Family]bool
	last     *CycleStats
}

// New wires a refresher over the store, the source adapters and the cache.
// timeout bounds one family's fetch.
func New(store Store, adapters []sources.Adapter, cache Purger, timeout time.Duration, log zerolog.Logger) *Refresher {
	byFamily := make(map[models.Family]sources.Adapter, len(adapters))
	for _, a := range adapters {
		byFamily[a.Family()] = a
	}
	return &Refresher{
		store:    store,
		adapters: byFamily,
		cache:    cache,
		timeout:  timeout,
		log:      log,
		inFlight: make(map[models.Family]bool),
	}
}

// TryRunCycle runs one refresh cycle unless one is already in progress, in
// which case it is a no-op and returns false. Families refresh concurrently;
// a source failure skips that family only. The cache is purged after every
// family has finished, success or not, so no pre-cycle snapshot is re-served
// once the purge is observed.
func (r *Refresher) TryRunCycle(ctx context.Context) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	stats := &CycleStats{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Families:  make(map[models.Family]*FamilyStats, len(r.adapters)),
	}
	log := r.log.With().Str("cycle_id", stats.ID).Logger()
	log.Info().Msg("refresh cycle started")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, family := range models.Families() {
		adapter, ok := r.adapters[family]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(family models.Family, adapter sources.Adapter) {
			defer wg.Done()
			fs := r.refreshFamily(ctx, log, family, adapter)
			mu.Lock()
			stats.Families[family] = fs
			mu.Unlock()
		}(family, adapter)
	}
	wg.Wait()

	stats.FinishedAt = time.Now().UTC()

	r.mu.Lock()
	r.last = stats
	r.mu.Unlock()

	r.cache.PurgeAll()
	log.Info().Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).Msg("refresh cycle finished, cache purged")
	return true
}

// refreshFamily runs one family through fetch, validate and upsert. It never
// returns an error: source failures are absorbed here so the other families
// proceed.
func (r *Refresher) refreshFamily(ctx context.Context, log zerolog.Logger, family models.Family, adapter sources.Adapter) *FamilyStats {
	fs := &FamilyStats{Family: family, Outcome: "ok"}
	started := time.Now()
	defer func() { fs.Duration = time.Since(started) }()

	// Per-family overlap guard; a refresh already in progress makes this
	// request a no-op, not an error.
	r.mu.Lock()
	if r.inFlight[family] {
		r.mu.Unlock()
		fs.Outcome = "skipped"
		return fs
	}
	r.inFlight[family] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, family)
		r.mu.Unlock()
	}()

	var since *time.Time
	watermark, ok, err := r.store.Watermark(ctx, family)
	if err != nil {
		fs.Outcome = "failed"
		fs.Error = err.Error()
		log.Error().Err(err).Str("family", string(family)).Msg("watermark lookup failed")
		return fs
	}
	if ok {
		since = &watermark
		fs.Watermark = &watermark
	}

	fetchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := adapter.Fetch(fetchCtx, since)
	if err != nil {
		// Recoverable for this cycle; the family keeps its prior data and
		// the other families continue.
		fs.Outcome = "failed"
		fs.Error = err.Error()
		log.Warn().Err(err).Str("family", string(family)).Msg("source unavailable, skipping family")
		return fs
	}
	fs.Fetched = len(rows)

	accepted, rejected := pipeline.Validate(models.SchemaFor(family), rows)
	fs.Accepted = len(accepted)
	fs.Rejected = len(rejected)
	if len(rejected) > 0 {
		fs.RejectReasons = make(map[models.RejectReason]int)
		for _, rej := range rejected {
			fs.RejectReasons[rej.Reason]++
		}
	}

	inserted, updated, err := r.store.Upsert(ctx, family, accepted)
	fs.Inserted = inserted
	fs.Updated = updated
	if err != nil {
		fs.Outcome = "failed"
		fs.Error = err.Error()
		log.Error().Err(err).Str("family", string(family)).Msg("upsert failed")
		return fs
	}

	log.Info().
		Str("family", string(family)).
		Int("fetched", fs.Fetched).
		Int("accepted", fs.Accepted).
		Int("rejected", fs.Rejected).
		Int("inserted", fs.Inserted).
		Int("updated", fs.Updated).
		Msg("family refreshed")
	return fs
}

// LastCycle returns the most recent cycle's statistics, or nil before the
// first cycle finishes.
func (r *Refresher) LastCycle() *CycleStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	out := *r.last
	out.Families = make(map[models.Family]*FamilyStats, len(r.last.Families))
	for f, fs := range r.last.Families {
		c := *fs
		out.Families[f] = &c
	}
	return &out
}
