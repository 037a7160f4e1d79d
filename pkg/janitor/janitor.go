// Package janitor removes content entries once they exceed their
// retention age. Entries live for a day; a background loop sweeps the
// store twice an hour.
package janitor

import (
	"context"
	"time"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/metrics"
	"github.com/speexx/guetzli-service/pkg/store"
)

// DefaultMaxAge is how long an entry is retained after it was stored.
const DefaultMaxAge = 24 * time.Hour

// DefaultInterval is the sweep cadence.
const DefaultInterval = 30 * time.Minute

// sweepOffset shifts each sweep a few seconds past the interval
// boundary so it never races clients that align work to the full and
// half hour.
const sweepOffset = 11 * time.Second

// Janitor sweeps a store for expired entries.
type Janitor struct {
	store    *store.Store
	maxAge   time.Duration
	interval time.Duration

	now func() time.Time
}

// New creates a Janitor. Zero maxAge or interval select the defaults.
func New(st *store.Store, maxAge, interval time.Duration) *Janitor {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		store:    st,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on the configured cadence until the context is cancelled.
// Sweeps fire at interval boundaries of the wall clock, offset by a few
// seconds, not at a fixed delay from startup.
func (j *Janitor) Run(ctx context.Context) {
	logger.Info("janitor started",
		"max_age", j.maxAge.String(),
		"interval", j.interval.String(),
	)
	for {
		next := j.nextRun(j.now())
		timer := time.NewTimer(next.Sub(j.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("janitor stopped")
			return
		case <-timer.C:
		}
		j.Sweep()
	}
}

// nextRun returns the first sweep instant strictly after now: the next
// interval boundary of the wall clock plus the sweep offset.
func (j *Janitor) nextRun(now time.Time) time.Time {
	next := now.Truncate(j.interval).Add(sweepOffset)
	for !next.After(now) {
		next = next.Add(j.interval)
	}
	return next
}

// Sweep deletes every entry older than the retention age. Entries whose
// metadata cannot be read are logged and left alone; a damaged record
// must not silently take its files with it.
func (j *Janitor) Sweep() {
	ids, err := j.store.List()
	if err != nil {
		logger.Error("janitor cannot list entries", "error", err)
		return
	}

	cutoff := j.now().Add(-j.maxAge)
	var deleted int
	for _, id := range ids {
		meta, err := j.store.ReadMeta(id)
		if err != nil {
			logger.Warn("janitor skips entry", "content_id", id, "error", err)
			continue
		}
		if meta.StoredAt.After(cutoff) {
			continue
		}
		if err := j.store.Delete(id); err != nil {
			logger.Warn("janitor cannot delete entry", "content_id", id, "error", err)
			continue
		}
		metrics.JanitorDeletedTotal.Inc()
		deleted++
		logger.Info("janitor deleted expired entry",
			"content_id", id,
			"stored_at", meta.StoredAt.Format(time.RFC3339),
		)
	}
	if deleted > 0 {
		logger.Info("janitor sweep done", "deleted", deleted, "scanned", len(ids))
	}
}
