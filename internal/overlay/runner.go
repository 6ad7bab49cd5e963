package overlay

import (
	"context"
	"time"
)

// datasetCheckInterval is how often the maintenance loop looks for a new
// aurora dataset between geometry recomputes.
const datasetCheckInterval = 10 * time.Second

// Start runs the maintenance loop: an immediate geometry compute, then
// geometry regeneration on the configured cadence and raster rebuilds
// whenever the aurora store holds a dataset newer than the installed
// generation.
//
// All builds happen on this goroutine. A dataset that arrives mid-build is
// picked up by the next check because the comparison is always against the
// store's current contents, never against a queued snapshot. Blocks until
// ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	if err := e.RecomputeGeometry(time.Now()); err != nil {
		e.logger.Error("initial geometry compute failed", "error", err)
	}
	e.rebuildIfStale()

	geomTicker := time.NewTicker(e.config.GeometryInterval)
	defer geomTicker.Stop()
	dsTicker := time.NewTicker(datasetCheckInterval)
	defer dsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("overlay engine stopped")
			return
		case t := <-geomTicker.C:
			if err := e.RecomputeGeometry(t); err != nil {
				e.logger.Warn("geometry recompute failed", "error", err)
			}
		case <-dsTicker.C:
			e.rebuildIfStale()
		}
	}
}

// rebuildIfStale rebuilds the raster when the store's dataset is newer than
// the installed generation.
func (e *Engine) rebuildIfStale() {
	ds := e.store.Get()
	if ds == nil {
		return
	}
	if current := e.aurora.Load(); current != nil && current.DatasetFetchedAt.Equal(ds.FetchedAt) {
		return
	}
	if err := e.RebuildAurora(ds); err != nil {
		e.logger.Warn("aurora raster rebuild failed", "error", err)
	}
}
