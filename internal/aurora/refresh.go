package aurora

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grayline/grayline/internal/metrics"
)

// Refresh performs one fetch-parse-install cycle: download the current
// OVATION document, parse it, publish it to the store and persist the raw
// bytes to the disk cache. Fetch operations are serialized through the
// store's mutex so concurrent refresh triggers cannot race.
func Refresh(ctx context.Context, fetcher *Fetcher, store *Store, cache *Cache, logger *slog.Logger) (*Dataset, error) {
	store.Lock()
	defer store.Unlock()

	data, err := fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncAuroraFetch("error")
		return nil, fmt.Errorf("aurora refresh: %w", err)
	}

	ds, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		metrics.IncAuroraFetch("error")
		return nil, fmt.Errorf("aurora refresh: %w", err)
	}
	ds.Source = fetcher.SourceURL()
	ds.FetchedAt = time.Now().UTC()

	store.Set(ds)
	metrics.IncAuroraFetch("success")
	metrics.SetAuroraSampleCount(len(ds.Samples))

	if cache != nil {
		if err := cache.Write(data, ds.FetchedAt); err != nil {
			logger.Warn("failed to persist aurora cache", "error", err)
		}
	}

	logger.Info("aurora dataset refreshed",
		"samples", len(ds.Samples),
		"observation_time", ds.ObservationTime.Format(time.RFC3339),
		"forecast_time", ds.ForecastTime.Format(time.RFC3339),
	)

	return ds, nil
}

// Poll refreshes immediately, then on the given interval until ctx is
// cancelled. The SWPC product updates roughly every ten minutes; a failed
// cycle is logged and retried on the next tick.
func Poll(ctx context.Context, interval time.Duration, fetcher *Fetcher, store *Store, cache *Cache, logger *slog.Logger) {
	if _, err := Refresh(ctx, fetcher, store, cache, logger); err != nil {
		logger.Warn("initial aurora fetch failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("aurora poller stopped")
			return
		case <-ticker.C:
			if _, err := Refresh(ctx, fetcher, store, cache, logger); err != nil {
				logger.Warn("aurora fetch failed", "error", err)
			}
		}
	}
}
