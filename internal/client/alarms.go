// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package client

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// watcherPollInterval is how often the watcher compares timestamps. The
// stream updates lastUpdate asynchronously; polling decouples fetch timing
// from message arrival.
const watcherPollInterval = 250 * time.Millisecond

// AlarmWatcher refetches the alarm list when the stream signals a change.
// It is debounce-by-comparison: a refetch happens only when the stream's
// lastUpdate is newer than the watcher's own last fetch and no fetch is in
// flight, so one change triggers exactly one fetch. The stream never
// carries alarm content; REST stays the source of truth.
type AlarmWatcher struct {
	stream *Stream
	client *Client
	cache  *Cache

	// limiter bounds fetch frequency under alarm storms.
	limiter *rate.Limiter

	mu        sync.Mutex
	lastFetch time.Time
	fetching  bool

	// onAlarms receives every successful fetch result.
	onAlarms func([]*models.Alarm)
}

// NewAlarmWatcher wires a watcher. onAlarms may be nil when callers poll
// the cache instead.
func NewAlarmWatcher(stream *Stream, client *Client, cache *Cache, onAlarms func([]*models.Alarm)) *AlarmWatcher {
	return &AlarmWatcher{
		stream:   stream,
		client:   client,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		onAlarms: onAlarms,
	}
}

// Run polls until ctx is canceled. Implements suture.Service.
func (w *AlarmWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(watcherPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check performs one debounce comparison and, when due, one fetch.
func (w *AlarmWatcher) Check(ctx context.Context) {
	snapshot := w.stream.Snapshot()

	w.mu.Lock()
	due := !snapshot.LastUpdate.IsZero() &&
		snapshot.LastUpdate.After(w.lastFetch) &&
		!w.fetching
	if due {
		if !w.limiter.Allow() {
			due = false
		} else {
			w.fetching = true
			// Claim the update before fetching so a second Check during the
			// fetch does not double-trigger
			w.lastFetch = snapshot.LastUpdate
		}
	}
	w.mu.Unlock()

	if !due {
		return
	}

	alarms, err := w.client.ListAlarms(ctx)

	w.mu.Lock()
	w.fetching = false
	if err != nil {
		// Roll back so the next Check retries this update
		w.lastFetch = time.Time{}
	}
	w.mu.Unlock()

	if err != nil {
		logging.Error().Err(err).Msg("Alarm refetch failed")
		return
	}

	if err := w.cache.SaveAlarms(alarms); err != nil {
		logging.Error().Err(err).Msg("Failed to cache alarms")
	}
	if w.onAlarms != nil {
		w.onAlarms(alarms)
	}
}
