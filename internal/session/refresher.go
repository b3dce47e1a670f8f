package session

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// RunRefresher refreshes every live cache each interval until ctx ends.
// Caches whose session record has expired are dropped instead.
func (m *Manager) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.log.WithField("interval", interval.String()).Info("session refresher started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("session refresher stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			m.RefreshAll(runCtx)
			cancel()
		}
	}
}

// RefreshAll runs one refresh round and waits for it, or for ctx to end.
// It returns how many caches were refreshed.
func (m *Manager) RefreshAll(ctx context.Context) int {
	start := time.Now()
	refreshed, dropped, failed := 0, 0, 0

	for _, id := range m.caches.Keys() {
		if _, err := m.store.Load(ctx, id); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				m.caches.Remove(id)
				dropped++
				continue
			}
			m.log.WithError(err).WithField("session_id", id).Warn("session lookup failed")
			failed++
			continue
		}

		c, ok := m.caches.Peek(id)
		if !ok {
			continue
		}
		if err := c.Refresh().Wait(ctx); err != nil {
			failed++
			continue
		}
		refreshed++
	}

	m.log.WithFields(logrus.Fields{
		"refreshed":   refreshed,
		"dropped":     dropped,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("refresh round complete")
	return refreshed
}
