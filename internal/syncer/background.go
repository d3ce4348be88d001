package syncer

import (
	"context"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// TickerFactory produces a tick channel and its stop function. Injected so
// tests drive ticks manually.
type TickerFactory func(interval time.Duration) (<-chan time.Time, func())

func realTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

type backgroundSync struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// enabledSyncTypes maps a session config to the operation names it allows.
// Conversations and private messages are both direct-message surfaces and
// share the one toggle.
func enabledSyncTypes(cfg platform.SyncConfig) map[string]bool {
	return map[string]bool{
		"comments":         cfg.Comments,
		"mentions":         cfg.Mentions,
		"conversations":    cfg.DirectMessages,
		"private_messages": cfg.DirectMessages,
		"notifications":    cfg.Notifications,
	}
}

// StartBackground starts a sync session: one loop per enabled platform,
// all sharing the session's interval and sync-type toggles.
func (m *Manager) StartBackground(ctx context.Context, cfg platform.SyncConfig) {
	for p, enabled := range cfg.EnabledPlatforms {
		if enabled {
			m.StartBackgroundSync(ctx, p, cfg)
		}
	}
}

// StartBackgroundSync runs a periodic sync loop for one platform, fetching
// only the sync types the config enables. Starting a platform that is
// already running restarts its loop, so exactly one exists per platform at
// any moment.
func (m *Manager) StartBackgroundSync(ctx context.Context, p platform.Type, cfg platform.SyncConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	allowed := enabledSyncTypes(cfg)

	m.mu.Lock()
	// The wait happens outside the lock, so another Start may install a
	// fresh loop in the meantime. Re-check until the slot is empty; the
	// install below stays inside the same critical section as the last
	// check, so exactly one loop survives concurrent restarts.
	for {
		prev, ok := m.background[p]
		if !ok {
			break
		}
		delete(m.background, p)
		m.mu.Unlock()
		prev.cancel()
		<-prev.done
		m.mu.Lock()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	bs := &backgroundSync{cancel: cancel, done: make(chan struct{})}
	m.background[p] = bs
	m.mu.Unlock()

	ticks, stop := m.newTicker(interval)

	go func() {
		defer close(bs.done)
		defer stop()

		m.logger.WithFields(logging.Fields{
			"platform": p,
			"interval": interval.String(),
		}).Info("Background sync started")

		for {
			select {
			case <-loopCtx.Done():
				m.logger.WithFields(logging.Fields{"platform": p}).Info("Background sync stopped")
				return
			case <-ticks:
				report := m.syncPlatform(loopCtx, p, allowed)
				if len(report.Errors) > 0 {
					m.logger.WithFields(logging.Fields{
						"platform": p,
						"errors":   len(report.Errors),
					}).Warn("Background sync round had failures")
				}
			}
		}
	}()
}

// StopBackgroundSync stops one platform's loop and waits for it to exit.
// Stopping a platform that is not running is a no-op.
func (m *Manager) StopBackgroundSync(p platform.Type) {
	m.mu.Lock()
	bs, ok := m.background[p]
	if ok {
		delete(m.background, p)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	bs.cancel()
	<-bs.done
}

// StopAll stops every background loop, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	running := make([]*backgroundSync, 0, len(m.background))
	for p, bs := range m.background {
		running = append(running, bs)
		delete(m.background, p)
	}
	m.mu.Unlock()

	for _, bs := range running {
		bs.cancel()
		<-bs.done
	}
}

// BackgroundRunning reports whether a loop is active for the platform.
func (m *Manager) BackgroundRunning(p platform.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.background[p]
	return ok
}
