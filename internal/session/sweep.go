package session

import (
	"context"
	"log"
	"time"

	"booklisting/internal/wizard"
)

const DefaultSweepInterval = 5 * time.Minute

// StartSweeper expires idle sessions every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go m.sweepLoop(ctx, interval)
}

func (m *Manager) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Printf("expired %d idle wizard sessions", n)
			}
		}
	}
}

// Sweep drops sessions idle longer than the idle timeout and releases their
// staged images. Sessions with a submission in flight are skipped. The
// redis snapshot is kept so the session can be resumed later.
func (m *Manager) Sweep() int {
	cutoff := m.now().UTC().Add(-m.idle)

	m.mu.Lock()
	candidates := make([]*session, 0)
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.Unlock()

	expired := 0
	for _, s := range candidates {
		if !s.mu.TryLock() {
			continue
		}
		if !s.closed && s.machine.Phase() != wizard.PhaseSubmitting && s.lastSeen.Before(cutoff) {
			if err := m.close(s); err != nil {
				log.Printf("session %s expire failed: %v", s.info.ID, err)
			} else {
				debugLog("session %s expired after %s idle", s.info.ID, m.idle)
				expired++
			}
		}
		s.mu.Unlock()
	}
	return expired
}

// ListenInvalidations drops local copies of sessions discarded elsewhere.
func (m *Manager) ListenInvalidations(ctx context.Context) {
	m.cache.startListener(ctx, func(msg invalidateMessage) {
		m.mu.Lock()
		s, ok := m.sessions[msg.SessionID]
		m.mu.Unlock()
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if err := m.close(s); err != nil {
			debugLog("session %s invalidation skipped: %v", msg.SessionID, err)
		}
	})
}
