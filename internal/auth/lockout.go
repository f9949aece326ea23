// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package auth

import (
	"sync"
	"time"

	"github.com/tmachen/gridwatch/internal/config"
	"github.com/tmachen/gridwatch/internal/logging"
)

// lockoutEntry tracks recent failures for one username.
type lockoutEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

// LockoutManager blocks logins for a username after too many failures within
// a sliding window. State is in-memory; a restart resets all lockouts, which
// is acceptable because the threat is online guessing.
type LockoutManager struct {
	mu        sync.Mutex
	entries   map[string]*lockoutEntry
	threshold int
	window    time.Duration
	duration  time.Duration

	now func() time.Time // test hook
}

// NewLockoutManager builds a manager from the security config.
func NewLockoutManager(cfg *config.SecurityConfig) *LockoutManager {
	return &LockoutManager{
		entries:   make(map[string]*lockoutEntry),
		threshold: cfg.LockoutThreshold,
		window:    cfg.LockoutWindow,
		duration:  cfg.LockoutDuration,
		now:       time.Now,
	}
}

// IsLocked reports whether username is currently locked out, and for how
// much longer.
func (m *LockoutManager) IsLocked(username string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[username]
	if !ok {
		return false, 0
	}
	now := m.now()
	if now.Before(entry.lockedUntil) {
		return true, entry.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure registers a failed login. When failures within the window
// reach the threshold the account locks and the failure history resets.
// Returns true when this failure triggered a lockout.
func (m *LockoutManager) RecordFailure(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[username]
	if !ok {
		entry = &lockoutEntry{}
		m.entries[username] = entry
	}

	// Drop failures that fell out of the window
	cutoff := now.Add(-m.window)
	kept := entry.failures[:0]
	for _, t := range entry.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	entry.failures = append(kept, now)

	if len(entry.failures) >= m.threshold {
		entry.lockedUntil = now.Add(m.duration)
		entry.failures = nil
		logging.Warn().Str("username", username).
			Dur("duration", m.duration).
			Msg("Account locked after repeated login failures")
		return true
	}
	return false
}

// RecordSuccess clears the failure history for username.
func (m *LockoutManager) RecordSuccess(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, username)
}
