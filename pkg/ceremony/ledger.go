// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"context"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

type ledgerEntry struct {
	data      *webauthn.SessionData
	expiresAt time.Time
}

// MemoryLedger is an in-memory ChallengeLedger. Entries expire lazily on
// Take and eagerly through the cleanup routine. Suitable for a single
// serving instance; multi-instance deployments should use the Redis ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[ChallengeKey]ledgerEntry
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[ChallengeKey]ledgerEntry),
		now:     time.Now,
	}
}

// Put stores session data for a pending ceremony, replacing any prior entry
// for the same key.
func (l *MemoryLedger) Put(_ context.Context, key ChallengeKey, data *webauthn.SessionData, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = ledgerEntry{
		data:      data,
		expiresAt: l.now().Add(ttl),
	}
	return nil
}

// Take atomically removes and returns the pending session data.
func (l *MemoryLedger) Take(_ context.Context, key ChallengeKey) (*webauthn.SessionData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return nil, ErrChallengeExpiredOrMissing
	}
	delete(l.entries, key)

	if l.now().After(entry.expiresAt) {
		return nil, ErrChallengeExpiredOrMissing
	}
	return entry.data, nil
}

// Len reports the number of live and expired entries currently held.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup removes expired entries and returns how many were removed.
func (l *MemoryLedger) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.entries {
		if now.After(entry.expiresAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine sweeps expired entries on the given interval until the
// context is cancelled.
func (l *MemoryLedger) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}
