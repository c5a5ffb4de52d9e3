// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/cryptofolio/passgate/pkg/ceremony"
)

// ChallengeLedger implements ceremony.ChallengeLedger over the shared SQLite
// handle. Take runs a select-then-delete in one transaction so a challenge
// is consumed exactly once even with concurrent verify attempts.
type ChallengeLedger struct {
	store *Store
}

// NewChallengeLedger creates a challenge ledger on top of an open Store.
func NewChallengeLedger(store *Store) *ChallengeLedger {
	return &ChallengeLedger{store: store}
}

// Put stores session data for a pending ceremony, replacing any prior entry
// for the same key.
func (l *ChallengeLedger) Put(ctx context.Context, key ceremony.ChallengeKey, data *webauthn.SessionData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}

	_, err = l.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO challenges (handle, kind, data, expires_at) VALUES (?, ?, ?, ?)`,
		key.Handle, string(key.Kind), payload, toMillis(l.store.now().Add(ttl)))
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// Take atomically removes and returns the pending session data.
func (l *ChallengeLedger) Take(ctx context.Context, key ceremony.ChallengeKey) (*webauthn.SessionData, error) {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT data, expires_at FROM challenges WHERE handle = ? AND kind = ?`,
		key.Handle, string(key.Kind)).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ceremony.ErrChallengeExpiredOrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM challenges WHERE handle = ? AND kind = ?`,
		key.Handle, string(key.Kind)); err != nil {
		return nil, fmt.Errorf("delete challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if l.store.now().After(fromMillis(expiresAt)) {
		return nil, ceremony.ErrChallengeExpiredOrMissing
	}

	var data webauthn.SessionData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("decode session data: %w", err)
	}
	return &data, nil
}

// Cleanup removes expired challenges and returns how many were removed.
func (l *ChallengeLedger) Cleanup(ctx context.Context) (int64, error) {
	res, err := l.store.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE expires_at < ?`, toMillis(l.store.now()))
	if err != nil {
		return 0, fmt.Errorf("cleanup challenges: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupRoutine sweeps expired challenges on the given interval until
// the context is cancelled.
func (l *ChallengeLedger) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = l.Cleanup(ctx)
			}
		}
	}()
}
