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
	"errors"
	"fmt"
	"time"

	"github.com/cryptofolio/passgate/pkg/session"
)

// SessionStore implements session.Store over the shared SQLite handle.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a session store on top of an open Store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Put persists a session.
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	_, err := s.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (token, user_id, handle, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.Handle,
		toMillis(sess.CreatedAt), toMillis(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by token.
func (s *SessionStore) Get(ctx context.Context, token string) (*session.Session, error) {
	var sess session.Session
	var createdAt, expiresAt int64

	err := s.store.db.QueryRowContext(ctx,
		`SELECT token, user_id, handle, created_at, expires_at FROM sessions WHERE token = ?`,
		token).Scan(&sess.Token, &sess.UserID, &sess.Handle, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.CreatedAt = fromMillis(createdAt)
	sess.ExpiresAt = fromMillis(expiresAt)
	return &sess, nil
}

// Delete removes a session by token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions and returns how many were removed.
func (s *SessionStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.store.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, toMillis(s.store.now()))
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupRoutine sweeps expired sessions on the given interval until
// the context is cancelled.
func (s *SessionStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Cleanup(ctx)
			}
		}
	}()
}
