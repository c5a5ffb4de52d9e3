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

	"github.com/cryptofolio/passgate/pkg/ceremony"
)

// UserStore implements ceremony.UserStore and ceremony.CredentialStore over
// the shared SQLite handle.
type UserStore struct {
	store *Store
}

// NewUserStore creates a user and credential store on top of an open Store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{store: store}
}

// GetByHandle retrieves a user by handle.
func (s *UserStore) GetByHandle(ctx context.Context, handle string) (*ceremony.User, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT id, handle, created_at FROM users WHERE handle = ?`, handle)
	return scanUser(row)
}

// GetByID retrieves a user by identifier.
func (s *UserStore) GetByID(ctx context.Context, id string) (*ceremony.User, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT id, handle, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Create persists a new user and its first credential in one transaction.
func (s *UserStore) Create(ctx context.Context, user *ceremony.User, cred *ceremony.Credential) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, handle, created_at) VALUES (?, ?, ?)`,
		user.ID, user.Handle, toMillis(user.CreatedAt))
	if isUniqueViolation(err) {
		return ceremony.ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	if err := insertCredential(ctx, tx, cred); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByUser retrieves all credentials owned by a user.
func (s *UserStore) GetByUser(ctx context.Context, userID string) ([]*ceremony.Credential, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT id, user_id, public_key, attestation_type, transports, flags, aaguid, sign_count, created_at, last_used_at
		 FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*ceremony.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	if creds == nil {
		creds = []*ceremony.Credential{}
	}
	return creds, nil
}

// Get retrieves a credential by its raw ID bytes.
func (s *UserStore) Get(ctx context.Context, credID []byte) (*ceremony.Credential, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT id, user_id, public_key, attestation_type, transports, flags, aaguid, sign_count, created_at, last_used_at
		 FROM credentials WHERE id = ?`, credID)

	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ceremony.ErrCredentialNotFound
	}
	return cred, err
}

// Add registers an additional credential for an existing user.
func (s *UserStore) Add(ctx context.Context, cred *ceremony.Credential) error {
	var exists int
	err := s.store.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ?`, cred.UserID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ceremony.ErrUnknownIdentity
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}

	return insertCredential(ctx, s.store.db, cred)
}

// UpdateCounter performs a compare-and-set on the signature counter.
func (s *UserStore) UpdateCounter(ctx context.Context, credID []byte, prev, next uint32, usedAt time.Time) error {
	res, err := s.store.db.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ? WHERE id = ? AND sign_count = ?`,
		next, toMillis(usedAt), credID, prev)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a lost compare-and-set from a missing credential.
	var exists int
	err = s.store.db.QueryRowContext(ctx,
		`SELECT 1 FROM credentials WHERE id = ?`, credID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ceremony.ErrCredentialNotFound
	}
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	return ceremony.ErrCounterConflict
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCredential(ctx context.Context, db execContexter, cred *ceremony.Credential) error {
	transports, err := json.Marshal(cred.Transports)
	if err != nil {
		return fmt.Errorf("encode transports: %w", err)
	}
	flags, err := json.Marshal(cred.Flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}

	var lastUsed int64
	if !cred.LastUsedAt.IsZero() {
		lastUsed = toMillis(cred.LastUsedAt)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, public_key, attestation_type, transports, flags, aaguid, sign_count, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.PublicKey, cred.AttestationType,
		string(transports), string(flags), cred.AAGUID, cred.SignCount,
		toMillis(cred.CreatedAt), lastUsed)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*ceremony.User, error) {
	var user ceremony.User
	var createdAt int64

	err := row.Scan(&user.ID, &user.Handle, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ceremony.ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

func scanCredential(row rowScanner) (*ceremony.Credential, error) {
	var cred ceremony.Credential
	var transports, flags string
	var createdAt, lastUsed int64

	err := row.Scan(&cred.ID, &cred.UserID, &cred.PublicKey, &cred.AttestationType,
		&transports, &flags, &cred.AAGUID, &cred.SignCount, &createdAt, &lastUsed)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(transports), &cred.Transports); err != nil {
		return nil, fmt.Errorf("decode transports: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &cred.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}

	cred.CreatedAt = fromMillis(createdAt)
	if lastUsed != 0 {
		cred.LastUsedAt = fromMillis(lastUsed)
	}
	return &cred, nil
}
