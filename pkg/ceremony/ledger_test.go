// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionData(challenge string) *webauthn.SessionData {
	return &webauthn.SessionData{
		Challenge: challenge,
		UserID:    []byte("user-1"),
		Expires:   time.Now().Add(2 * time.Minute),
	}
}

func TestMemoryLedger_PutTake(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	key := ChallengeKey{Handle: "alice", Kind: KindRegister}

	require.NoError(t, ledger.Put(ctx, key, testSessionData("c1"), time.Minute))

	data, err := ledger.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "c1", data.Challenge)

	// Consumed on first take.
	_, err = ledger.Take(ctx, key)
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
}

func TestMemoryLedger_TakeMissing(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, err := ledger.Take(ctx, ChallengeKey{Handle: "nobody", Kind: KindAuthenticate})
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
}

func TestMemoryLedger_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	key := ChallengeKey{Handle: "alice", Kind: KindAuthenticate}

	require.NoError(t, ledger.Put(ctx, key, testSessionData("old"), time.Minute))
	require.NoError(t, ledger.Put(ctx, key, testSessionData("new"), time.Minute))
	assert.Equal(t, 1, ledger.Len())

	data, err := ledger.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "new", data.Challenge)
}

func TestMemoryLedger_KindsAreSeparate(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	regKey := ChallengeKey{Handle: "alice", Kind: KindRegister}
	loginKey := ChallengeKey{Handle: "alice", Kind: KindAuthenticate}

	require.NoError(t, ledger.Put(ctx, regKey, testSessionData("reg"), time.Minute))
	require.NoError(t, ledger.Put(ctx, loginKey, testSessionData("login"), time.Minute))
	assert.Equal(t, 2, ledger.Len())

	data, err := ledger.Take(ctx, regKey)
	require.NoError(t, err)
	assert.Equal(t, "reg", data.Challenge)

	data, err = ledger.Take(ctx, loginKey)
	require.NoError(t, err)
	assert.Equal(t, "login", data.Challenge)
}

func TestMemoryLedger_ExpiredEntryIsGone(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	key := ChallengeKey{Handle: "alice", Kind: KindRegister}

	require.NoError(t, ledger.Put(ctx, key, testSessionData("c1"), time.Minute))

	ledger.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := ledger.Take(ctx, key)
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)

	// The expired entry was removed by the failed take.
	assert.Equal(t, 0, ledger.Len())
}

func TestMemoryLedger_Cleanup(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	require.NoError(t, ledger.Put(ctx, ChallengeKey{Handle: "a", Kind: KindRegister}, testSessionData("a"), time.Millisecond))
	require.NoError(t, ledger.Put(ctx, ChallengeKey{Handle: "b", Kind: KindRegister}, testSessionData("b"), time.Hour))

	ledger.now = func() time.Time { return time.Now().Add(time.Minute) }

	removed := ledger.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, ledger.Len())
}
