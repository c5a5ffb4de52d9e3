// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// RedisLedger is a ChallengeLedger backed by Redis. Expiry is delegated to
// Redis key TTLs and single-use consumption relies on GETDEL, so any number
// of serving instances can share one ledger.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger creates a ledger on top of an existing Redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "passgate:challenge:",
	}
}

// Put stores session data under the ceremony key with the given TTL,
// replacing any prior entry.
func (l *RedisLedger) Put(ctx context.Context, key ChallengeKey, data *webauthn.SessionData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	if err := l.client.Set(ctx, l.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Take atomically removes and returns the pending session data.
func (l *RedisLedger) Take(ctx context.Context, key ChallengeKey) (*webauthn.SessionData, error) {
	payload, err := l.client.GetDel(ctx, l.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChallengeExpiredOrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}

	var data webauthn.SessionData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return &data, nil
}

func (l *RedisLedger) key(key ChallengeKey) string {
	return l.prefix + string(key.Kind) + ":" + key.Handle
}
