// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package server

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofolio/passgate/internal/config"
)

func TestNew_MemoryBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	s, err := New(cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, s.RESTServer())

	assert.Nil(t, s.sqliteStore)
	assert.Nil(t, s.redisClient)

	require.NoError(t, s.Shutdown())
	s.WaitForShutdown()
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "passgate.db")
	cfg.Storage.Ephemeral.Backend = "sqlite"
	require.NoError(t, cfg.Validate())

	s, err := New(cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, s.sqliteStore)

	require.NoError(t, s.Shutdown())
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Ephemeral.Backend = "redis"
	cfg.Storage.Ephemeral.RedisAddr = mr.Addr()
	require.NoError(t, cfg.Validate())

	s, err := New(cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, s.redisClient)

	require.NoError(t, s.Shutdown())
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Ephemeral.Backend = "redis"
	cfg.Storage.Ephemeral.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNew_JWTConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.JWT.Enabled = true
	cfg.JWT.Secret = "test-secret-test-secret-test-1234"
	require.NoError(t, cfg.Validate())

	s, err := New(cfg, "test")
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())
}
