// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker()

	results := c.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, StatusHealthy, results[0].Status)
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestChecker_PingChecks(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("database", PingCheck("database", func(ctx context.Context) error {
		return nil
	}))
	c.RegisterCheck("redis", PingCheck("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	results := c.Ready(context.Background())
	require.Len(t, results, 2)
	assert.False(t, c.IsHealthy(context.Background()))
	assert.Equal(t, StatusUnhealthy, AggregateStatus(results))

	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusHealthy, byName["database"].Status)
	assert.Equal(t, StatusUnhealthy, byName["redis"].Status)
	assert.Equal(t, "connection refused", byName["redis"].Error)
}

func TestChecker_ReplaceCheck(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("database", PingCheck("database", func(ctx context.Context) error {
		return errors.New("down")
	}))
	require.False(t, c.IsHealthy(context.Background()))

	c.RegisterCheck("database", PingCheck("database", func(ctx context.Context) error {
		return nil
	}))
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestAggregateStatus_Empty(t *testing.T) {
	assert.Equal(t, StatusHealthy, AggregateStatus(nil))
}
