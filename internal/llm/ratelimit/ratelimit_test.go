package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterEnforcesConcurrency(t *testing.T) {
	l := New(0, 0, 1)
	ctx := context.Background()

	release1, err := l.Acquire(ctx, 10)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx2, 10)
	assert.Error(t, err, "second acquire should block until release and then time out")

	release1()
}

func TestLimiterRespectsTokenBudget(t *testing.T) {
	l := New(0, 100, 4)
	ctx := context.Background()

	release, err := l.Acquire(ctx, 90)
	require.NoError(t, err)
	release()

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx2, 50)
	assert.Error(t, err, "token budget should not have refilled enough yet")
}
