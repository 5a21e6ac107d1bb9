package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPool_Empty(t *testing.T) {
	_, err := NewPool(nil)
	require.Error(t, err)
}

func TestPool_GetReturn(t *testing.T) {
	a, b := newFakeDynamo(), newFakeDynamo()
	pool, err := NewPool([]API{a, b})
	require.NoError(t, err)
	require.Equal(t, 2, pool.Size())

	ctx := context.Background()
	first, err := pool.Get(ctx)
	require.NoError(t, err)
	second, err := pool.Get(ctx)
	require.NoError(t, err)
	require.Same(t, a, first)
	require.Same(t, b, second)
	require.Equal(t, 0, pool.Idle())

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = pool.Get(timeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Return(first)
	pool.Return(second)
	pool.Return(first)
	pool.Return(nil)
	require.Equal(t, 2, pool.Idle())
}

func TestClient_WithConnReturnsOnError(t *testing.T) {
	client, fake := newTestClient(t)
	fake.err = context.Canceled

	_, err := client.ColumnFamily("users").Get(context.Background(), "u1", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, client.pool.Size(), client.pool.Idle())
}
