package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	adapter, err := NewRedisAdapter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter, mr
}

func TestRedisAdapter_GetSet(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	err := adapter.Set(ctx, "test_key", []byte("test_value"), 10*time.Second)
	assert.NoError(t, err)

	value, err := adapter.Get(ctx, "test_key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("test_value"), value)
}

func TestRedisAdapter_GetNotFound(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	_, err := adapter.Get(context.Background(), "non_existent_key")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "key not found")
}

func TestRedisAdapter_MGet(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, adapter.Set(ctx, "c", []byte("3"), 0))

	values, err := adapter.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("1"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, []byte("3"), values[2])
}

func TestRedisAdapter_Delete(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "delete_test", []byte("value"), 0))
	assert.NoError(t, adapter.Delete(ctx, "delete_test"))

	_, err := adapter.Get(ctx, "delete_test")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisAdapter_TTL(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "ttl_test", []byte("expires_soon"), 1*time.Second))

	_, err := adapter.Get(ctx, "ttl_test")
	assert.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = adapter.Get(ctx, "ttl_test")
	assert.Error(t, err)
}

func TestRedisAdapter_Sets(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.AddMember(ctx, "codes", "A"))
	require.NoError(t, adapter.AddMember(ctx, "codes", "B"))
	require.NoError(t, adapter.RemoveMember(ctx, "codes", "A"))

	members, err := adapter.Members(ctx, "codes")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, members)
}

func TestRedisAdapter_Append(t *testing.T) {
	adapter, mr := newTestAdapter(t)

	id, err := adapter.Append(context.Background(), "events", map[string]any{"type": "submitted"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := mr.Stream("events")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"type", "submitted"}, entries[0].Values)
}

func TestRedisAdapter_Update_Commits(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	err := adapter.Update(ctx, func(tx Txn) error {
		_, err := tx.Get("counter")
		assert.ErrorIs(t, err, ErrNotFound)

		tx.Set("counter", []byte("1"))
		tx.AddRanked("ranked", 2, "second")
		tx.AddRanked("ranked", 1, "first")
		tx.AddMember("seen", "x")
		return nil
	}, "counter")
	require.NoError(t, err)

	value, err := adapter.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	asc, err := adapter.Ranked(ctx, "ranked", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, asc)

	desc, err := adapter.Ranked(ctx, "ranked", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, desc)

	err = adapter.Update(ctx, func(tx Txn) error {
		ok, err := tx.IsMember("seen", "x")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestRedisAdapter_Update_FnErrorDiscardsWrites(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := adapter.Update(ctx, func(tx Txn) error {
		tx.Set("never", []byte("written"))
		return boom
	}, "never")
	assert.ErrorIs(t, err, boom)

	_, err = adapter.Get(ctx, "never")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisAdapter_Update_ConflictOnConcurrentWrite(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "status", []byte("PENDING"), 0))

	err := adapter.Update(ctx, func(tx Txn) error {
		current, err := tx.Get("status")
		require.NoError(t, err)
		assert.Equal(t, []byte("PENDING"), current)

		// another writer wins the race between WATCH and EXEC
		require.NoError(t, adapter.Set(ctx, "status", []byte("REJECTED"), 0))

		tx.Set("status", []byte("APPROVED"))
		return nil
	}, "status")
	assert.ErrorIs(t, err, ErrConflict)

	value, err := adapter.Get(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, []byte("REJECTED"), value)
}

func TestRedisAdapter_Ping(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	assert.NoError(t, adapter.Ping(context.Background()))
}

func TestRedisAdapter_InvalidURL(t *testing.T) {
	_, err := NewRedisAdapter("invalid://url")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}
