package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:")
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore_AppendTrimsToMaxEntries(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Append(ctx, "room:r1:messages", []byte(v), 3))
	}

	list, err := mr.List("test:room:r1:messages")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, list)
}

func TestRedisStore_AppendRejectsNonPositiveMax(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Append(context.Background(), "k", []byte("v"), 0)
	assert.Error(t, err)
}

func TestRedisStore_ListReturnsMostRecentOldestFirst(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, store.Append(ctx, "h", []byte(v), 10))
	}

	recent, err := store.List(ctx, "h", 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("4"), []byte("5")}, recent)

	all, err := store.List(ctx, "h", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	missing, err := store.List(ctx, "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRedisStore_SetGetAndExpiry(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "presence:u1", []byte(`{"status":"online"}`), time.Minute))

	got, err := store.Get(ctx, "presence:u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"online"}`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("test:presence:u1"))

	mr.FastForward(61 * time.Second)

	_, err = store.Get(ctx, "presence:u1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_GetMiss(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_ErrorsWhenServerDown(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	err := store.Set(context.Background(), "k", []byte("v"), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", "p:")
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))

	_, err = NewRedisStore(context.Background(), "not-a-url", "p:")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "room:r1:messages", RoomHistoryKey("r1"))
	assert.Equal(t, "presence:u1", PresenceKey("u1"))
}
