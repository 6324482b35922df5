package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

// 两种实现共享同一组行为用例
func kvImplementations(t *testing.T) map[string]KV {
	_, rkv := setupRedisKV(t)
	return map[string]KV{
		"redis":  rkv,
		"memory": NewMemoryKV(),
	}
}

func TestKV_GetSetDelete(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := kv.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrMiss))

			require.NoError(t, kv.Set(ctx, "k", "v"))
			got, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)

			ok, err := kv.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, kv.Delete(ctx, "k"))
			ok, err = kv.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestKV_Hash(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := kv.HGet(ctx, "h", "1")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, kv.HSet(ctx, "h", "1", "a"))
			require.NoError(t, kv.HSet(ctx, "h", "2", "b"))
			require.NoError(t, kv.HSet(ctx, "h", "1", "c"))

			v, err := kv.HGet(ctx, "h", "1")
			require.NoError(t, err)
			assert.Equal(t, "c", v)

			all, err := kv.HGetAll(ctx, "h")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"1": "c", "2": "b"}, all)

			require.NoError(t, kv.HDel(ctx, "h", "1"))
			all, err = kv.HGetAll(ctx, "h")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"2": "b"}, all)

			empty, err := kv.HGetAll(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestKV_List(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, kv.ListPush(ctx, "l", "a", "b", "c"))
			all, err := kv.ListRange(ctx, "l", 0, -1)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, all)

			head, err := kv.ListPop(ctx, "l")
			require.NoError(t, err)
			assert.Equal(t, "a", head)

			tail, err := kv.ListRange(ctx, "l", -1, -1)
			require.NoError(t, err)
			assert.Equal(t, []string{"c"}, tail)

			_, _ = kv.ListPop(ctx, "l")
			_, _ = kv.ListPop(ctx, "l")
			_, err = kv.ListPop(ctx, "l")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestRedisKV_SetTTL(t *testing.T) {
	mr, kv := setupRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.SetTTL(ctx, "tmp", "1", 2*time.Minute))
	assert.Equal(t, 2*time.Minute, mr.TTL("tmp"))

	mr.FastForward(3 * time.Minute)
	_, err := kv.Get(ctx, "tmp")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKV_SetTTL(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Unix(1000, 0)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.SetTTL(ctx, "tmp", "1", time.Minute))
	v, err := kv.Get(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Minute)
	_, err = kv.Get(ctx, "tmp")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestJSONHelpers(t *testing.T) {
	mr, kv := setupRedisKV(t)
	ctx := context.Background()

	require.NoError(t, SetJSONTTL(ctx, kv, "ids", []int{1, 2}, time.Minute))
	var ids []int
	require.NoError(t, GetJSON(ctx, kv, "ids", &ids))
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, time.Minute, mr.TTL("ids"))

	// ttl<=0 永久保存
	require.NoError(t, SetJSONTTL(ctx, kv, "forever", []int{}, 0))
	assert.Equal(t, time.Duration(0), mr.TTL("forever"))

	err := GetJSON(ctx, kv, "missing", &ids)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "bad", "{"))
	err = GetJSON(ctx, kv, "bad", &ids)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
