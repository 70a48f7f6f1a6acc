package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and a Redis adapter pointing at it
func setupTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedis(client, ttl), mr
}

func TestRedis_Read_Success(t *testing.T) {
	kv, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("cart:123", `[{"id":1,"name":"Rice","unitPrice":5000,"quantity":2}]`))

	data, err := kv.Read(ctx, "cart:123")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"Rice","unitPrice":5000,"quantity":2}]`, string(data))
}

func TestRedis_Read_NotFound(t *testing.T) {
	kv, _ := setupTestRedis(t, 0)

	data, err := kv.Read(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, data)
}

func TestRedis_Read_ServerDown(t *testing.T) {
	kv, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := kv.Read(context.Background(), "cart:123")
	require.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedis_Write_NoTTL(t *testing.T) {
	kv, mr := setupTestRedis(t, 0)

	require.NoError(t, kv.Write(context.Background(), "cart:456", []byte(`[]`)))

	stored, err := mr.Get("cart:456")
	require.NoError(t, err)
	assert.Equal(t, "[]", stored)
	assert.Equal(t, time.Duration(0), mr.TTL("cart:456"))
}

func TestRedis_Write_WithTTL(t *testing.T) {
	kv, mr := setupTestRedis(t, 15*time.Minute)

	require.NoError(t, kv.Write(context.Background(), "cart:789", []byte(`[]`)))

	ttl := mr.TTL("cart:789")
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestRedis_Delete(t *testing.T) {
	kv, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, kv.Write(ctx, "cart:999", []byte(`[]`)))
	assert.True(t, mr.Exists("cart:999"))

	require.NoError(t, kv.Delete(ctx, "cart:999"))
	assert.False(t, mr.Exists("cart:999"))

	// deleting a missing key is not an error
	assert.NoError(t, kv.Delete(ctx, "cart:999"))
}
