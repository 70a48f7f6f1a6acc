package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingKV struct {
	KV
	reads atomic.Int32
}

func (c *countingKV) Read(ctx context.Context, key string) ([]byte, error) {
	c.reads.Add(1)
	return c.KV.Read(ctx, key)
}

func TestCached_ReadFillsCache(t *testing.T) {
	ctx := context.Background()
	durable := &countingKV{KV: NewMemory()}
	cache := NewMemory()
	require.NoError(t, durable.Write(ctx, "cart:1", []byte(`[]`)))

	sut := NewCached(durable, cache, nil)

	data, err := sut.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	cached, err := cache.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(cached))

	// second read is served by the cache
	_, err = sut.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), durable.reads.Load())
}

func TestCached_ReadMissPropagatesNotFound(t *testing.T) {
	sut := NewCached(NewMemory(), NewMemory(), nil)

	_, err := sut.Read(context.Background(), "cart:none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCached_CacheErrorFallsBackToDurable(t *testing.T) {
	ctx := context.Background()
	durable := NewMemory()
	cache := NewMemory()
	cache.FailReads(errors.New("redis down"))
	require.NoError(t, durable.Write(ctx, "cart:1", []byte(`[]`)))

	data, err := NewCached(durable, cache, nil).Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCached_WriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	durable := NewMemory()
	cache := NewMemory()
	require.NoError(t, cache.Write(ctx, "cart:1", []byte(`stale`)))

	sut := NewCached(durable, cache, nil)
	require.NoError(t, sut.Write(ctx, "cart:1", []byte(`[]`)))

	_, err := cache.Read(ctx, "cart:1")
	assert.ErrorIs(t, err, ErrNotFound)

	data, err := sut.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCached_WriteFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	durable := NewMemory()
	durable.FailWrites(errors.New("database error"))
	cache := NewMemory()
	require.NoError(t, cache.Write(ctx, "cart:1", []byte(`[]`)))

	err := NewCached(durable, cache, nil).Write(ctx, "cart:1", []byte(`[{}]`))
	require.ErrorContains(t, err, "database error")

	cached, err := cache.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(cached))
}

func TestCached_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	durable := &countingKV{KV: NewMemory()}
	require.NoError(t, durable.Write(ctx, "cart:1", []byte(`[]`)))
	sut := NewCached(durable, NewMemory(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := sut.Read(ctx, "cart:1")
			assert.NoError(t, err)
			assert.Equal(t, "[]", string(data))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, durable.reads.Load(), int32(20))
}

// gatedKV holds its first Read after taking the value until release closes.
type gatedKV struct {
	KV
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedKV) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := g.KV.Read(ctx, key)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return data, err
}

func TestCached_ReadDoesNotRefillAfterConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Write(ctx, "cart:1", []byte(`["old"]`)))
	durable := &gatedKV{KV: mem, read: make(chan struct{}), release: make(chan struct{})}
	cache := NewMemory()
	sut := NewCached(durable, cache, nil)

	done := make(chan []byte)
	go func() {
		data, err := sut.Read(ctx, "cart:1")
		assert.NoError(t, err)
		done <- data
	}()

	<-durable.read
	require.NoError(t, sut.Write(ctx, "cart:1", []byte(`["new"]`)))
	close(durable.release)
	assert.Equal(t, `["old"]`, string(<-done))

	_, err := cache.Read(ctx, "cart:1")
	assert.ErrorIs(t, err, ErrNotFound, "stale value must not be cached")

	data, err := sut.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, `["new"]`, string(data))

	cached, err := cache.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, `["new"]`, string(cached))
}
