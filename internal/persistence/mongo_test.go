package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) *Mongo {
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })

	kv := NewMongo(db)
	require.NoError(t, kv.CreateIndexes(ctx))
	return kv
}

func TestMongo_Read_NotFound(t *testing.T) {
	kv := setupTestMongo(t)

	data, err := kv.Read(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, data)
}

func TestMongo_WriteUpserts(t *testing.T) {
	kv := setupTestMongo(t)
	ctx := context.Background()

	require.NoError(t, kv.Write(ctx, "cart:123", []byte(`[{"id":1,"name":"Rice","unitPrice":5000,"quantity":1}]`)))
	require.NoError(t, kv.Write(ctx, "cart:123", []byte(`[{"id":1,"name":"Rice","unitPrice":5000,"quantity":2}]`)))

	data, err := kv.Read(ctx, "cart:123")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"Rice","unitPrice":5000,"quantity":2}]`, string(data))

	count, err := kv.collection.CountDocuments(ctx, map[string]string{"_id": "cart:123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMongo_ContextCancellation(t *testing.T) {
	kv := setupTestMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

	_, err := kv.Read(ctx, "cart:123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
