package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type lineItemsDocument struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type Mongo struct {
	collection *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		collection: db.Collection("line_items"),
	}
}

func (m *Mongo) Read(ctx context.Context, key string) ([]byte, error) {
	var doc lineItemsDocument

	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}

	return []byte(doc.Payload), nil
}

func (m *Mongo) Write(ctx context.Context, key string, value []byte) error {
	update := bson.M{
		"$set": bson.M{
			"payload":    string(value),
			"updated_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert line items: %w", err)
	}

	return nil
}

// CreateIndexes expires carts untouched for 90 days.
func (m *Mongo) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// ConnectMongoDB opens a pooled client and verifies it with a ping.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}
