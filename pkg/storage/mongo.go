package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/blockflow/pkg/observability"
)

// MongoBackend stores values as documents in a MongoDB collection, keyed by
// _id.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoOptions configures a MongoDB connection.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at,omitempty"`
}

// NewMongoBackend connects to MongoDB and verifies the connection.
func NewMongoBackend(ctx context.Context, opts MongoOptions) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(opts.Database).Collection(opts.Collection)
	return &MongoBackend{client: client, coll: coll}, nil
}

// Get retrieves a value. Expired documents are reported as a miss.
func (b *MongoBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry mongoEntry
	err := b.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observability.Storage().OnStorageMiss(ctx, BackendMongo)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mongoErr("find", err)
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_, _ = b.coll.DeleteOne(ctx, bson.M{"_id": key})
		observability.Storage().OnStorageMiss(ctx, BackendMongo)
		return nil, false, nil
	}
	observability.Storage().OnStorageHit(ctx, BackendMongo)
	return entry.Data, true, nil
}

// Set upserts a value.
func (b *MongoBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := mongoEntry{Key: key, Data: data}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).UTC()
	}
	_, err := b.coll.ReplaceOne(ctx, bson.M{"_id": key}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		return mongoErr("replace", err)
	}
	observability.Storage().OnStorageSet(ctx, BackendMongo, len(data))
	return nil
}

// Delete removes a value.
func (b *MongoBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return mongoErr("delete", err)
	}
	return nil
}

// List returns the live keys with prefix, sorted.
func (b *MongoBackend) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{
		"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$exists": false}},
			bson.M{"expires_at": bson.M{"$gt": time.Now().UTC()}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"_id": 1})
	cur, err := b.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("find", err)
	}
	var entries []mongoEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, mongoErr("decode", err)
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Close disconnects the client.
func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func mongoErr(op string, err error) error {
	wrapped := fmt.Errorf("mongo %s: %w", op, err)
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return Retryable(wrapped)
	}
	return wrapped
}

var _ Backend = (*MongoBackend)(nil)
