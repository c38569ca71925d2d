package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditEntry is one change made to an order or to the shop's data.
type AuditEntry struct {
	ID        string                 `bson:"_id" json:"id"`
	Service   string                 `bson:"service" json:"service"`
	Action    string                 `bson:"action" json:"action"`
	EntityID  string                 `bson:"entity_id" json:"entityId"`
	Actor     string                 `bson:"actor,omitempty" json:"actor,omitempty"`
	Data      map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"createdAt"`
}

// Auditor records who changed what. Callers treat failures as non-fatal.
type Auditor interface {
	Record(ctx context.Context, entry *AuditEntry) error
	Trail(ctx context.Context, entityID string, limit int64) ([]*AuditEntry, error)
}

// AuditStore keeps audit entries in a MongoDB collection.
type AuditStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewAuditStore connects, verifies the server answers and makes sure the
// trail lookup index exists.
func NewAuditStore(cfg *config.MongoDBConfig) (*AuditStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create audit index: %w", err)
	}

	return &AuditStore{client: client, collection: coll}, nil
}

func (a *AuditStore) Ping(ctx context.Context) error {
	return a.client.Ping(ctx, nil)
}

func (a *AuditStore) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func (a *AuditStore) Record(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := a.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Trail returns the newest entries for entityID first.
func (a *AuditStore) Trail(ctx context.Context, entityID string, limit int64) ([]*AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := a.collection.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*AuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit trail: %w", err)
	}
	return entries, nil
}

// NopAuditor is used when no MongoDB URI is configured.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, *AuditEntry) error { return nil }

func (NopAuditor) Trail(context.Context, string, int64) ([]*AuditEntry, error) {
	return []*AuditEntry{}, nil
}
