package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/soyeahso/hotline/internal/domain"
)

// MongoCheckpointStore implements domain.CheckpointStore on MongoDB. Each
// thread is one document keyed by thread id; saves are guarded by a
// version filter.
type MongoCheckpointStore struct {
	client  *mongo.Client
	live    *mongo.Collection
	archive *mongo.Collection
}

type mongoCheckpoint struct {
	ThreadID   string    `bson:"_id"`
	Domain     string    `bson:"domain"`
	Version    int64     `bson:"version"`
	Messages   string    `bson:"messages"`
	ExtraState string    `bson:"extra_state"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// NewMongoCheckpointStore connects, pings, and ensures indexes.
func NewMongoCheckpointStore(ctx context.Context, uri, database, collection string) (*MongoCheckpointStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoCheckpointStore{
		client:  client,
		live:    db.Collection(collection),
		archive: db.Collection(collection + "_archive"),
	}
	_, err = s.archive.Indexes().CreateOne(cctx, mongo.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "deleted_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoCheckpointStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoCheckpointStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var doc mongoCheckpoint
	err := s.live.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	return doc.checkpoint()
}

func (s *MongoCheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	doc, err := newMongoCheckpoint(cp)
	if err != nil {
		return err
	}

	if cp.Version == 1 {
		_, err := s.live.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: thread %s already exists", domain.ErrVersionConflict, cp.ThreadID)
		}
		if err != nil {
			return fmt.Errorf("inserting checkpoint %s: %w", cp.ThreadID, err)
		}
		return nil
	}

	res, err := s.live.ReplaceOne(ctx, bson.M{"_id": cp.ThreadID, "version": cp.Version - 1}, doc)
	if err != nil {
		return fmt.Errorf("replacing checkpoint %s: %w", cp.ThreadID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: thread %s not at version %d", domain.ErrVersionConflict, cp.ThreadID, cp.Version-1)
	}
	return nil
}

func (s *MongoCheckpointStore) Delete(ctx context.Context, threadID string) error {
	var doc mongoCheckpoint
	err := s.live.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrCheckpointNotFound
	}
	if err != nil {
		return fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}

	now := time.Now().UTC()
	archived := bson.M{
		"_id":         fmt.Sprintf("%s:%d:%d", threadID, doc.Version, now.UnixNano()),
		"thread_id":   threadID,
		"domain":      doc.Domain,
		"version":     doc.Version,
		"messages":    doc.Messages,
		"extra_state": doc.ExtraState,
		"created_at":  doc.CreatedAt,
		"updated_at":  doc.UpdatedAt,
		"deleted_at":  now,
	}
	if _, err := s.archive.InsertOne(ctx, archived); err != nil {
		return fmt.Errorf("archiving checkpoint %s: %w", threadID, err)
	}
	if _, err := s.live.DeleteOne(ctx, bson.M{"_id": threadID, "version": doc.Version}); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", threadID, err)
	}
	return nil
}

func newMongoCheckpoint(cp *domain.Checkpoint) (*mongoCheckpoint, error) {
	messages, extra, err := encodeCheckpointBody(cp)
	if err != nil {
		return nil, err
	}
	return &mongoCheckpoint{
		ThreadID:   cp.ThreadID,
		Domain:     string(cp.Domain),
		Version:    cp.Version,
		Messages:   messages,
		ExtraState: extra,
		CreatedAt:  cp.CreatedAt.UTC(),
		UpdatedAt:  cp.UpdatedAt.UTC(),
	}, nil
}

func (d *mongoCheckpoint) checkpoint() (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		ThreadID:  d.ThreadID,
		Domain:    domain.Domain(d.Domain),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if err := decodeCheckpointBody(cp, d.Messages, d.ExtraState); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", d.ThreadID, err)
	}
	return cp, nil
}
