package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const retryMaxElapsed = 10 * time.Second

// MongoStore implements Store on a MongoDB database. Documents use string ids; generated
// ids are ObjectID hex strings.
type MongoStore struct {
	db  *mongo.Database
	log *slog.Logger
}

func NewMongoStore(db *mongo.Database, log *slog.Logger) *MongoStore {
	if log == nil {
		log = slog.Default()
	}
	return &MongoStore{db: db, log: log}
}

// EnsureIndexes creates the secondary indexes the services query on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		CollectionVotes: {{
			Keys:    bson.D{{Key: "issue", Value: 1}, {Key: "user", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		CollectionIssues: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "reporterId", Value: 1}}},
		},
		CollectionCredentials: {{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		CollectionUsers: {{Keys: bson.D{{Key: "email", Value: 1}}}},
	}
	for name, idx := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return wrap("ensure indexes", name, err)
		}
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, collection, id string, fields Document) (string, error) {
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	doc := make(Document, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc[IDField] = id

	// not retried: a lost acknowledgement followed by a retry would surface as a conflict
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", wrap("create", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := s.withRetry(ctx, func() error {
		return s.db.Collection(collection).FindOne(ctx, bson.M{IDField: id}).Decode(&doc)
	})
	if err != nil {
		return nil, wrap("get", collection, err)
	}
	return doc, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	set := make(Document, len(fields))
	for k, v := range fields {
		if k != IDField {
			set[k] = v
		}
	}
	var res *mongo.UpdateResult
	err := s.withRetry(ctx, func() error {
		var err error
		res, err = s.db.Collection(collection).UpdateOne(ctx, bson.M{IDField: id}, bson.M{"$set": set})
		return err
	})
	if err != nil {
		return wrap("update", collection, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// UpdateIf is not retried: a retry after a write that landed would see its own change and
// report ErrStale.
func (s *MongoStore) UpdateIf(ctx context.Context, collection, id string, match, fields Document) error {
	filter := bson.M{IDField: id}
	for k, v := range match {
		filter[k] = v
	}
	set := make(Document, len(fields))
	for k, v := range fields {
		if k != IDField {
			set[k] = v
		}
	}
	coll := s.db.Collection(collection)
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return wrap("update", collection, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	count, err := coll.CountDocuments(ctx, bson.M{IDField: id})
	if err != nil {
		return wrap("update", collection, err)
	}
	if count == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return fmt.Errorf("%s/%s: %w", collection, id, ErrStale)
}

func (s *MongoStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	filter := bson.M{IDField: id}
	if delta < 0 {
		filter[field] = bson.M{"$gte": -delta}
	}
	coll := s.db.Collection(collection)
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return wrap("increment", collection, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	count, err := coll.CountDocuments(ctx, bson.M{IDField: id})
	if err != nil {
		return wrap("increment", collection, err)
	}
	if count == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	var res *mongo.DeleteResult
	err := s.withRetry(ctx, func() error {
		var err error
		res, err = s.db.Collection(collection).DeleteOne(ctx, bson.M{IDField: id})
		return err
	})
	if err != nil {
		return wrap("delete", collection, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) QueryEqual(ctx context.Context, collection, field string, value any) ([]Document, error) {
	docs, err := s.find(ctx, collection, bson.M{field: value})
	if err != nil {
		return nil, wrap("query", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	docs, err := s.find(ctx, collection, bson.M{})
	if err != nil {
		return nil, wrap("get all", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) find(ctx context.Context, collection string, filter bson.M) ([]Document, error) {
	var docs []Document
	err := s.withRetry(ctx, func() error {
		cursor, err := s.db.Collection(collection).Find(ctx, filter)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func newRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// withRetry retries op on transient network errors. Only used for reads and for writes
// that are idempotent by id.
func (s *MongoStore) withRetry(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		s.log.Warn("retrying store operation", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(newRetryBackoff(), ctx))
}

func isRetryable(err error) bool {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func wrap(op, collection string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", collection, ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", collection, ErrConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &Error{Op: op, Collection: collection, Err: err}
	}
}
