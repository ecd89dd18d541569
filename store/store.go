// Package store is the document store client: typed-agnostic create/read/update/query of
// documents addressed by collection and id. MongoStore is the production backend and
// MemoryStore backs tests and single-process development.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names.
const (
	CollectionUsers       = "users"
	CollectionIssues      = "issues"
	CollectionVotes       = "votes"
	CollectionCredentials = "credentials"
)

// IDField is the document key holding the document id.
const IDField = "_id"

// Document is a single stored record.
type Document = bson.M

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document already exists")
	// ErrStale means the document exists but no longer holds the values an UpdateIf expected.
	ErrStale = errors.New("document changed since read")
)

// Error is a backend failure (network, timeout, server error). Operations that address a
// caller-supplied id are safe to retry as a whole.
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store is the document store contract the core depends on.
type Store interface {
	// Create inserts fields under id. An empty id asks the store to generate one.
	Create(ctx context.Context, collection, id string, fields Document) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update sets the given fields on an existing document in a single write.
	Update(ctx context.Context, collection, id string, fields Document) error
	// UpdateIf sets fields only while every key of match still holds its value, checked and
	// written in one step.
	UpdateIf(ctx context.Context, collection, id string, match, fields Document) error
	// Increment adds delta to a numeric field atomically. A negative delta never takes the
	// field below zero; such a decrement is a no-op.
	Increment(ctx context.Context, collection, id, field string, delta int64) error
	Delete(ctx context.Context, collection, id string) error
	QueryEqual(ctx context.Context, collection, field string, value any) ([]Document, error)
	GetAll(ctx context.Context, collection string) ([]Document, error)
}

// Encode converts a bson-tagged struct into a Document.
func Encode(v any) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills the bson-tagged struct v from doc.
func Decode(doc Document, v any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
