package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateGeneratesIDAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fields := Document{"title": "Pothole", "imageUrl": []string{"a", "b"}}
	id, err := s.Create(ctx, CollectionIssues, "", fields)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	fields["title"] = "mutated after create"

	doc, err := s.Get(ctx, CollectionIssues, id)
	require.NoError(t, err)
	assert.Equal(t, "Pothole", doc["title"])
	assert.Equal(t, id, doc[IDField])
}

func TestMemoryStore_CreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Create(ctx, CollectionUsers, "u1", Document{"email": "a@b.c"})
	require.NoError(t, err)

	_, err = s.Create(ctx, CollectionUsers, "u1", Document{"email": "x@y.z"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, CollectionIssues, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, CollectionIssues, "missing", Document{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, CollectionIssues, "missing"), ErrNotFound)
	assert.ErrorIs(t, s.Increment(ctx, CollectionIssues, "missing", "upvotes", 1), ErrNotFound)
}

func TestMemoryStore_UpdateKeepsID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, CollectionIssues, "", Document{"status": "pending"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, CollectionIssues, id, Document{"status": "approved", IDField: "hijack"}))

	doc, err := s.Get(ctx, CollectionIssues, id)
	require.NoError(t, err)
	assert.Equal(t, "approved", doc["status"])
	assert.Equal(t, id, doc[IDField])
}

func TestMemoryStore_UpdateIfChecksMatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, CollectionIssues, "", Document{"status": "pending"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateIf(ctx, CollectionIssues, id, Document{"status": "pending"}, Document{"status": "approved"}))

	err = s.UpdateIf(ctx, CollectionIssues, id, Document{"status": "pending"}, Document{"status": "rejected"})
	assert.ErrorIs(t, err, ErrStale)
	doc, err := s.Get(ctx, CollectionIssues, id)
	require.NoError(t, err)
	assert.Equal(t, "approved", doc["status"])

	err = s.UpdateIf(ctx, CollectionIssues, "missing", Document{"status": "pending"}, Document{"status": "approved"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_IncrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, CollectionIssues, "", Document{"upvotes": 0})
	require.NoError(t, err)

	require.NoError(t, s.Increment(ctx, CollectionIssues, id, "upvotes", -1))
	require.NoError(t, s.Increment(ctx, CollectionIssues, id, "upvotes", 2))
	require.NoError(t, s.Increment(ctx, CollectionIssues, id, "upvotes", -1))

	doc, err := s.Get(ctx, CollectionIssues, id)
	require.NoError(t, err)
	n, ok := toInt64(doc["upvotes"])
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
}

type namedStatus string

func TestMemoryStore_QueryEqual(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, status := range []string{"pending", "approved", "pending"} {
		_, err := s.Create(ctx, CollectionIssues, "", Document{"status": status})
		require.NoError(t, err)
	}

	docs, err := s.QueryEqual(ctx, CollectionIssues, "status", namedStatus("pending"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	all, err := s.GetAll(ctx, CollectionIssues)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := s.GetAll(ctx, CollectionUsers)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEncodeDecode(t *testing.T) {
	type record struct {
		ID    string   `bson:"_id,omitempty"`
		Name  string   `bson:"name"`
		Count int      `bson:"count"`
		Tags  []string `bson:"tags"`
	}

	doc, err := Encode(record{Name: "n", Count: 3, Tags: []string{"x"}})
	require.NoError(t, err)
	_, hasID := doc[IDField]
	assert.False(t, hasID)

	doc[IDField] = "r1"
	var out record
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, record{ID: "r1", Name: "n", Count: 3, Tags: []string{"x"}}, out)
}
