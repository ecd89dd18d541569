package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create returns generated id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := NewMongoStore(mt.DB, nil)

		id, err := s.Create(context.Background(), CollectionIssues, "", Document{"title": "t"})
		require.NoError(mt, err)
		assert.Len(mt, id, 24)
	})

	mt.Run("create duplicate is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		s := NewMongoStore(mt.DB, nil)

		_, err := s.Create(context.Background(), CollectionUsers, "u1", Document{"email": "a@b.c"})
		assert.ErrorIs(mt, err, ErrConflict)
	})

	mt.Run("get maps no documents to not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.issues", mtest.FirstBatch))
		s := NewMongoStore(mt.DB, nil)

		_, err := s.Get(context.Background(), CollectionIssues, "missing")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("get decodes document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "db.issues", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "i1"},
			{Key: "title", Value: "Broken pipe"},
			{Key: "status", Value: "pending"},
		}))
		s := NewMongoStore(mt.DB, nil)

		doc, err := s.Get(context.Background(), CollectionIssues, "i1")
		require.NoError(mt, err)
		assert.Equal(mt, "Broken pipe", doc["title"])
		assert.Equal(mt, "i1", doc[IDField])
	})

	mt.Run("update without match is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		s := NewMongoStore(mt.DB, nil)

		err := s.Update(context.Background(), CollectionIssues, "missing", Document{"status": "approved"})
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("conditional update on changed document is stale", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: 0},
				bson.E{Key: "nModified", Value: 0},
			),
			mtest.CreateCursorResponse(1, "db.issues", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: 1},
				{Key: "n", Value: int32(1)},
			}),
		)
		s := NewMongoStore(mt.DB, nil)

		err := s.UpdateIf(context.Background(), CollectionIssues, "i1",
			Document{"status": "pending"}, Document{"status": "rejected"})
		assert.ErrorIs(mt, err, ErrStale)
	})

	mt.Run("conditional update applies when matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		s := NewMongoStore(mt.DB, nil)

		err := s.UpdateIf(context.Background(), CollectionIssues, "i1",
			Document{"status": "pending"}, Document{"status": "approved"})
		assert.NoError(mt, err)
	})

	mt.Run("server error is a store error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
			Name:    "BadValue",
		}))
		s := NewMongoStore(mt.DB, nil)

		_, err := s.QueryEqual(context.Background(), CollectionIssues, "status", "pending")
		var storeErr *Error
		require.ErrorAs(mt, err, &storeErr)
		assert.Equal(mt, "query", storeErr.Op)
	})
}
