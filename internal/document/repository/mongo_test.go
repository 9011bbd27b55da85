package repository

import (
	"context"
	"testing"
	"time"

	"github.com/newsinsight/docservice/internal/document"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockRepo(mt *mtest.T) *MongoRepo {
	return &MongoRepo{col: mt.Coll, counters: mt.Coll}
}

func storedDoc(id, revision int64, status document.Status, result bson.D) bson.D {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := bson.D{
		{Key: "id", Value: id},
		{Key: "fileName", Value: "report.pdf"},
		{Key: "blobKey", Value: "documents/0001-report.pdf"},
		{Key: "uploaderId", Value: int64(0)},
		{Key: "uploadedAt", Value: now},
		{Key: "updatedAt", Value: now},
		{Key: "status", Value: string(status)},
		{Key: "revision", Value: revision},
	}
	if result == nil {
		return append(doc, bson.E{Key: "result", Value: nil})
	}
	return append(doc, bson.E{Key: "result", Value: result})
}

func findResponse(mt *mtest.T, docs ...bson.D) bson.D {
	ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, docs...)
}

func modifyResponse(doc bson.D) bson.D {
	if doc == nil {
		return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
	}
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

// updateCommand skips the read and returns the update document sent with findAndModify.
func updateCommand(mt *mtest.T) bson.Raw {
	mt.Helper()
	find := mt.GetStartedEvent()
	require.NotNil(mt, find)
	require.Equal(mt, "find", find.CommandName)
	modify := mt.GetStartedEvent()
	require.NotNil(mt, modify)
	require.Equal(mt, "findAndModify", modify.CommandName)
	return modify.Command.Lookup("update").Document()
}

func TestMongoRepoUpdateResult(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	completed := document.StatusCompleted
	summary := map[string]any{"summary": "ok"}

	mt.Run("unknown id", func(mt *mtest.T) {
		mt.AddMockResponses(findResponse(mt), findResponse(mt))
		rev := int64(0)
		_, err := mockRepo(mt).UpdateResult(ctx, 9, summary, &completed, &rev)
		require.ErrorIs(mt, err, ErrNotFound)

		_, err = mockRepo(mt).UpdateResult(ctx, 9, summary, &completed, nil)
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("stale revision is rejected before writing", func(mt *mtest.T) {
		mt.AddMockResponses(findResponse(mt, storedDoc(1, 2, document.StatusCompleted, bson.D{{Key: "summary", Value: "old"}})))
		rev := int64(1)
		_, err := mockRepo(mt).UpdateResult(ctx, 1, summary, &completed, &rev)
		require.ErrorIs(mt, err, ErrRevisionConflict)

		require.Equal(mt, "find", mt.GetStartedEvent().CommandName)
		require.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("record moved on between read and write", func(mt *mtest.T) {
		mt.AddMockResponses(
			findResponse(mt, storedDoc(1, 1, document.StatusProcessing, nil)),
			modifyResponse(nil),
		)
		rev := int64(1)
		_, err := mockRepo(mt).UpdateResult(ctx, 1, summary, &completed, &rev)
		require.ErrorIs(mt, err, ErrRevisionConflict)
	})

	mt.Run("record removed between read and write", func(mt *mtest.T) {
		mt.AddMockResponses(
			findResponse(mt, storedDoc(1, 1, document.StatusProcessing, nil)),
			modifyResponse(nil),
		)
		_, err := mockRepo(mt).UpdateResult(ctx, 1, summary, &completed, nil)
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("changed result bumps the revision", func(mt *mtest.T) {
		mt.AddMockResponses(
			findResponse(mt, storedDoc(1, 0, document.StatusProcessing, nil)),
			modifyResponse(storedDoc(1, 1, document.StatusCompleted, bson.D{{Key: "summary", Value: "ok"}})),
		)
		rev := int64(0)
		d, err := mockRepo(mt).UpdateResult(ctx, 1, summary, &completed, &rev)
		require.NoError(mt, err)
		require.EqualValues(mt, 1, d.Revision)
		require.Equal(mt, document.StatusCompleted, d.Status)
		require.Equal(mt, "ok", d.Result["summary"])

		update := updateCommand(mt)
		inc, err := update.LookupErr("$inc")
		require.NoError(mt, err)
		require.EqualValues(mt, 1, inc.Document().Lookup("revision").AsInt64())
	})

	mt.Run("identical write keeps the revision", func(mt *mtest.T) {
		stored := storedDoc(1, 1, document.StatusCompleted, bson.D{{Key: "summary", Value: "ok"}})
		mt.AddMockResponses(findResponse(mt, stored), modifyResponse(stored))
		d, err := mockRepo(mt).UpdateResult(ctx, 1, summary, &completed, nil)
		require.NoError(mt, err)
		require.EqualValues(mt, 1, d.Revision)

		update := updateCommand(mt)
		_, err = update.LookupErr("$inc")
		require.Error(mt, err)
		_, err = update.LookupErr("$set")
		require.NoError(mt, err)
	})
}

func TestStaleFilter(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f := staleFilter(document.StatusProcessing, cutoff)
	require.Equal(t, bson.M{"$lt": cutoff}, f["updatedAt"])
	require.Equal(t, bson.A{
		bson.M{"status": document.StatusProcessing},
		bson.M{"status": bson.M{"$in": bson.A{nil, ""}}, "result": nil},
	}, f["$or"])
	require.NotContains(t, f, "status")

	f = staleFilter(document.StatusFailed, cutoff)
	require.Equal(t, document.StatusFailed, f["status"])
	require.NotContains(t, f, "$or")
}
