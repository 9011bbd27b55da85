package repository

import (
	"context"
	"errors"
	"time"

	"github.com/newsinsight/docservice/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const documentsCounter = "documents"

// MongoRepo implements a MongoDB-backed repository for documents.
// Numeric ids are drawn from a sequence document in the counters collection,
// so an id is never handed out twice even after a record is removed by hand.
type MongoRepo struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

var _ Repository = (*MongoRepo)(nil)

func NewMongoRepo(ctx context.Context, db *mongo.Database) *MongoRepo {
	col := db.Collection("documents")
	// unique id lookups plus the stale sweep query
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	}
	_, _ = col.Indexes().CreateMany(ctx, models)
	return &MongoRepo{col: col, counters: db.Collection("counters")}
}

func (m *MongoRepo) nextID(ctx context.Context) (int64, error) {
	var seq struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx, bson.M{"_id": documentsCounter}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Seq, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	id, err := m.nextID(ctx)
	if err != nil {
		return nil, storageErr("allocate id", err)
	}
	d := *doc
	d.ID = id
	d.UploadedAt = time.Now().UTC().Truncate(time.Millisecond)
	d.UpdatedAt = d.UploadedAt
	d.Revision = 0
	if _, err := m.col.InsertOne(ctx, &d); err != nil {
		return nil, storageErr("insert", err)
	}
	return &d, nil
}

func (m *MongoRepo) FindAll(ctx context.Context) ([]*document.Document, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoRepo) FindByID(ctx context.Context, id int64) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storageErr("find one", err)
	}
	return &d, nil
}

// UpdateResult reads the current record, then applies the write guarded by
// the revision it read when the caller pinned one. Unknown ids and stale
// revisions are told apart by the read, before anything is written.
func (m *MongoRepo) UpdateResult(ctx context.Context, id int64, result map[string]any, status *document.Status, expectedRevision *int64) (*document.Document, error) {
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if expectedRevision != nil && *expectedRevision != current.Revision {
		return nil, ErrRevisionConflict
	}

	filter := bson.M{"id": id}
	if expectedRevision != nil {
		filter["revision"] = *expectedRevision
	}
	update := bson.M{"$set": resultSet(result, status, time.Now().UTC().Truncate(time.Millisecond))}
	if changes(current, result, status) {
		update["$inc"] = bson.M{"revision": int64(1)}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d document.Document
	err = m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storageErr("update result", err)
	}
	// the record moved on between the read and the guarded write
	if expectedRevision != nil {
		return nil, ErrRevisionConflict
	}
	return nil, ErrNotFound
}

func resultSet(result map[string]any, status *document.Status, now time.Time) bson.M {
	set := bson.M{"result": result, "updatedAt": now}
	if status != nil {
		set["status"] = *status
	}
	return set
}

func (m *MongoRepo) FindStale(ctx context.Context, status document.Status, updatedBefore time.Time) ([]*document.Document, error) {
	return m.find(ctx, staleFilter(status, updatedBefore))
}

// staleFilter matches on the effective status: a record written without a
// status is processing until it carries a result, completed afterwards.
func staleFilter(status document.Status, updatedBefore time.Time) bson.M {
	filter := bson.M{"updatedAt": bson.M{"$lt": updatedBefore}}
	legacy := bson.M{"status": bson.M{"$in": bson.A{nil, ""}}}
	switch status {
	case document.StatusProcessing:
		legacy["result"] = nil
	case document.StatusCompleted:
		legacy["result"] = bson.M{"$ne": nil}
	default:
		filter["status"] = status
		return filter
	}
	filter["$or"] = bson.A{bson.M{"status": status}, legacy}
	return filter
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, storageErr("find", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, storageErr("decode", err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("cursor", err)
	}
	return out, nil
}
