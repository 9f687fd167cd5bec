package repomongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bartossh/Rampart/emulator"
)

var (
	ErrInsertFailed = errors.New("insert failed")
	ErrSelectFailed = errors.New("select failed")
	ErrUpdateFailed = errors.New("update failed")
	ErrRemoveFailed = errors.New("remove failed")
	ErrDecodeFailed = errors.New("decode failed")
)

// document wraps the JSON body so the body keeps its own _id of any type.
type document struct {
	ID        string    `bson:"_id"`
	Body      bson.D    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(rec emulator.Record) (document, error) {
	var body bson.D
	if err := bson.UnmarshalExtJSON(rec.Body, false, &body); err != nil {
		return document{}, errors.Join(emulator.ErrInvalidRecord, err)
	}
	return document{ID: rec.ID, Body: body, CreatedAt: rec.CreatedAt.UTC()}, nil
}

func (d document) record() (emulator.Record, error) {
	raw, err := bson.MarshalExtJSON(d.Body, false, false)
	if err != nil {
		return emulator.Record{}, errors.Join(ErrDecodeFailed, err)
	}
	return emulator.Record{ID: d.ID, Body: raw, CreatedAt: d.CreatedAt}, nil
}

func toBSONFilter(f emulator.Filter) bson.D {
	out := bson.D{}
	for k, v := range f.Equals {
		out = append(out, bson.E{Key: "body." + k, Value: v})
	}
	for k, expr := range f.Match {
		out = append(out, bson.E{Key: "body." + k, Value: primitive.Regex{Pattern: expr}})
	}
	return out
}

// Insert stores a new record.
func (c *DataBase) Insert(ctx context.Context, collection string, rec emulator.Record) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	if _, err := c.inner.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return emulator.ErrConflict
		}
		return errors.Join(ErrInsertFailed, err)
	}
	return nil
}

// Get reads a record.
func (c *DataBase) Get(ctx context.Context, collection, id string) (emulator.Record, error) {
	var doc document
	err := c.inner.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return emulator.Record{}, emulator.ErrNotFound
	case err != nil:
		return emulator.Record{}, errors.Join(ErrSelectFailed, err)
	}
	return doc.record()
}

// List reads records ordered by creation time.
func (c *DataBase) List(ctx context.Context, collection string, f emulator.Filter, offset, limit int) ([]emulator.Record, int, error) {
	filter := toBSONFilter(f)
	coll := c.inner.Collection(collection)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}
	defer cursor.Close(ctx)

	out := make([]emulator.Record, 0, limit)
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, errors.Join(ErrDecodeFailed, err)
		}
		rec, err := doc.record()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}
	return out, int(total), nil
}

// Replace overwrites the body of an existing record.
func (c *DataBase) Replace(ctx context.Context, collection string, rec emulator.Record) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	res, err := c.inner.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: rec.ID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "body", Value: doc.Body}}}},
	)
	if err != nil {
		return errors.Join(ErrUpdateFailed, err)
	}
	if res.MatchedCount == 0 {
		return emulator.ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (c *DataBase) Delete(ctx context.Context, collection, id string) error {
	res, err := c.inner.Collection(collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return errors.Join(ErrRemoveFailed, err)
	}
	if res.DeletedCount == 0 {
		return emulator.ErrNotFound
	}
	return nil
}

// Truncate removes every record of the collection, indexes stay.
func (c *DataBase) Truncate(ctx context.Context, collection string) error {
	if _, err := c.inner.Collection(collection).DeleteMany(ctx, bson.D{}); err != nil {
		return errors.Join(ErrRemoveFailed, fmt.Errorf("truncate %s: %w", collection, err))
	}
	return nil
}

// Collections lists stored collections, logs and migrations excluded.
func (c *DataBase) Collections(ctx context.Context) ([]string, error) {
	names, err := c.inner.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Join(ErrSelectFailed, err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != logsCollection && n != migrationsCollection {
			out = append(out, n)
		}
	}
	return out, nil
}
