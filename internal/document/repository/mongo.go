package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/diagramsync/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements the Document Store on a MongoDB collection.
// Documents are keyed by the hex form of an ObjectID stored in _id.
type MongoRepo struct {
	col *mongo.Collection
}

// NewMongoRepo wraps col and ensures the listing indexes exist.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "lastModified", Value: -1}}},
		{Keys: bson.D{{Key: "collaborators", Value: 1}, {Key: "lastModified", Value: -1}}},
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		return nil, storageErr("create indexes", err)
	}
	return &MongoRepo{col: col}, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", document.ErrStorage, op, err)
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) error {
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	if doc.LastModified.IsZero() {
		doc.LastModified = time.Now().UTC()
	}
	if doc.Collaborators == nil {
		doc.Collaborators = []string{}
	}
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		return storageErr("insert", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, storageErr("find", err)
	}
	return &d, nil
}

func (m *MongoRepo) ListForUser(ctx context.Context, userID string) ([]*document.Document, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"owner": userID},
		bson.M{"collaborators": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "lastModified", Value: -1}})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("list", err)
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

// UpdateContent is a single FindOneAndUpdate, so concurrent writers to the
// same document are applied one after the other and the last one wins.
func (m *MongoRepo) UpdateContent(ctx context.Context, id, content string, at time.Time) (*document.Document, error) {
	update := bson.M{"$set": bson.M{"content": content, "lastModified": at}}
	return m.findOneAndUpdate(ctx, id, update)
}

func (m *MongoRepo) AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error) {
	update := bson.M{"$addToSet": bson.M{"collaborators": userID}}
	return m.findOneAndUpdate(ctx, id, update)
}

func (m *MongoRepo) findOneAndUpdate(ctx context.Context, id string, update bson.M) (*document.Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, storageErr("update", err)
	}
	return &d, nil
}
