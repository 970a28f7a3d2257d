package settings

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo keeps entries in the "config" collection, one document per key.
type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{coll: db.Collection("config")}
}

func (r *MongoRepo) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	if err := r.coll.FindOne(ctx, bson.M{"key": key}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", err
	}
	return e.Value, nil
}

func (r *MongoRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value, "updatedAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoRepo) SetIfAbsent(ctx context.Context, key, value string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$setOnInsert": bson.M{"key": key, "value": value, "updatedAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	if res.UpsertedCount == 0 {
		return ErrAlreadySet
	}
	return nil
}
