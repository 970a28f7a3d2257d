package history

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per session in the sessoesChat collection.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("sessoesChat")}
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Upsert(ctx context.Context, rec *Record) error {
	// Titulo is omitempty in bson, so an empty one leaves the stored value alone.
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"sessionId": rec.SessionID},
		bson.M{"$set": rec},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) List(ctx context.Context, q ListQuery) ([]Record, error) {
	field := q.SortBy
	if _, ok := sortColumns[field]; !ok {
		field = SortStartTime
	}
	dir := 1
	if q.Desc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: field, Value: dir}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	if err := s.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdateTitle(ctx context.Context, sessionID, titulo string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{"titulo": titulo}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (Totals, error) {
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "sessions", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "messages", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$messages", bson.A{}}}}},
			}}}},
		}}},
	})
	if err != nil {
		return Totals{}, err
	}
	var rows []struct {
		Sessions int64 `bson:"sessions"`
		Messages int64 `bson:"messages"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Totals{}, err
	}
	if len(rows) == 0 {
		return Totals{}, nil
	}
	return Totals{Sessions: int(rows[0].Sessions), Messages: int(rows[0].Messages)}, nil
}
