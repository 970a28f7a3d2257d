package accesslog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Record inserts e. A redelivered entry with the same ID is a no-op.
func (r *Repo) Record(ctx context.Context, e Entry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&e).Error
}

func (r *Repo) ListByDate(ctx context.Context, date string) ([]Entry, error) {
	var out []Entry
	err := r.db.WithContext(ctx).
		Where(&Entry{Data: date}).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// MongoRepo writes entries to the tb_cl_user_log_acess collection.
type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{coll: db.Collection("tb_cl_user_log_acess")}
}

func (r *MongoRepo) Record(ctx context.Context, e Entry) error {
	_, err := r.coll.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("accesslog: mongo insert: %w", err)
	}
	return nil
}
