package history

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sortColumns = map[string]string{
	SortStartTime: "start_time",
	SortEndTime:   "end_time",
	SortLoggedAt:  "logged_at",
	SortSessionID: "session_id",
	SortBotID:     "bot_id",
}

// GormStore keeps records in the chat_sessions table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Name() string {
	return s.db.Dialector.Name()
}

func (s *GormStore) Upsert(ctx context.Context, rec *Record) error {
	cols := []string{"user_id", "bot_id", "start_time", "end_time", "messages", "logged_at"}
	if rec.Titulo != "" {
		cols = append(cols, "titulo")
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(rec).Error
}

func (s *GormStore) List(ctx context.Context, q ListQuery) ([]Record, error) {
	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = sortColumns[SortStartTime]
	}
	tx := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Desc})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var out []Record
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	var rec Record
	if err := s.db.WithContext(ctx).Where(&Record{SessionID: sessionID}).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNotFound
	}
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdateTitle(ctx context.Context, sessionID, titulo string) error {
	res := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("session_id = ?", sessionID).
		Update("titulo", titulo)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports 0 affected rows when the value did not change.
	var cnt int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Where("session_id = ?", sessionID).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context) (Totals, error) {
	var sessions int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&sessions).Error; err != nil {
		return Totals{}, err
	}

	fn := "json_array_length"
	if s.db.Dialector.Name() == "mysql" {
		fn = "JSON_LENGTH"
	}
	var messages int64
	if err := s.db.WithContext(ctx).Model(&Record{}).
		Select("COALESCE(SUM(" + fn + "(messages)), 0)").
		Scan(&messages).Error; err != nil {
		return Totals{}, err
	}
	return Totals{Sessions: int(sessions), Messages: int(messages)}, nil
}
