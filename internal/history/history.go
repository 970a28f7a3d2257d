// Package history persists chat session transcripts. Records are upserted as
// a whole on every save; a primary database is tried first and a local JSON
// file takes over when it is missing or failing.
package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	ErrNotFound      = errors.New("history: session not found")
	ErrInvalid       = errors.New("history: invalid session record")
	ErrTitleRequired = errors.New("history: titulo is required")
)

type Part struct {
	Text string `json:"text" bson:"text"`
}

// Message is one turn. Only Parts[0] is ever read back.
type Message struct {
	Role      string `json:"role" bson:"role"`
	Parts     []Part `json:"parts" bson:"parts"`
	Timestamp string `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	// Failed marks a model turn that carries the fallback text instead of a
	// real completion.
	Failed bool `json:"failed,omitempty" bson:"failed,omitempty"`
}

func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0].Text
}

// Record is the durable transcript of one session.
type Record struct {
	SessionID string                       `gorm:"primaryKey;type:varchar(64)" json:"sessionId" bson:"sessionId"`
	UserID    *string                      `gorm:"type:varchar(64)" json:"userId" bson:"userId"`
	BotID     string                       `gorm:"type:varchar(64);index" json:"botId" bson:"botId"`
	StartTime *time.Time                   `gorm:"index" json:"startTime" bson:"startTime"`
	EndTime   *time.Time                   `json:"endTime" bson:"endTime"`
	Messages  datatypes.JSONSlice[Message] `json:"messages" bson:"messages"`
	Titulo    string                       `gorm:"type:varchar(255)" json:"titulo,omitempty" bson:"titulo,omitempty"`
	LoggedAt  time.Time                    `gorm:"index" json:"loggedAt" bson:"loggedAt"`
}

func (Record) TableName() string { return "chat_sessions" }

// Sort fields accepted by List.
const (
	SortStartTime = "startTime"
	SortEndTime   = "endTime"
	SortLoggedAt  = "loggedAt"
	SortSessionID = "sessionId"
	SortBotID     = "botId"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 1000
)

// ListQuery selects records for List. Limit <= 0 means no limit at the store
// level; the service always normalizes it first.
type ListQuery struct {
	Limit  int
	SortBy string
	Desc   bool
}

// Totals counts stored sessions and the messages across them.
type Totals struct {
	Sessions int
	Messages int
}

// Store is one backing store for records.
type Store interface {
	Name() string
	// Upsert creates or fully replaces the record. An empty Titulo keeps the
	// stored one.
	Upsert(ctx context.Context, rec *Record) error
	List(ctx context.Context, q ListQuery) ([]Record, error)
	Get(ctx context.Context, sessionID string) (*Record, error)
	// Delete returns ErrNotFound when nothing was removed.
	Delete(ctx context.Context, sessionID string) error
	UpdateTitle(ctx context.Context, sessionID, titulo string) error
	// Count totals without loading transcripts where the backend allows it.
	Count(ctx context.Context) (Totals, error)
}

// Repository is the storage view the service works against. Every call
// reports the name of the store that served it.
type Repository interface {
	Upsert(ctx context.Context, rec *Record) (string, error)
	List(ctx context.Context, q ListQuery) ([]Record, string, error)
	Get(ctx context.Context, sessionID string) (*Record, string, error)
	Delete(ctx context.Context, sessionID string) (string, error)
	UpdateTitle(ctx context.Context, sessionID, titulo string) (string, error)
	Count(ctx context.Context) (Totals, string, error)
}
