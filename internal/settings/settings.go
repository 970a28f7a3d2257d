// Package settings persists the admin-editable key/value configuration.
package settings

import (
	"context"
	"errors"
	"time"
)

const (
	KeyAdminSecret       = "adminSecret"
	KeySystemInstruction = "systemInstruction"
)

var (
	ErrNotFound   = errors.New("settings: key not found")
	ErrAlreadySet = errors.New("settings: value already set")
)

// Entry is one configuration value.
type Entry struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" bson:"key" json:"key"`
	Value     string    `gorm:"type:text;not null" bson:"value" json:"value"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (Entry) TableName() string { return "config_entries" }

// Getter is the read side used by the admin gate and the chat orchestrator.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
}

// Store reads and writes entries. Every call goes to the backing store.
type Store interface {
	Getter
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent writes only when the key has no value yet and returns
	// ErrAlreadySet otherwise.
	SetIfAbsent(ctx context.Context, key, value string) error
}
