// Package accesslog records client connection events in tb_cl_user_log_acess.
package accesslog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/common"
)

var ErrInvalid = errors.New("accesslog: ip and acao are required")

type Entry struct {
	ID        string    `gorm:"primaryKey;type:char(26)" json:"id" bson:"_id"`
	Data      string    `gorm:"column:col_data;type:varchar(10);index" json:"col_data" bson:"col_data"`
	Hora      string    `gorm:"column:col_hora;type:varchar(8)" json:"col_hora" bson:"col_hora"`
	IP        string    `gorm:"column:col_IP;type:varchar(64)" json:"col_IP" bson:"col_IP"`
	NomeBot   string    `gorm:"column:col_nome_bot;type:varchar(128)" json:"col_nome_bot" bson:"col_nome_bot"`
	Acao      string    `gorm:"column:col_acao;type:varchar(128)" json:"col_acao" bson:"col_acao"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (Entry) TableName() string { return "tb_cl_user_log_acess" }

// NewEntry stamps a connection event with date and time columns taken from now.
func NewEntry(ip, acao, nomeBot string, now time.Time) (Entry, error) {
	ip, acao = strings.TrimSpace(ip), strings.TrimSpace(acao)
	if ip == "" || acao == "" {
		return Entry{}, ErrInvalid
	}
	id, err := common.NewULID()
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:        id,
		Data:      now.Format("2006-01-02"),
		Hora:      now.Format("15:04:05"),
		IP:        ip,
		NomeBot:   nomeBot,
		Acao:      acao,
		CreatedAt: now,
	}, nil
}

// Recorder accepts an entry for storage, directly or through a queue.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Publisher is the queue side used by QueueRecorder.
type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// QueueRecorder hands entries to the broker; the worker persists them.
type QueueRecorder struct {
	pub Publisher
}

func NewQueueRecorder(pub Publisher) *QueueRecorder {
	return &QueueRecorder{pub: pub}
}

func (q *QueueRecorder) Record(ctx context.Context, e Entry) error {
	return q.pub.Publish(ctx, e)
}
