package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/accesslog"
	"github.com/mestreprognosticos/chatbot/internal/auth"
	"github.com/mestreprognosticos/chatbot/internal/chat"
	"github.com/mestreprognosticos/chatbot/internal/config"
	"github.com/mestreprognosticos/chatbot/internal/history"
	"github.com/mestreprognosticos/chatbot/internal/ranking"
	"github.com/mestreprognosticos/chatbot/internal/settings"
)

// LoginThrottle counts failed admin logins per client. *redisstore.Store
// implements it.
type LoginThrottle interface {
	LoginFailures(ctx context.Context, clientID string) (int, error)
	IncrLoginFailure(ctx context.Context, clientID string, window time.Duration) (int, error)
	ResetLoginFailures(ctx context.Context, clientID string) error
}

// StatusCheck checks one dependency for /api/status. A nil Check reports
// the component as disabled.
type StatusCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds the dependencies of every endpoint. Settings, AccessLog and
// Throttle may be nil when their backing service is not configured.
type Handler struct {
	Cfg config.Config
	Log *slog.Logger

	Chat      *chat.Orchestrator
	History   *history.Service
	Settings  settings.Store
	Gate      *auth.Gate
	Ranking   *ranking.Board
	AccessLog accesslog.Recorder
	Throttle  LoginThrottle
	Checks    []StatusCheck

	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
