// Package chat keeps the per-session conversation context used to talk to
// the completion provider.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/ai"
	"github.com/mestreprognosticos/chatbot/internal/settings"
	"github.com/mestreprognosticos/chatbot/internal/weather"
)

// FallbackText is returned to the client when the provider fails.
const FallbackText = "Erro: o Mestre dos Prognósticos não conseguiu responder agora. Tente novamente em instantes."

const (
	defaultContextWindow = 40
	maxContextWindow     = 200
	userTag              = "\nUsuário: "
)

var ErrEmptyMessage = errors.New("chat: message is required")

type Reply struct {
	Text string
	// Failed is set when Text is FallbackText. Failed turns are not kept.
	Failed bool
}

type transcript struct {
	mu       sync.Mutex
	messages []ai.Message
}

// Orchestrator owns the in-memory transcripts. Turns for one session are
// serialized, so a user turn and its model turn are always adjacent.
type Orchestrator struct {
	provider ai.Provider
	settings settings.Getter
	weather  weather.Source
	log      *slog.Logger

	WeatherLocation   string
	ContextWindow     int
	CompletionTimeout time.Duration
	Now               func() time.Time

	mu       sync.Mutex
	sessions map[string]*transcript
}

// NewOrchestrator accepts nil settings and weather; the default persona and
// the no-weather line are used instead.
func NewOrchestrator(provider ai.Provider, s settings.Getter, w weather.Source, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		provider:          provider,
		settings:          s,
		weather:           w,
		log:               log,
		WeatherLocation:   "São Paulo",
		ContextWindow:     defaultContextWindow,
		CompletionTimeout: 30 * time.Second,
		Now:               time.Now,
		sessions:          make(map[string]*transcript),
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) window() int {
	if o.ContextWindow <= 0 || o.ContextWindow > maxContextWindow {
		return defaultContextWindow
	}
	return o.ContextWindow
}

func (o *Orchestrator) transcriptFor(sessionID string) *transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.sessions[sessionID]
	if !ok {
		t = &transcript{}
		o.sessions[sessionID] = t
	}
	return t
}

// Respond sends text with the session's prior turns and returns the model
// reply. Provider failures are logged and turned into FallbackText; the
// returned error is only for invalid input.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	t := o.transcriptFor(sessionID)
	t.mu.Lock()
	defer t.mu.Unlock()

	prompt := append(o.recent(t.messages), ai.Message{
		Role:    ai.RoleUser,
		Content: o.instruction(ctx) + userTag + text,
	})

	cctx, cancel := ctx, context.CancelFunc(func() {})
	if o.CompletionTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.CompletionTimeout)
	}
	start := time.Now()
	reply, err := o.provider.Chat(cctx, prompt)
	cancel()
	if err != nil {
		o.log.Error("completion failed, using fallback",
			"session_id", sessionID, "cost", time.Since(start), "err", err)
		return Reply{Text: FallbackText, Failed: true}, nil
	}

	t.messages = append(t.messages,
		ai.Message{Role: ai.RoleUser, Content: text},
		ai.Message{Role: ai.RoleModel, Content: reply},
	)
	return Reply{Text: reply}, nil
}

// recent copies the tail of the transcript that fits the context window,
// starting on a user turn.
func (o *Orchestrator) recent(msgs []ai.Message) []ai.Message {
	if n := o.window(); len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	for len(msgs) > 0 && msgs[0].Role != ai.RoleUser {
		msgs = msgs[1:]
	}
	out := make([]ai.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return out
}

// Clear forgets the session's context.
func (o *Orchestrator) Clear(sessionID string) {
	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()
}

// History returns a copy of the session's transcript.
func (o *Orchestrator) History(sessionID string) []ai.Message {
	o.mu.Lock()
	t, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ai.Message(nil), t.messages...)
}

// Sessions reports how many transcripts are held in memory.
func (o *Orchestrator) Sessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
