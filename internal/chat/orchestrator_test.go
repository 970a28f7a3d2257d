package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/ai"
	"github.com/mestreprognosticos/chatbot/internal/settings"
	"github.com/mestreprognosticos/chatbot/internal/weather"
)

type recordingProvider struct {
	mu    sync.Mutex
	calls [][]ai.Message
	err   error
	delay time.Duration
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.mu.Lock()
	// copy to avoid mutations
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	err := p.err
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if err != nil {
		return "", err
	}
	last := messages[len(messages)-1].Content
	return "resposta para " + last[strings.LastIndex(last, userTag)+len(userTag):], nil
}

func (p *recordingProvider) last() []ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

type staticSettings map[string]string

func (s staticSettings) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

type staticWeather struct {
	r   weather.Report
	err error
}

func (w staticWeather) Current(context.Context, string) (weather.Report, error) {
	return w.r, w.err
}

func TestRespond_SecondTurnCarriesFirstExchange(t *testing.T) {
	p := &recordingProvider{}
	o := NewOrchestrator(p, nil, nil, nil)
	ctx := context.Background()

	r, err := o.Respond(ctx, "s1", "oi")
	if err != nil || r.Failed || r.Text != "resposta para oi" {
		t.Fatalf("first turn: %+v err=%v", r, err)
	}
	if got := p.last(); len(got) != 1 || !strings.HasSuffix(got[0].Content, "\nUsuário: oi") {
		t.Fatalf("unexpected first prompt: %+v", got)
	}

	if _, err := o.Respond(ctx, "s1", "e agora?"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	got := p.last()
	if len(got) != 3 {
		t.Fatalf("expected 2 history turns + prompt, got %d", len(got))
	}
	if got[0].Role != ai.RoleUser || got[0].Content != "oi" || got[1].Role != ai.RoleModel || got[1].Content != "resposta para oi" {
		t.Fatalf("history missing first exchange: %+v", got[:2])
	}
	if !strings.HasSuffix(got[2].Content, "\nUsuário: e agora?") {
		t.Fatalf("unexpected prompt %q", got[2].Content)
	}

	// other sessions are isolated
	_, _ = o.Respond(ctx, "s2", "olá")
	if got := p.last(); len(got) != 1 {
		t.Fatalf("session s2 leaked history: %+v", got)
	}
}

func TestRespond_FailureIsFlaggedAndNotKept(t *testing.T) {
	p := &recordingProvider{err: errors.New("quota exceeded")}
	o := NewOrchestrator(p, nil, nil, nil)

	r, err := o.Respond(context.Background(), "s1", "oi")
	if err != nil {
		t.Fatalf("provider errors must not surface: %v", err)
	}
	if !r.Failed || r.Text != FallbackText {
		t.Fatalf("expected fallback reply, got %+v", r)
	}
	if h := o.History("s1"); len(h) != 0 {
		t.Fatalf("failed turn must not be appended: %+v", h)
	}

	p.err = nil
	_, _ = o.Respond(context.Background(), "s1", "de novo")
	if h := o.History("s1"); len(h) != 2 || h[0].Content != "de novo" {
		t.Fatalf("unexpected history after recovery: %+v", h)
	}
}

func TestRespond_EmptyMessage(t *testing.T) {
	o := NewOrchestrator(&recordingProvider{}, nil, nil, nil)
	if _, err := o.Respond(context.Background(), "s1", "   "); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestRespond_ConcurrentTurnsStayAdjacent(t *testing.T) {
	p := &recordingProvider{delay: 2 * time.Millisecond}
	o := NewOrchestrator(p, nil, nil, nil)
	o.ContextWindow = 200

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = o.Respond(context.Background(), "s1", fmt.Sprintf("msg%d", i))
		}(i)
	}
	wg.Wait()

	h := o.History("s1")
	if len(h) != 30 {
		t.Fatalf("expected 30 messages, got %d", len(h))
	}
	for i := 0; i < len(h); i += 2 {
		if h[i].Role != ai.RoleUser || h[i+1].Role != ai.RoleModel || h[i+1].Content != "resposta para "+h[i].Content {
			t.Fatalf("turn %d not adjacent: %+v / %+v", i/2, h[i], h[i+1])
		}
	}
}

func TestRespond_WindowStartsOnUserTurn(t *testing.T) {
	p := &recordingProvider{}
	o := NewOrchestrator(p, nil, nil, nil)
	o.ContextWindow = 3

	for _, m := range []string{"a", "b", "c"} {
		_, _ = o.Respond(context.Background(), "s1", m)
	}
	got := p.last()
	// window of 3 over [a, ra, b, rb] keeps [ra, b, rb] and drops the leading model turn
	if len(got) != 3 || got[0].Content != "b" || got[1].Content != "resposta para b" {
		t.Fatalf("unexpected windowed prompt: %+v", got)
	}
}

func TestInstruction_ConfiguredOrDefault(t *testing.T) {
	p := &recordingProvider{}
	now := time.Date(2026, 6, 14, 16, 30, 0, 0, time.UTC)

	o := NewOrchestrator(p, staticSettings{settings.KeySystemInstruction: "Seja breve."}, nil, nil)
	_, _ = o.Respond(context.Background(), "s1", "oi")
	if got := p.last()[0].Content; got != "Seja breve.\nUsuário: oi" {
		t.Fatalf("unexpected configured prompt %q", got)
	}

	w := staticWeather{r: weather.Report{Location: "São Paulo", Temperature: 22.6, Description: "nublado"}}
	o = NewOrchestrator(p, staticSettings{}, w, nil)
	o.Now = func() time.Time { return now }
	_, _ = o.Respond(context.Background(), "s1", "oi")
	got := p.last()[0].Content
	for _, want := range []string{"Mestre dos Prognósticos", "14/06/2026 16:30:00", "No seu local (São Paulo), agora faz 23°C com nublado."} {
		if !strings.Contains(got, want) {
			t.Fatalf("default prompt missing %q:\n%s", want, got)
		}
	}

	o = NewOrchestrator(p, nil, staticWeather{err: errors.New("timeout")}, nil)
	_, _ = o.Respond(context.Background(), "s1", "oi")
	if !strings.Contains(p.last()[0].Content, noWeatherText) {
		t.Fatalf("expected no-weather line")
	}
}

func TestClear(t *testing.T) {
	p := &recordingProvider{}
	o := NewOrchestrator(p, nil, nil, nil)
	_, _ = o.Respond(context.Background(), "s1", "oi")
	if o.Sessions() != 1 {
		t.Fatalf("expected one session")
	}
	o.Clear("s1")
	o.Clear("never-existed")
	if o.Sessions() != 0 || o.History("s1") != nil {
		t.Fatalf("session not cleared")
	}
	_, _ = o.Respond(context.Background(), "s1", "de novo")
	if got := p.last(); len(got) != 1 {
		t.Fatalf("cleared session must start fresh: %+v", got)
	}
}

type errSettings struct{ err error }

func (s errSettings) Get(context.Context, string) (string, error) { return "", s.err }

func TestInstruction_WrappedNotFoundIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := &recordingProvider{}

	o := NewOrchestrator(p, errSettings{err: fmt.Errorf("find config: %w", settings.ErrNotFound)}, nil, log)
	_, _ = o.Respond(context.Background(), "s1", "oi")
	if strings.Contains(buf.String(), "system instruction lookup failed") {
		t.Fatalf("wrapped not-found logged as a failure:\n%s", buf.String())
	}
	if !strings.Contains(p.last()[0].Content, "Mestre dos Prognósticos") {
		t.Fatalf("expected default persona")
	}

	o = NewOrchestrator(p, errSettings{err: errors.New("db down")}, nil, log)
	_, _ = o.Respond(context.Background(), "s2", "oi")
	if !strings.Contains(buf.String(), "system instruction lookup failed") {
		t.Fatalf("expected a warning for a failing store")
	}
}
