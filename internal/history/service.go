package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/ai"
)

const (
	previewRunes = 100
	noMessages   = "Sem mensagens"
	recentStats  = 5
)

// SaveRequest is a record as sent by the client, with times as ISO strings.
type SaveRequest struct {
	SessionID string    `json:"sessionId"`
	UserID    *string   `json:"userId"`
	BotID     string    `json:"botId"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Messages  []Message `json:"messages"`
	Titulo    string    `json:"titulo"`
}

type Summary struct {
	SessionID    string     `json:"sessionId"`
	BotID        string     `json:"botId"`
	Titulo       string     `json:"titulo,omitempty"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	MessageCount int        `json:"messageCount"`
	Duration     int64      `json:"duration"`
	Preview      string     `json:"preview"`
	LoggedAt     time.Time  `json:"loggedAt"`
}

type Stats struct {
	TotalConversas   int       `json:"totalConversas"`
	TotalMensagens   int       `json:"totalMensagens"`
	UltimasConversas []Summary `json:"ultimasConversas"`
}

type Service struct {
	repo Repository
	ai   ai.Provider
	log  *slog.Logger

	// CompletionTimeout bounds SuggestTitle's model call.
	CompletionTimeout time.Duration
	Now               func() time.Time
}

func NewService(repo Repository, provider ai.Provider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, ai: provider, log: log, CompletionTimeout: 30 * time.Second, Now: time.Now}
}

// parseTime accepts the ISO forms browsers send. Empty means unset.
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: bad time %q", ErrInvalid, s)
}

func (r SaveRequest) record() (*Record, error) {
	if strings.TrimSpace(r.SessionID) == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalid)
	}
	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalid)
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleModel {
			return nil, fmt.Errorf("%w: message %d has role %q", ErrInvalid, i, m.Role)
		}
		if len(m.Parts) == 0 {
			return nil, fmt.Errorf("%w: message %d has no parts", ErrInvalid, i)
		}
	}
	start, err := parseTime(r.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(r.EndTime)
	if err != nil {
		return nil, err
	}
	return &Record{
		SessionID: r.SessionID,
		UserID:    r.UserID,
		BotID:     r.BotID,
		StartTime: start,
		EndTime:   end,
		Messages:  r.Messages,
		Titulo:    strings.TrimSpace(r.Titulo),
	}, nil
}

// Save upserts the full transcript and returns the store that accepted it.
func (s *Service) Save(ctx context.Context, req SaveRequest) (string, error) {
	rec, err := req.record()
	if err != nil {
		return "", err
	}
	rec.LoggedAt = s.Now().UTC()

	storage, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return storage, fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	s.log.Debug("session saved", "session_id", rec.SessionID, "storage", storage, "messages", len(rec.Messages))
	return storage, nil
}

// NormalizeQuery applies the defaults and bounds for List.
func NormalizeQuery(limit int, sortBy, order string) ListQuery {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if _, ok := sortColumns[sortBy]; !ok {
		sortBy = SortStartTime
	}
	return ListQuery{
		Limit:  limit,
		SortBy: sortBy,
		Desc:   !strings.EqualFold(strings.TrimSpace(order), "asc"),
	}
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Summary, string, error) {
	recs, src, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, src, err
	}
	out := make([]Summary, 0, len(recs))
	for i := range recs {
		out = append(out, Summarize(&recs[i]))
	}
	return out, src, nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Record, string, error) {
	return s.repo.Get(ctx, sessionID)
}

func (s *Service) Remove(ctx context.Context, sessionID string) (string, error) {
	return s.repo.Delete(ctx, sessionID)
}

func (s *Service) UpdateTitle(ctx context.Context, sessionID, titulo string) (string, error) {
	titulo = strings.TrimSpace(titulo)
	if titulo == "" {
		return "", ErrTitleRequired
	}
	return s.repo.UpdateTitle(ctx, sessionID, titulo)
}

// SuggestTitle asks the model for a short title. Nothing is stored.
func (s *Service) SuggestTitle(ctx context.Context, sessionID string) (string, error) {
	rec, _, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(rec.Messages) == 0 {
		return "", fmt.Errorf("%w: session has no messages", ErrInvalid)
	}
	if s.ai == nil {
		return "", fmt.Errorf("suggest title: no completion provider")
	}

	first := rec.Messages[0].Text()
	last := rec.Messages[len(rec.Messages)-1].Text()
	prompt := fmt.Sprintf(`Analise esta conversa e sugira um título curto e descritivo (máximo 50 caracteres).

Primeira mensagem da conversa:
"%s"

Última mensagem da conversa:
"%s"

Total de mensagens: %d

Responda APENAS com o título sugerido, sem explicações ou formatações adicionais.`,
		first, last, len(rec.Messages))

	cctx, cancel := ctx, context.CancelFunc(func() {})
	if s.CompletionTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, s.CompletionTimeout)
	}
	defer cancel()

	reply, err := s.ai.Chat(cctx, []ai.Message{{Role: ai.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("suggest title: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Stats counts in the store and loads only the most recently logged sessions.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	totals, _, err := s.repo.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	recs, _, err := s.repo.List(ctx, ListQuery{Limit: recentStats, SortBy: SortLoggedAt, Desc: true})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		TotalConversas:   totals.Sessions,
		TotalMensagens:   totals.Messages,
		UltimasConversas: make([]Summary, 0, len(recs)),
	}
	for i := range recs {
		st.UltimasConversas = append(st.UltimasConversas, Summarize(&recs[i]))
	}
	return st, nil
}

func Summarize(r *Record) Summary {
	sum := Summary{
		SessionID:    r.SessionID,
		BotID:        r.BotID,
		Titulo:       r.Titulo,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		MessageCount: len(r.Messages),
		Preview:      noMessages,
		LoggedAt:     r.LoggedAt,
	}
	if r.StartTime != nil && r.EndTime != nil {
		sum.Duration = int64(math.Round(r.EndTime.Sub(*r.StartTime).Seconds()))
	}
	if len(r.Messages) > 0 {
		sum.Preview = preview(r.Messages[0].Text())
	}
	return sum
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes) + "..."
}
