package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/mestreprognosticos/chatbot/internal/ai"
	"github.com/mestreprognosticos/chatbot/internal/auth"
	"github.com/mestreprognosticos/chatbot/internal/chat"
	"github.com/mestreprognosticos/chatbot/internal/config"
	"github.com/mestreprognosticos/chatbot/internal/history"
	"github.com/mestreprognosticos/chatbot/internal/httpapi/handlers"
	"github.com/mestreprognosticos/chatbot/internal/ranking"
	"github.com/mestreprognosticos/chatbot/internal/settings"
	"gorm.io/gorm"
)

type echoProvider struct {
	mu    sync.Mutex
	calls [][]ai.Message
}

func (p *echoProvider) Chat(_ context.Context, m []ai.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]ai.Message(nil), m...))
	return fmt.Sprintf("resposta %d", len(p.calls)), nil
}

type memThrottle struct {
	mu sync.Mutex
	n  map[string]int
}

func (m *memThrottle) LoginFailures(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n[id], nil
}

func (m *memThrottle) IncrLoginFailure(_ context.Context, id string, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n[id]++
	return m.n[id], nil
}

func (m *memThrottle) ResetLoginFailures(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.n, id)
	return nil
}

type testEnv struct {
	r        *gin.Engine
	provider *echoProvider
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&settings.Entry{}, &history.Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Load()
	cfg.LoginMaxFailures = 3
	cfg.LoginFailureWindow = time.Minute
	cfg.AdminTokenTTL = time.Hour
	cfg.TrustedProxies = nil
	for _, o := range opts {
		o(&cfg)
	}

	p := &echoProvider{}
	st := settings.NewRepo(db)
	gate := auth.NewGate(st, nil)
	repo := history.NewFailover(history.NewGormStore(db),
		history.NewFileStore(filepath.Join(t.TempDir(), "h.json"), 100), time.Second, nil)

	h := &handlers.Handler{
		Cfg:      cfg,
		Chat:     chat.NewOrchestrator(p, st, nil, nil),
		History:  history.NewService(repo, p, nil),
		Settings: st,
		Gate:     gate,
		Ranking:  ranking.NewBoard(),
		Throttle: &memThrottle{n: map[string]int{}},
		Checks:   []handlers.StatusCheck{{Name: "redis"}},
	}
	return &testEnv{r: NewRouter(h, gate, nil), provider: p}
}

func (e *testEnv) do(t *testing.T, method, path, authz string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) (int, map[string]any) {
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func loginWithForwardedFor(e *testEnv, password, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", xff)
	code, _ := e.serve(req)
	return code
}

func TestChatEndpoint_KeepsContext(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, http.MethodPost, "/api/chat", "", gin.H{"message": "oi", "sessionId": "s1"})
	if code != http.StatusOK || body["message"] != "resposta 1" {
		t.Fatalf("unexpected first reply %d %v", code, body)
	}
	_, _ = e.do(t, http.MethodPost, "/api/chat", "", gin.H{"message": "e agora?", "sessionId": "s1"})

	last := e.provider.calls[len(e.provider.calls)-1]
	if len(last) != 3 || last[0].Content != "oi" || last[1].Content != "resposta 1" {
		t.Fatalf("second call lacks first exchange: %+v", last)
	}

	code, _ = e.do(t, http.MethodPost, "/api/clear-chat", "", gin.H{"sessionId": "s1"})
	if code != http.StatusOK {
		t.Fatalf("clear: %d", code)
	}
	code, _ = e.do(t, http.MethodPost, "/api/chat", "", gin.H{"sessionId": "s1"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", code)
	}
}

func TestAdminFlow(t *testing.T) {
	e := newTestEnv(t)

	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 before setup, got %d", code)
	}
	if _, body := e.do(t, http.MethodGet, "/api/admin/exists", "", nil); body["exists"] != false {
		t.Fatalf("expected exists=false, got %v", body)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "abc"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short secret, got %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "segredo1"}); code != http.StatusOK {
		t.Fatalf("setup: %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "outro123"}); code != http.StatusConflict {
		t.Fatalf("expected 409 on second setup, got %d", code)
	}

	if code, _ := e.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"password": "errada"}); code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad password, got %d", code)
	}
	code, body := e.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"password": "segredo1"})
	token, _ := body["token"].(string)
	if code != http.StatusOK || token == "" {
		t.Fatalf("login: %d %v", code, body)
	}

	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "", nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 without header, got %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "Bearer "+token, nil); code != http.StatusOK {
		t.Fatalf("bearer access: %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "segredo1", nil); code != http.StatusOK {
		t.Fatalf("legacy access: %d", code)
	}

	// rotation invalidates the token and the old raw secret
	if code, _ := e.do(t, http.MethodPut, "/api/admin/secret", "Bearer "+token, gin.H{"password": "novo-segredo"}); code != http.StatusOK {
		t.Fatalf("rotate: %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "Bearer "+token, nil); code != http.StatusForbidden {
		t.Fatalf("old token still valid: %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos", "segredo1", nil); code != http.StatusForbidden {
		t.Fatalf("old secret still valid: %d", code)
	}

	// system instruction round trip
	authz := "novo-segredo"
	if code, _ := e.do(t, http.MethodPost, "/api/admin/system-instruction", authz, gin.H{"instruction": ""}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty instruction, got %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/system-instruction", authz, gin.H{"instruction": "Seja breve."}); code != http.StatusOK {
		t.Fatalf("set instruction: %d", code)
	}
	if _, body := e.do(t, http.MethodGet, "/api/admin/system-instruction", authz, nil); body["instruction"] != "Seja breve." {
		t.Fatalf("unexpected instruction %v", body)
	}
	_, _ = e.do(t, http.MethodPost, "/api/chat", "", gin.H{"message": "oi", "sessionId": "x"})
	last := e.provider.calls[len(e.provider.calls)-1]
	if last[len(last)-1].Content != "Seja breve.\nUsuário: oi" {
		t.Fatalf("chat ignored configured instruction: %q", last[len(last)-1].Content)
	}
}

func TestAdminLoginThrottle(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "segredo1"})

	for i := 0; i < 3; i++ {
		if code, _ := e.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"password": "errada"}); code != http.StatusForbidden {
			t.Fatalf("attempt %d: expected 403, got %d", i, code)
		}
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"password": "segredo1"}); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after too many failures, got %d", code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "segredo1"})
	authz := "segredo1"

	if code, _ := e.do(t, http.MethodPost, "/api/chat/salvar-historico", "", gin.H{"sessionId": "s1", "messages": []any{}}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty messages, got %d", code)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		st := base.Add(time.Duration(i) * time.Hour)
		code, body := e.do(t, http.MethodPost, "/api/chat/salvar-historico", "", gin.H{
			"sessionId": id,
			"botId":     "mestre",
			"startTime": st.Format(time.RFC3339Nano),
			"endTime":   st.Add(time.Minute).Format(time.RFC3339Nano),
			"messages": []gin.H{
				{"role": "user", "parts": []gin.H{{"text": "oi " + id}}, "timestamp": st.Format(time.RFC3339)},
				{"role": "model", "parts": []gin.H{{"text": "olá"}}},
			},
		})
		if code != http.StatusOK || body["storage"] != "sqlite" {
			t.Fatalf("save %s: %d %v", id, code, body)
		}
	}

	code, body := e.do(t, http.MethodGet, "/api/chat/historicos?limit=2&sortBy=startTime&order=desc", authz, nil)
	sessions, _ := body["sessions"].([]any)
	if code != http.StatusOK || len(sessions) != 2 {
		t.Fatalf("list: %d %v", code, body)
	}
	first := sessions[0].(map[string]any)
	if first["sessionId"] != "s3" || first["messageCount"] != float64(2) || first["duration"] != float64(60) {
		t.Fatalf("unexpected first summary %v", first)
	}
	if !strings.HasPrefix(first["preview"].(string), "oi s3") {
		t.Fatalf("unexpected preview %v", first["preview"])
	}

	code, body = e.do(t, http.MethodGet, "/api/chat/historicos/s2", authz, nil)
	if code != http.StatusOK || body["session"].(map[string]any)["sessionId"] != "s2" {
		t.Fatalf("get: %d %v", code, body)
	}

	if code, _ := e.do(t, http.MethodPut, "/api/chat/historicos/s2/atualizar-titulo", authz, gin.H{"titulo": ""}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty titulo, got %d", code)
	}
	if code, _ := e.do(t, http.MethodPut, "/api/chat/historicos/s2/atualizar-titulo", authz, gin.H{"titulo": "Clássico"}); code != http.StatusOK {
		t.Fatalf("update title: %d", code)
	}
	_, body = e.do(t, http.MethodGet, "/api/chat/historicos/s2", authz, nil)
	if body["session"].(map[string]any)["titulo"] != "Clássico" {
		t.Fatalf("titulo not updated: %v", body)
	}

	code, body = e.do(t, http.MethodGet, "/api/chat/historicos/s2/gerar-titulo", authz, nil)
	if code != http.StatusOK || body["tituloSugerido"] == "" {
		t.Fatalf("suggest: %d %v", code, body)
	}

	_, body = e.do(t, http.MethodGet, "/api/admin/stats", authz, nil)
	if body["totalConversas"] != float64(3) || body["totalMensagens"] != float64(6) {
		t.Fatalf("unexpected stats %v", body)
	}

	if code, _ := e.do(t, http.MethodDelete, "/api/chat/historicos/s2", authz, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := e.do(t, http.MethodDelete, "/api/chat/historicos/s2", authz, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/chat/historicos/s2", authz, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestMiscEndpoints(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, http.MethodPost, "/api/ranking/registrar-acesso-bot", "", gin.H{"botId": "b1", "nomeBot": "Mestre"})
	if code != http.StatusCreated || len(body["ranking"].([]any)) != 1 {
		t.Fatalf("ranking register: %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/ranking/registrar-acesso-bot", "", gin.H{"botId": "b1"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without nomeBot, got %d", code)
	}

	if code, _ := e.do(t, http.MethodPost, "/api/log-connection", "", gin.H{"ip": "10.0.0.1", "acao": "acesso_inicial"}); code != http.StatusOK {
		t.Fatalf("log connection: %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/log-connection", "", gin.H{"acao": "acesso_inicial"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ip, got %d", code)
	}

	code, body = e.do(t, http.MethodGet, "/api/status", "", nil)
	if code != http.StatusOK || body["components"].(map[string]any)["redis"] != "disabled" {
		t.Fatalf("status: %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/ping", "", nil); code != http.StatusOK {
		t.Fatalf("ping: %d", code)
	}
	if code, body := e.do(t, http.MethodGet, "/nope", "", nil); code != http.StatusNotFound || body["success"] != false {
		t.Fatalf("no route: %d %v", code, body)
	}
}

func TestAdminLoginThrottle_IgnoresForwardedFor(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "segredo1"})

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, loginWithForwardedFor(e, "errada", fmt.Sprintf("10.0.0.%d", i)))
	}
	for i, code := range codes {
		want := http.StatusForbidden
		if i >= 3 {
			want = http.StatusTooManyRequests
		}
		if code != want {
			t.Fatalf("attempt %d: expected %d, got %d (all: %v)", i, want, code, codes)
		}
	}
}

func TestAdminLoginThrottle_TrustedProxyForwardsClientIP(t *testing.T) {
	// httptest requests come from 192.0.2.1
	e := newTestEnv(t, func(c *config.Config) { c.TrustedProxies = []string{"192.0.2.1"} })
	_, _ = e.do(t, http.MethodPost, "/api/admin/setup", "", gin.H{"password": "segredo1"})

	for i := 0; i < 3; i++ {
		_ = loginWithForwardedFor(e, "errada", "203.0.113.7")
	}
	if code := loginWithForwardedFor(e, "segredo1", "203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for the throttled client, got %d", code)
	}
	if code := loginWithForwardedFor(e, "segredo1", "203.0.113.8"); code != http.StatusOK {
		t.Fatalf("expected another client behind the proxy to log in, got %d", code)
	}
}

func TestBodyLimit(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.MaxBodyBytes = 256 })

	big := strings.Repeat("a", 1024)
	code, body := e.do(t, http.MethodPost, "/api/chat/salvar-historico", "", gin.H{
		"sessionId": "s1",
		"messages":  []gin.H{{"role": "user", "parts": []gin.H{{"text": big}}}},
	})
	if code != http.StatusRequestEntityTooLarge || body["success"] != false {
		t.Fatalf("expected 413, got %d %v", code, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", io.MultiReader(strings.NewReader(`{"message":"`+big+`","sessionId":"s1"}`)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	if code, _ := e.serve(req); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversize chunked body, got %d", code)
	}
	if len(e.provider.calls) != 0 {
		t.Fatalf("oversize body reached the provider")
	}
}

var errStoreDown = errors.New("connection refused")

type brokenSettings struct{}

func (brokenSettings) Get(context.Context, string) (string, error)       { return "", errStoreDown }
func (brokenSettings) Set(context.Context, string, string) error         { return errStoreDown }
func (brokenSettings) SetIfAbsent(context.Context, string, string) error { return errStoreDown }

func TestAdminExists_StoreError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := brokenSettings{}
	gate := auth.NewGate(st, nil)
	h := &handlers.Handler{Cfg: config.Load(), Settings: st, Gate: gate}
	e := &testEnv{r: NewRouter(h, gate, nil)}

	code, body := e.do(t, http.MethodGet, "/api/admin/exists", "", nil)
	if code != http.StatusServiceUnavailable || body["exists"] != nil {
		t.Fatalf("expected 503 without an exists flag, got %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"password": "segredo1"}); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on login while the store is down, got %d", code)
	}
}
