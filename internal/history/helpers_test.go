package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/mestreprognosticos/chatbot/internal/ai"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func msgs(texts ...string) []Message {
	out := make([]Message, 0, len(texts))
	for i, txt := range texts {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		out = append(out, Message{Role: role, Parts: []Part{{Text: txt}}, Timestamp: "2026-01-01T10:00:00.000Z"})
	}
	return out
}

func iso(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

type fakeProvider struct {
	mu    sync.Mutex
	calls [][]ai.Message
	reply string
	err   error
}

func (p *fakeProvider) Chat(_ context.Context, m []ai.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := append([]ai.Message(nil), m...)
	p.calls = append(p.calls, cp)
	return p.reply, p.err
}

// brokenStore fails every call, optionally after blocking until ctx ends.
type brokenStore struct {
	block bool
	calls int
}

func (b *brokenStore) Name() string { return "broken" }

func (b *brokenStore) fail(ctx context.Context) error {
	b.calls++
	if b.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return fmt.Errorf("connection refused")
}

func (b *brokenStore) Upsert(ctx context.Context, _ *Record) error { return b.fail(ctx) }
func (b *brokenStore) List(ctx context.Context, _ ListQuery) ([]Record, error) {
	return nil, b.fail(ctx)
}
func (b *brokenStore) Get(ctx context.Context, _ string) (*Record, error) { return nil, b.fail(ctx) }
func (b *brokenStore) Delete(ctx context.Context, _ string) error         { return b.fail(ctx) }
func (b *brokenStore) UpdateTitle(ctx context.Context, _, _ string) error { return b.fail(ctx) }
func (b *brokenStore) Count(ctx context.Context) (Totals, error)          { return Totals{}, b.fail(ctx) }
