// Package ranking counts bot accesses for the showcase ranking. The board
// lives in memory and is lost on restart.
package ranking

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrInvalid = errors.New("ranking: botId and nomeBot are required")

type Entry struct {
	BotID        string    `json:"botId"`
	NomeBot      string    `json:"nomeBot"`
	Contagem     int       `json:"contagem"`
	UltimoAcesso time.Time `json:"ultimoAcesso"`
}

type Board struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewBoard() *Board {
	return &Board{entries: make(map[string]*Entry)}
}

// Register counts one access to botID and returns the ranking after it.
// The first name seen for a bot is kept.
func (b *Board) Register(botID, nomeBot string, at time.Time) ([]Entry, error) {
	if botID == "" || nomeBot == "" {
		return nil, ErrInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[botID]
	if !ok {
		e = &Entry{BotID: botID, NomeBot: nomeBot}
		b.entries[botID] = e
	}
	e.Contagem++
	e.UltimoAcesso = at
	return b.snapshot(), nil
}

func (b *Board) List() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// snapshot sorts by contagem desc, then by most recent access.
func (b *Board) snapshot() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Contagem != out[j].Contagem {
			return out[i].Contagem > out[j].Contagem
		}
		return out[i].UltimoAcesso.After(out[j].UltimoAcesso)
	})
	return out
}
