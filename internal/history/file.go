package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
)

const FileStoreName = "local_file"

// FileStore keeps every record in one JSON array on disk. All operations are
// serialized by a single mutex and the file is replaced atomically, so
// concurrent saves never lose each other's writes.
type FileStore struct {
	path string
	max  int

	mu sync.Mutex
}

// NewFileStore caps the array at max records, newest first. max <= 0 disables
// the cap.
func NewFileStore(path string, max int) *FileStore {
	return &FileStore{path: path, max: max}
}

func (s *FileStore) Name() string { return FileStoreName }

func (s *FileStore) load() ([]Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return recs, nil
}

func (s *FileStore) store(recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return atomicwriter.WriteFile(s.path, b, 0o644)
}

func indexOf(recs []Record, sessionID string) int {
	for i := range recs {
		if recs[i].SessionID == sessionID {
			return i
		}
	}
	return -1
}

func (s *FileStore) Upsert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}

	next := *rec
	if i := indexOf(recs, rec.SessionID); i >= 0 {
		if next.Titulo == "" {
			next.Titulo = recs[i].Titulo
		}
		recs[i] = next
	} else {
		recs = append([]Record{next}, recs...)
		if s.max > 0 && len(recs) > s.max {
			recs = recs[:s.max]
		}
	}
	return s.store(recs)
}

func (s *FileStore) List(_ context.Context, q ListQuery) ([]Record, error) {
	s.mu.Lock()
	recs, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sortRecords(recs, q.SortBy, q.Desc)
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return recs, nil
}

func (s *FileStore) Count(_ context.Context) (Totals, error) {
	s.mu.Lock()
	recs, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Sessions: len(recs)}
	for i := range recs {
		t.Messages += len(recs[i].Messages)
	}
	return t, nil
}

func (s *FileStore) Get(_ context.Context, sessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(recs, sessionID)
	if i < 0 {
		return nil, ErrNotFound
	}
	return &recs[i], nil
}

func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(recs, sessionID)
	if i < 0 {
		return ErrNotFound
	}
	recs = append(recs[:i], recs[i+1:]...)
	return s.store(recs)
}

func (s *FileStore) UpdateTitle(_ context.Context, sessionID, titulo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(recs, sessionID)
	if i < 0 {
		return ErrNotFound
	}
	recs[i].Titulo = titulo
	return s.store(recs)
}

// sortRecords orders in place. Missing start/end times sort by loggedAt.
func sortRecords(recs []Record, sortBy string, desc bool) {
	less := func(a, b *Record) bool {
		switch sortBy {
		case SortSessionID:
			return a.SessionID < b.SessionID
		case SortBotID:
			return a.BotID < b.BotID
		case SortLoggedAt:
			return a.LoggedAt.Before(b.LoggedAt)
		case SortEndTime:
			return timeOr(a.EndTime, a).Before(timeOr(b.EndTime, b))
		default:
			return timeOr(a.StartTime, a).Before(timeOr(b.StartTime, b))
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if desc {
			return less(&recs[j], &recs[i])
		}
		return less(&recs[i], &recs[j])
	})
}

func timeOr(t *time.Time, r *Record) time.Time {
	if t != nil {
		return *t
	}
	return r.LoggedAt
}
