package history

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Failover tries Primary and falls back to File per call. A nil Primary goes
// straight to the file. The fallback is never sticky: the next call tries the
// primary again.
type Failover struct {
	Primary Store
	File    Store
	// Timeout bounds each primary call. Zero means no extra bound.
	Timeout time.Duration
	Log     *slog.Logger
}

func NewFailover(primary, file Store, timeout time.Duration, log *slog.Logger) *Failover {
	if log == nil {
		log = slog.Default()
	}
	return &Failover{Primary: primary, File: file, Timeout: timeout, Log: log}
}

// do runs fn on the primary and then on the file. A primary ErrNotFound is
// final unless lookInFile is set, since records saved during an outage only
// exist in the file.
func (f *Failover) do(ctx context.Context, op string, lookInFile bool, fn func(context.Context, Store) error) (string, error) {
	if f.Primary != nil {
		pctx, cancel := ctx, context.CancelFunc(func() {})
		if f.Timeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, f.Timeout)
		}
		err := fn(pctx, f.Primary)
		cancel()

		switch {
		case err == nil:
			return f.Primary.Name(), nil
		case errors.Is(err, ErrNotFound):
			if !lookInFile {
				return f.Primary.Name(), err
			}
		default:
			f.Log.Warn("primary history store failed, using local file",
				"op", op, "store", f.Primary.Name(), "err", err)
		}
	}

	if err := fn(ctx, f.File); err != nil {
		return f.File.Name(), err
	}
	return f.File.Name(), nil
}

func (f *Failover) Upsert(ctx context.Context, rec *Record) (string, error) {
	return f.do(ctx, "upsert", false, func(ctx context.Context, s Store) error {
		return s.Upsert(ctx, rec)
	})
}

func (f *Failover) List(ctx context.Context, q ListQuery) ([]Record, string, error) {
	var out []Record
	src, err := f.do(ctx, "list", false, func(ctx context.Context, s Store) error {
		recs, err := s.List(ctx, q)
		out = recs
		return err
	})
	return out, src, err
}

func (f *Failover) Get(ctx context.Context, sessionID string) (*Record, string, error) {
	var out *Record
	src, err := f.do(ctx, "get", true, func(ctx context.Context, s Store) error {
		rec, err := s.Get(ctx, sessionID)
		out = rec
		return err
	})
	return out, src, err
}

func (f *Failover) Delete(ctx context.Context, sessionID string) (string, error) {
	return f.do(ctx, "delete", true, func(ctx context.Context, s Store) error {
		return s.Delete(ctx, sessionID)
	})
}

func (f *Failover) UpdateTitle(ctx context.Context, sessionID, titulo string) (string, error) {
	return f.do(ctx, "update_title", true, func(ctx context.Context, s Store) error {
		return s.UpdateTitle(ctx, sessionID, titulo)
	})
}

func (f *Failover) Count(ctx context.Context) (Totals, string, error) {
	var out Totals
	src, err := f.do(ctx, "count", false, func(ctx context.Context, s Store) error {
		t, err := s.Count(ctx)
		out = t
		return err
	})
	return out, src, err
}
