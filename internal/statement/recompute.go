package statement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancete/internal/cache"
	"balancete/internal/core"
)

// Recomputer serves cached draft statements and keeps them fresh as the
// ledger changes. Change notifications are debounced per period, and
// every rebuild carries a request identity so a superseded rebuild can
// never overwrite a newer one's result.
type Recomputer struct {
	builder  *Builder
	drafts   *cache.LRUCache[core.PeriodStatement]
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	// onResult, when set, receives every rebuild result that was still
	// current on completion. The archive worker hooks re-archival here.
	onResult func(core.PeriodStatement)

	mu      sync.Mutex
	pending map[core.Period]*time.Timer
	current map[core.Period]uuid.UUID
}

// NewRecomputer wires a recompute coordinator over a builder. A zero
// debounce applies changes immediately; a non-positive timeout falls
// back to 30s; onResult may be nil.
func NewRecomputer(builder *Builder, debounce, timeout time.Duration, onResult func(core.PeriodStatement), logger *slog.Logger) *Recomputer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Recomputer{
		builder:  builder,
		drafts:   cache.NewLRUCache[core.PeriodStatement](64, 5*time.Minute),
		debounce: debounce,
		timeout:  timeout,
		logger:   logger,
		onResult: onResult,
		pending:  make(map[core.Period]*time.Timer),
		current:  make(map[core.Period]uuid.UUID),
	}
}

func periodKey(p core.Period) string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Statement returns the draft statement for a period, from cache when
// fresh, rebuilding otherwise.
func (r *Recomputer) Statement(ctx context.Context, p core.Period) (core.PeriodStatement, error) {
	if st, ok := r.drafts.Get(periodKey(p)); ok {
		return st, nil
	}
	st, err := r.builder.Build(ctx, p)
	if err != nil {
		return core.PeriodStatement{}, err
	}
	r.drafts.Set(periodKey(p), st)
	return st, nil
}

// LedgerChanged invalidates cached drafts touched by an entry dated in
// the given period and schedules a debounced rebuild. Bursts of changes
// to the same period collapse into a single recomputation.
func (r *Recomputer) LedgerChanged(p core.Period) {
	// A changed entry shifts both its month and the enclosing year
	// (and the carry-forward of everything after, which the TTL covers).
	r.drafts.Delete(periodKey(p))
	r.drafts.Delete(periodKey(core.Period{Year: p.Year}))

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pending[p]; ok {
		t.Stop()
	}
	if r.debounce <= 0 {
		go r.rebuild(p)
		return
	}
	r.pending[p] = time.AfterFunc(r.debounce, func() { r.rebuild(p) })
}

// rebuild recomputes a period and publishes the result unless a newer
// rebuild for the same period started in the meantime.
func (r *Recomputer) rebuild(p core.Period) {
	id := uuid.New()
	r.mu.Lock()
	delete(r.pending, p)
	r.current[p] = id
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	st, err := r.builder.Build(ctx, p)

	r.mu.Lock()
	stale := r.current[p] != id
	if !stale {
		delete(r.current, p)
	}
	r.mu.Unlock()

	if stale {
		r.logger.Debug("discarding superseded recomputation",
			"year", p.Year, "month", p.Month, "request_id", id.String())
		return
	}
	if err != nil {
		r.logger.Error("recomputation failed",
			"year", p.Year, "month", p.Month, "error", err)
		return
	}

	r.drafts.Set(periodKey(p), st)
	if r.onResult != nil {
		r.onResult(st)
	}
}

// Flush waits out any pending debounce timers. Test helper.
func (r *Recomputer) Flush() {
	for {
		r.mu.Lock()
		n := len(r.pending)
		r.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
