package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"balancete/internal/amqp"
	"balancete/internal/classify"
	"balancete/internal/core"
	"balancete/internal/ledger"
	"balancete/internal/publish/memory"
	"balancete/internal/statement"
)

// fakeStore is shared by concurrent month and year rebuilds, so every
// method locks.
type fakeStore struct {
	mu        sync.Mutex
	entries   []core.LedgerEntry
	snapshots []core.InvestmentSnapshot
	archived  map[core.Period]core.PeriodStatement
}

func newFakeStore() *fakeStore {
	return &fakeStore{archived: make(map[core.Period]core.PeriodStatement)}
}

func (f *fakeStore) addEntry(e core.LedgerEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeStore) archivedFor(p core.Period) (core.PeriodStatement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.archived[p]
	return st, ok
}

func (f *fakeStore) archivedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.archived)
}

func (f *fakeStore) EntriesBetween(_ context.Context, from, to core.Date) ([]core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if !e.Date.Before(from.Time) && !e.Date.After(to.Time) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) BalanceBefore(_ context.Context, before core.Date) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.Date.Before(before.Time) {
			sum += e.SignedCents()
		}
	}
	return core.Money{Cents: sum}, nil
}

func (f *fakeStore) Snapshots(_ context.Context) ([]core.InvestmentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots, nil
}

func (f *fakeStore) SaveStatement(_ context.Context, st core.PeriodStatement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived[st.Period] = st
	return nil
}

func (f *fakeStore) ArchivedStatement(_ context.Context, p core.Period) (core.PeriodStatement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.archived[p]
	if !ok {
		return core.PeriodStatement{}, statement.ErrNotArchived
	}
	return st, nil
}

// replaySource hands a fixed batch of messages to the handler.
type replaySource struct {
	msgs []*amqp.LedgerChangedMessage
}

func (s *replaySource) ConsumeLedgerChanged(_ context.Context, handler func(*amqp.LedgerChangedMessage) error) error {
	for _, m := range s.msgs {
		if err := handler(m); err != nil {
			return err
		}
	}
	return nil
}

func newTestWorker(store *fakeStore, source ChangeSource, pub *memory.Publisher) *Worker {
	agg := ledger.NewAggregator(store, classify.Default(), nil)
	builder := statement.NewBuilder(agg, store, store, nil)
	return New(builder, source, pub, 0, 0, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWorkerArchivesAndPublishesOnChange(t *testing.T) {
	store := newFakeStore()
	store.addEntry(core.LedgerEntry{
		ID:          "e-1",
		Date:        core.NewDate(2025, 3, 12),
		Amount:      core.Money{Cents: 25000},
		Direction:   core.Credit,
		Description: "taxa condominial marco",
	})

	pub := memory.New()
	source := &replaySource{msgs: []*amqp.LedgerChangedMessage{
		amqp.NewLedgerChangedMessage("e-1", core.NewDate(2025, 3, 12)),
	}}
	w := newTestWorker(store, source, pub)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One event touches the month and the enclosing year.
	waitFor(t, func() bool { return pub.Count() == 2 })

	monthly, ok := store.archivedFor(core.Period{Year: 2025, Month: 3})
	if !ok {
		t.Fatal("monthly statement not archived")
	}
	if monthly.ClosingBalance.Cents != 25000 {
		t.Errorf("monthly closing = %d, want 25000", monthly.ClosingBalance.Cents)
	}
	if _, ok := store.archivedFor(core.Period{Year: 2025}); !ok {
		t.Error("yearly statement not archived")
	}

	report, ok := pub.Published("Março/2025")
	if !ok {
		t.Fatal("monthly report not published")
	}
	if report.CurrentBalanceCents != 25000 {
		t.Errorf("published closing = %d, want 25000", report.CurrentBalanceCents)
	}
}

func TestWorkerDropsInvalidPeriod(t *testing.T) {
	store := newFakeStore()
	pub := memory.New()
	source := &replaySource{msgs: []*amqp.LedgerChangedMessage{
		{EntryID: "e-x", Year: 2025, Month: 13},
	}}
	w := newTestWorker(store, source, pub)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	w.Flush()

	time.Sleep(50 * time.Millisecond)
	if pub.Count() != 0 {
		t.Errorf("published = %d, want 0", pub.Count())
	}
	if store.archivedCount() != 0 {
		t.Errorf("archived = %d, want 0", store.archivedCount())
	}
}

func TestWorkerCollapsesBursts(t *testing.T) {
	store := newFakeStore()
	store.addEntry(core.LedgerEntry{
		ID:          "e-1",
		Date:        core.NewDate(2025, 3, 12),
		Amount:      core.Money{Cents: 25000},
		Direction:   core.Credit,
		Description: "taxa condominial marco",
	})

	pub := memory.New()
	var msgs []*amqp.LedgerChangedMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, amqp.NewLedgerChangedMessage("e-1", core.NewDate(2025, 3, 12)))
	}
	source := &replaySource{msgs: msgs}

	agg := ledger.NewAggregator(store, classify.Default(), nil)
	builder := statement.NewBuilder(agg, store, store, nil)
	w := New(builder, source, pub, 50*time.Millisecond, 0, nil)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	w.Flush()

	waitFor(t, func() bool { return pub.Count() == 2 })

	// Debounce collapsed the burst into one archive per period.
	if store.archivedCount() != 2 {
		t.Errorf("archived periods = %d, want 2", store.archivedCount())
	}
}
