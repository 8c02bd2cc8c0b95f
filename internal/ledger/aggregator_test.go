package ledger

import (
	"context"
	"errors"
	"testing"

	"balancete/internal/classify"
	"balancete/internal/core"
)

// fakeSource serves entries from a slice, computing BalanceBefore the
// same way the SQL store does.
type fakeSource struct {
	entries    []core.LedgerEntry
	entriesErr error
	balanceErr error
}

func (f *fakeSource) EntriesBetween(_ context.Context, from, to core.Date) ([]core.LedgerEntry, error) {
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if !e.Date.Before(from.Time) && !e.Date.After(to.Time) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) BalanceBefore(_ context.Context, before core.Date) (core.Money, error) {
	if f.balanceErr != nil {
		return core.Money{}, f.balanceErr
	}
	var sum int64
	for _, e := range f.entries {
		if e.Date.Before(before.Time) {
			sum += e.SignedCents()
		}
	}
	return core.Money{Cents: sum}, nil
}

func debit(date core.Date, cents int64, description string) core.LedgerEntry {
	return core.LedgerEntry{
		ID: description, Date: date,
		Amount: core.Money{Cents: cents}, Direction: core.Debit,
		Description: description,
	}
}

func credit(date core.Date, cents int64, description string) core.LedgerEntry {
	e := debit(date, cents, description)
	e.Direction = core.Credit
	return e
}

func newAggregator(src EntrySource) *Aggregator {
	return NewAggregator(src, classify.Default(), nil)
}

func marchWindow() Window {
	return PeriodWindow(core.Period{Year: 2025, Month: 3})
}

// Scenario A: opening 1000.00, debits CEMIG 100.00, DMAE agua 50.00 and
// outro 30.00 give closing 820.00 with the expected category split.
func TestAggregateCategorizedDebits(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		credit(core.NewDate(2025, 1, 10), 100000, "taxa condominial janeiro"),
		debit(core.NewDate(2025, 3, 5), 10000, "CEMIG"),
		debit(core.NewDate(2025, 3, 12), 5000, "DMAE agua"),
		debit(core.NewDate(2025, 3, 20), 3000, "outro"),
	}}

	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.OpeningBalance.Cents != 100000 {
		t.Fatalf("opening = %d, want 100000", res.OpeningBalance.Cents)
	}
	if got := res.ClosingBalance().Cents; got != 82000 {
		t.Fatalf("closing = %d, want 82000", got)
	}
	want := map[core.Category]int64{
		core.CategoryWater:  5000,
		core.CategoryEnergy: 10000,
		core.CategoryOther:  3000,
	}
	for cat, cents := range want {
		if got := res.TotalsByCategory[cat].Cents; got != cents {
			t.Fatalf("totals[%s] = %d, want %d", cat, got, cents)
		}
	}
	// Partition property: the categories sum to total debits.
	if res.TotalsByCategory.Total().Cents != res.Debits.Cents {
		t.Fatalf("category totals %d != debits %d",
			res.TotalsByCategory.Total().Cents, res.Debits.Cents)
	}
}

// Scenario C: a lone credit raises the closing balance and contributes
// nothing to the category totals.
func TestAggregateCreditsUncategorized(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		credit(core.NewDate(2025, 2, 1), 55500, "saldo anterior"),
		credit(core.NewDate(2025, 3, 10), 20000, "taxa condominial"),
	}}

	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := res.ClosingBalance().Cents; got != res.OpeningBalance.Cents+20000 {
		t.Fatalf("closing = %d, want opening+20000", got)
	}
	if len(res.TotalsByCategory) != 0 {
		t.Fatalf("credits were categorized: %v", res.TotalsByCategory)
	}
}

// Scenario D: one malformed entry among valid ones is skipped and
// counted, never fatal.
func TestAggregateSkipsMalformedEntries(t *testing.T) {
	bad := core.LedgerEntry{
		ID: "bad", Date: core.NewDate(2025, 3, 15),
		Direction: core.Debit, Description: "amount missing",
		// zero Amount fails validation
	}
	src := &fakeSource{entries: []core.LedgerEntry{
		debit(core.NewDate(2025, 3, 5), 10000, "CEMIG"),
		bad,
		debit(core.NewDate(2025, 3, 12), 5000, "DMAE agua"),
		credit(core.NewDate(2025, 3, 20), 7000, "taxa"),
	}}

	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.SkippedCount != 1 {
		t.Fatalf("skipped = %d, want 1", res.SkippedCount)
	}
	if res.Debits.Cents != 15000 || res.Credits.Cents != 7000 {
		t.Fatalf("sums = %d/%d, want 15000/7000", res.Debits.Cents, res.Credits.Cents)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(res.Entries))
	}
}

// Entries before the window start never appear in the window but are
// fully reflected in the opening balance.
func TestAggregateCarryForwardBoundary(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		credit(core.NewDate(2025, 2, 28), 40000, "fevereiro"),
		debit(core.NewDate(2025, 2, 28), 15000, "CEMIG fevereiro"),
		credit(core.NewDate(2025, 3, 1), 1000, "marco dia 1"),
	}}

	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.OpeningBalance.Cents != 25000 {
		t.Fatalf("opening = %d, want 25000", res.OpeningBalance.Cents)
	}
	if len(res.Entries) != 1 || res.Entries[0].Description != "marco dia 1" {
		t.Fatalf("window entries leaked history: %+v", res.Entries)
	}
}

func TestAggregateSortsEntriesDateDescending(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		debit(core.NewDate(2025, 3, 5), 100, "a"),
		debit(core.NewDate(2025, 3, 20), 100, "b"),
		debit(core.NewDate(2025, 3, 12), 100, "c"),
	}}
	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for i := 1; i < len(res.Entries); i++ {
		if res.Entries[i].Date.After(res.Entries[i-1].Date.Time) {
			t.Fatalf("entries not date descending: %v", res.Entries)
		}
	}
}

func TestAggregateFetchErrorAborts(t *testing.T) {
	boom := errors.New("store unreachable")

	for _, tc := range []struct {
		name string
		src  *fakeSource
		op   string
	}{
		{"history query fails", &fakeSource{balanceErr: boom}, OpOpeningBalance},
		{"window query fails", &fakeSource{entriesErr: boom}, OpWindowEntries},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newAggregator(tc.src).Aggregate(context.Background(), marchWindow())
			var dfe *DataFetchError
			if !errors.As(err, &dfe) {
				t.Fatalf("want DataFetchError, got %v", err)
			}
			if dfe.Op != tc.op {
				t.Fatalf("op = %q, want %q", dfe.Op, tc.op)
			}
			if !errors.Is(err, boom) {
				t.Fatal("cause not wrapped")
			}
		})
	}
}

func TestAggregateYearWindowProducesCalendarBuckets(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		credit(core.NewDate(2025, 1, 15), 10000, "janeiro"),
		debit(core.NewDate(2025, 6, 10), 4000, "junho"),
		debit(core.NewDate(2025, 6, 20), 1000, "junho 2"),
	}}
	res, err := newAggregator(src).Aggregate(context.Background(), PeriodWindow(core.Period{Year: 2025}))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(res.Buckets) != 12 {
		t.Fatalf("buckets = %d, want 12", len(res.Buckets))
	}
	if res.Buckets[0].Credits.Cents != 10000 {
		t.Fatalf("january credits = %d", res.Buckets[0].Credits.Cents)
	}
	if res.Buckets[5].Debits.Cents != 5000 {
		t.Fatalf("june debits = %d", res.Buckets[5].Debits.Cents)
	}
	if res.Buckets[11].Net().Cents != 0 {
		t.Fatalf("december should be empty")
	}
}

func TestAggregateMonthWindowHasNoBuckets(t *testing.T) {
	src := &fakeSource{}
	res, err := newAggregator(src).Aggregate(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.Buckets != nil {
		t.Fatalf("month window produced buckets: %v", res.Buckets)
	}
}

// Rolling buckets are keyed by (year, month) counted back from the
// reference date, crossing the year boundary.
func TestRolling(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		debit(core.NewDate(2024, 7, 10), 1000, "julho 24"),
		debit(core.NewDate(2024, 12, 10), 2000, "dezembro 24"),
		debit(core.NewDate(2025, 3, 10), 3000, "marco 25"),
		debit(core.NewDate(2024, 3, 10), 9000, "fora da janela"),
	}}
	buckets, err := newAggregator(src).Rolling(context.Background(), core.NewDate(2025, 6, 15), 12)
	if err != nil {
		t.Fatalf("Rolling: %v", err)
	}
	if len(buckets) != 12 {
		t.Fatalf("buckets = %d, want 12", len(buckets))
	}
	if buckets[0].Year != 2024 || buckets[0].Month != 7 {
		t.Fatalf("first bucket = %d-%d, want 2024-7", buckets[0].Year, buckets[0].Month)
	}
	if buckets[11].Year != 2025 || buckets[11].Month != 6 {
		t.Fatalf("last bucket = %d-%d, want 2025-6", buckets[11].Year, buckets[11].Month)
	}
	if buckets[0].Debits.Cents != 1000 {
		t.Fatalf("2024-07 debits = %d", buckets[0].Debits.Cents)
	}
	if buckets[5].Debits.Cents != 2000 {
		t.Fatalf("2024-12 debits = %d", buckets[5].Debits.Cents)
	}
	var total int64
	for _, b := range buckets {
		total += b.Debits.Cents
	}
	if total != 6000 {
		t.Fatalf("window total = %d, want 6000 (out-of-window entry leaked)", total)
	}
}

func TestAggregateWindowOnly(t *testing.T) {
	src := &fakeSource{entries: []core.LedgerEntry{
		credit(core.NewDate(2025, 1, 10), 99999, "historia"),
		credit(core.NewDate(2025, 3, 10), 20000, "taxa"),
	}}
	res, err := newAggregator(src).AggregateWindowOnly(context.Background(), marchWindow())
	if err != nil {
		t.Fatalf("AggregateWindowOnly: %v", err)
	}
	if res.OpeningBalance.Cents != 0 {
		t.Fatalf("opening = %d, want 0", res.OpeningBalance.Cents)
	}
	if res.ClosingBalance().Cents != 20000 {
		t.Fatalf("closing = %d, want 20000", res.ClosingBalance().Cents)
	}
}
