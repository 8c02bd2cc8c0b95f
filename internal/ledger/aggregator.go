// Package ledger aggregates the raw transaction stream into period
// balances with carry-forward, category breakdowns and monthly buckets.
//
// All arithmetic is integer cents; aggregation is read-only and
// stateless, so the two store reads it needs (full history before the
// window, entries inside the window) run in parallel.
package ledger

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"balancete/internal/classify"
	"balancete/internal/core"
)

// EntrySource is the read side of the transaction store.
type EntrySource interface {
	// EntriesBetween returns entries with from <= date <= to.
	EntriesBetween(ctx context.Context, from, to core.Date) ([]core.LedgerEntry, error)
	// BalanceBefore returns the signed sum (credits minus debits) of
	// every entry dated strictly before the given date.
	BalanceBefore(ctx context.Context, before core.Date) (core.Money, error)
}

// Window is an inclusive date range.
type Window struct {
	Start core.Date
	End   core.Date
}

// PeriodWindow returns the window covering a period.
func PeriodWindow(p core.Period) Window {
	start, end := p.Window()
	return Window{Start: start, End: end}
}

// isCalendarYear reports whether the window is exactly one Jan-Dec year.
func (w Window) isCalendarYear() bool {
	return w.Start.Year() == w.End.Year() &&
		w.Start.Month() == 1 && w.Start.Day() == 1 &&
		w.End.Month() == 12 && w.End.Day() == 31
}

// Result is the aggregation of one window. Entries are sorted date
// descending for display; the sums themselves are order independent.
type Result struct {
	OpeningBalance   core.Money
	Entries          []core.LedgerEntry
	Credits          core.Money
	Debits           core.Money
	TotalsByCategory core.CategoryTotals
	Buckets          []Bucket
	SkippedCount     int
}

// ClosingBalance returns opening + credits - debits.
func (r Result) ClosingBalance() core.Money {
	return core.Money{Cents: r.OpeningBalance.Cents + r.Credits.Cents - r.Debits.Cents}
}

// Aggregator computes window aggregates from an entry source.
type Aggregator struct {
	source     EntrySource
	classifier *classify.Classifier
	logger     *slog.Logger
}

func NewAggregator(source EntrySource, classifier *classify.Classifier, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, classifier: classifier, logger: logger}
}

// Aggregate computes the opening balance (carry-forward over the whole
// history before the window) and the in-window sums. The two store
// reads are independent and fetched concurrently; either failing aborts
// with a DataFetchError.
func (a *Aggregator) Aggregate(ctx context.Context, w Window) (Result, error) {
	var (
		opening core.Money
		raw     []core.LedgerEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.source.BalanceBefore(gctx, w.Start)
		if err != nil {
			return &DataFetchError{Op: OpOpeningBalance, Err: err}
		}
		opening = m
		return nil
	})
	g.Go(func() error {
		es, err := a.source.EntriesBetween(gctx, w.Start, w.End)
		if err != nil {
			return &DataFetchError{Op: OpWindowEntries, Err: err}
		}
		raw = es
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return a.summarize(opening, raw, w), nil
}

// AggregateWindowOnly computes in-window sums with the opening balance
// treated as zero and no history query. The statement builder uses it
// as the degraded path when the history read is unavailable.
func (a *Aggregator) AggregateWindowOnly(ctx context.Context, w Window) (Result, error) {
	raw, err := a.source.EntriesBetween(ctx, w.Start, w.End)
	if err != nil {
		return Result{}, &DataFetchError{Op: OpWindowEntries, Err: err}
	}
	return a.summarize(core.Money{}, raw, w), nil
}

func (a *Aggregator) summarize(opening core.Money, raw []core.LedgerEntry, w Window) Result {
	res := Result{
		OpeningBalance:   opening,
		Entries:          make([]core.LedgerEntry, 0, len(raw)),
		TotalsByCategory: core.CategoryTotals{},
	}

	for _, e := range raw {
		if err := e.Validate(); err != nil {
			res.SkippedCount++
			a.logger.Warn("skipping malformed ledger entry",
				"entry_id", e.ID, "error", err)
			continue
		}
		res.Entries = append(res.Entries, e)

		switch e.Direction {
		case core.Credit:
			res.Credits = res.Credits.Add(e.Amount)
		case core.Debit:
			res.Debits = res.Debits.Add(e.Amount)
			cat := a.classifier.Classify(e)
			res.TotalsByCategory[cat] = res.TotalsByCategory[cat].Add(e.Amount)
		}
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return res.Entries[j].Date.Before(res.Entries[i].Date.Time)
	})

	if w.isCalendarYear() {
		res.Buckets = calendarBuckets(res.Entries, w.Start.Year())
	}
	return res
}

// Rolling aggregates the last `months` calendar months counted back
// from ref into per-month buckets keyed by (year, month). Used by the
// rolling-12 chart mode; carry-forward does not apply here.
func (a *Aggregator) Rolling(ctx context.Context, ref core.Date, months int) ([]Bucket, error) {
	start := core.NewDate(ref.Year(), ref.Month(), 1)
	start = core.Date{Time: start.AddDate(0, -(months - 1), 0)}

	raw, err := a.source.EntriesBetween(ctx, start, ref)
	if err != nil {
		return nil, &DataFetchError{Op: OpRollingEntries, Err: err}
	}

	buckets := rollingBuckets(ref, months)
	index := make(map[[2]int]int, len(buckets))
	for i, b := range buckets {
		index[[2]int{b.Year, b.Month}] = i
	}
	for _, e := range raw {
		if e.Validate() != nil {
			continue
		}
		i, ok := index[[2]int{e.Date.Year(), e.Date.Month()}]
		if !ok {
			continue
		}
		buckets[i].add(e)
	}
	return buckets, nil
}
