// Package statement composes period statements (balancetes) from the
// ledger aggregator and the investment tracker, and archives them.
//
// Archiving is an idempotent upsert keyed by (year, month): archiving
// the same period again overwrites the prior archive with a freshly
// recomputed statement. Last write wins; there is no versioning.
package statement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"balancete/internal/core"
	"balancete/internal/investment"
	"balancete/internal/ledger"
)

// SnapshotSource is the read side of the investment store.
type SnapshotSource interface {
	Snapshots(ctx context.Context) ([]core.InvestmentSnapshot, error)
}

// ArchiveStore persists archived statements, one row per period key.
type ArchiveStore interface {
	// SaveStatement upserts the statement under its period key.
	SaveStatement(ctx context.Context, st core.PeriodStatement) error
	// ArchivedStatement returns the archived statement for a period, or
	// ErrNotArchived.
	ArchivedStatement(ctx context.Context, p core.Period) (core.PeriodStatement, error)
}

var ErrNotArchived = errors.New("statement not archived")

// WarningMissingHistory is set on statements built while the history
// query was unavailable; the opening balance is zero in that case.
const WarningMissingHistory = "opening balance history unavailable, carried forward as zero"

// Builder assembles draft statements and archives them.
type Builder struct {
	agg       *ledger.Aggregator
	snapshots SnapshotSource
	archive   ArchiveStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewBuilder(agg *ledger.Aggregator, snapshots SnapshotSource, archive ArchiveStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		agg:       agg,
		snapshots: snapshots,
		archive:   archive,
		logger:    logger,
		now:       time.Now,
	}
}

// Build computes a draft statement for the period. The ledger
// aggregation and the snapshot fetch are independent and run
// concurrently. A failed snapshot or window read aborts; a failed
// history read degrades to a zero opening balance with a warning
// instead of failing the whole build.
func (b *Builder) Build(ctx context.Context, p core.Period) (core.PeriodStatement, error) {
	if err := p.Validate(); err != nil {
		return core.PeriodStatement{}, err
	}
	w := ledger.PeriodWindow(p)

	var (
		wg      sync.WaitGroup
		res     ledger.Result
		aggErr  error
		snaps   []core.InvestmentSnapshot
		snapErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, aggErr = b.agg.Aggregate(ctx, w)
	}()
	go func() {
		defer wg.Done()
		snaps, snapErr = b.snapshots.Snapshots(ctx)
	}()
	wg.Wait()

	warning := ""
	if aggErr != nil {
		var dfe *ledger.DataFetchError
		if errors.As(aggErr, &dfe) && dfe.Op == ledger.OpOpeningBalance {
			b.logger.Warn("opening balance unavailable, building without history",
				"year", p.Year, "month", p.Month, "error", aggErr)
			res, aggErr = b.agg.AggregateWindowOnly(ctx, w)
			warning = WarningMissingHistory
		}
		if aggErr != nil {
			return core.PeriodStatement{}, aggErr
		}
	}
	if snapErr != nil {
		return core.PeriodStatement{}, &ledger.DataFetchError{Op: ledger.OpSnapshots, Err: snapErr}
	}

	inv := investment.NewTracker(snaps).At(w.End)
	closing := res.ClosingBalance()

	st := core.PeriodStatement{
		Period:            p,
		OpeningBalance:    res.OpeningBalance,
		ClosingBalance:    closing,
		Credits:           res.Credits,
		Debits:            res.Debits,
		InvestmentBalance: inv,
		TotalPatrimony:    closing.Add(inv),
		Entries:           res.Entries,
		TotalsByCategory:  res.TotalsByCategory,
		SkippedCount:      res.SkippedCount,
		Warning:           warning,
	}
	if err := st.CheckInvariants(); err != nil {
		// Arithmetic drift here is a programming error, not bad data.
		return core.PeriodStatement{}, err
	}
	return st, nil
}

// Archive persists a statement under its period key, overwriting any
// prior archive for the same period. Concurrent archives of one period
// converge last-write-wins; every archive is a full recomputation from
// source data, so no locking is needed.
func (b *Builder) Archive(ctx context.Context, st core.PeriodStatement) (core.PeriodStatement, error) {
	if err := st.CheckInvariants(); err != nil {
		return core.PeriodStatement{}, err
	}
	st.ArchivedAt = b.now().UTC()
	if err := b.archive.SaveStatement(ctx, st); err != nil {
		return core.PeriodStatement{}, err
	}
	b.logger.Info("statement archived",
		"year", st.Period.Year, "month", st.Period.Month,
		"closing_cents", st.ClosingBalance.Cents,
		"patrimony_cents", st.TotalPatrimony.Cents)
	return st, nil
}

// BuildAndArchive recomputes the period from source data and archives
// the result in one step. This is the path the archive worker takes.
func (b *Builder) BuildAndArchive(ctx context.Context, p core.Period) (core.PeriodStatement, error) {
	st, err := b.Build(ctx, p)
	if err != nil {
		return core.PeriodStatement{}, err
	}
	return b.Archive(ctx, st)
}

// Archived returns the previously archived statement for a period.
func (b *Builder) Archived(ctx context.Context, p core.Period) (core.PeriodStatement, error) {
	return b.archive.ArchivedStatement(ctx, p)
}
