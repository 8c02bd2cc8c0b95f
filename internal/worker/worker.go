// Package worker runs the archive side of the engine: it consumes
// ledger change events, recomputes the affected period statements and
// re-archives them, then pushes the refreshed report to the publisher.
package worker

import (
	"context"
	"log/slog"
	"time"

	"balancete/internal/amqp"
	"balancete/internal/core"
	"balancete/internal/export"
	"balancete/internal/publish"
	"balancete/internal/statement"
)

// ChangeSource delivers ledger change events. Satisfied by the AMQP
// client; tests feed messages directly.
type ChangeSource interface {
	ConsumeLedgerChanged(ctx context.Context, handler func(*amqp.LedgerChangedMessage) error) error
}

type Worker struct {
	recomputer *statement.Recomputer
	builder    *statement.Builder
	source     ChangeSource
	publisher  publish.StatementPublisher
	logger     *slog.Logger

	archiveTimeout time.Duration
}

// New wires a worker around its own recomputer so every settled
// recomputation flows into archiving and publication. A non-positive
// timeout falls back to 30s.
func New(builder *statement.Builder, source ChangeSource, publisher publish.StatementPublisher, debounce, timeout time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	w := &Worker{
		builder:        builder,
		source:         source,
		publisher:      publisher,
		logger:         logger,
		archiveTimeout: timeout,
	}
	w.recomputer = statement.NewRecomputer(builder, debounce, timeout, w.archiveAndPublish, logger)
	return w
}

// Run consumes change events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("archive worker started")
	return w.source.ConsumeLedgerChanged(ctx, w.handleChange)
}

func (w *Worker) handleChange(msg *amqp.LedgerChangedMessage) error {
	p := msg.Period()
	if err := p.Validate(); err != nil {
		// Bad period means a malformed message; don't requeue.
		w.logger.Warn("dropping change event with invalid period",
			"entry_id", msg.EntryID, "year", msg.Year, "month", msg.Month)
		return nil
	}

	w.logger.Info("ledger change received",
		"entry_id", msg.EntryID, "year", p.Year, "month", p.Month)
	w.recomputer.LedgerChanged(p)
	w.recomputer.LedgerChanged(core.Period{Year: p.Year})
	return nil
}

// archiveAndPublish stores the recomputed statement and pushes the
// report. Publication is best effort; archiving errors only get logged
// since a later change event retries the whole chain.
func (w *Worker) archiveAndPublish(st core.PeriodStatement) {
	ctx, cancel := context.WithTimeout(context.Background(), w.archiveTimeout)
	defer cancel()

	archived, err := w.builder.Archive(ctx, st)
	if err != nil {
		w.logger.Error("re-archive failed",
			"year", st.Period.Year, "month", st.Period.Month, "error", err)
		return
	}

	if w.publisher == nil {
		return
	}
	report := export.FromStatement(archived)
	if err := report.Validate(); err != nil {
		w.logger.Error("refusing to publish inconsistent report",
			"year", st.Period.Year, "month", st.Period.Month, "error", err)
		return
	}
	if err := w.publisher.PublishStatement(ctx, report); err != nil {
		w.logger.Warn("statement publication failed",
			"period", report.PeriodLabel, "error", err)
		return
	}
	w.logger.Info("statement published", "period", report.PeriodLabel)
}

// Flush waits for pending recomputations. Test helper.
func (w *Worker) Flush() {
	w.recomputer.Flush()
}
