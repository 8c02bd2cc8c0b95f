// Package memory is an in-memory statement publisher used in tests and
// when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"balancete/internal/export"
	ports "balancete/internal/publish"
)

type Publisher struct {
	mu      sync.Mutex
	reports map[string]export.Report // keyed by period label
}

var _ ports.StatementPublisher = (*Publisher)(nil)

func New() *Publisher {
	return &Publisher{reports: make(map[string]export.Report)}
}

// PublishStatement stores the report, overwriting any earlier
// publication of the same period, matching the spreadsheet semantics.
func (p *Publisher) PublishStatement(_ context.Context, r export.Report) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to publish: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports[r.PeriodLabel] = r
	return nil
}

// Published returns the last published report for a period label.
func (p *Publisher) Published(label string) (export.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.reports[label]
	return r, ok
}

// Count returns how many distinct periods have been published.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}
