// Package publish holds the outbound ports for statement publication.
// Archived statements are pushed to the condominium's shared
// spreadsheet; rendering and layout belong to the receiving side.
package publish

import (
	"context"

	"balancete/internal/export"
)

// Ports for outbound adapters.
type (
	// StatementPublisher pushes one archived statement report to the
	// publication target. Publishing is best effort: a failure is
	// logged and retried later, it never blocks archiving.
	StatementPublisher interface {
		PublishStatement(ctx context.Context, r export.Report) error
	}
)
