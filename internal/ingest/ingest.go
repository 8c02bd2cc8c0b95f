// Package ingest imports bank CSV exports into the ledger.
//
// The bank export carries one signed amount per row; the importer maps
// the sign to a direction and stores the positive magnitude, which is
// the only representation the engine works with. Malformed rows are
// skipped and counted, never fatal: a bad line in a bank export must
// not block the rest of the month.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"balancete/internal/core"
)

// EntryWriter is the write side of the transaction store.
type EntryWriter interface {
	InsertEntry(ctx context.Context, e core.LedgerEntry) error
}

// bankRow is one line of the bank CSV export.
type bankRow struct {
	Date        string `csv:"data"`
	Description string `csv:"descricao"`
	Amount      string `csv:"valor"` // signed, comma or dot decimals
}

// Result summarizes one import run. Entries holds the stored entries so
// the caller can invalidate and announce every period the import
// touched.
type Result struct {
	Imported int
	Skipped  int
	Entries  []core.LedgerEntry
}

// Periods returns the distinct months covered by the imported entries,
// in order of first appearance.
func (r Result) Periods() []core.Period {
	seen := make(map[core.Period]bool)
	var out []core.Period
	for _, e := range r.Entries {
		p := core.Period{Year: e.Date.Year(), Month: e.Date.Month()}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Importer parses bank exports and records the resulting entries.
type Importer struct {
	writer EntryWriter
	logger *slog.Logger
	newID  func() string
}

func NewImporter(writer EntryWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		writer: writer,
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// Import reads a bank CSV export and inserts one ledger entry per valid
// row. Rows that fail to parse are skipped and counted; a store write
// failure aborts, since continuing would import a partial file twice.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var rows []bankRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("parse bank csv: %w", err)
	}

	var res Result
	for i, row := range rows {
		entry, err := im.entryFromRow(row)
		if err != nil {
			res.Skipped++
			im.logger.Warn("skipping malformed bank row",
				"line", i+2, // header is line 1
				"error", err)
			continue
		}
		if err := im.writer.InsertEntry(ctx, entry); err != nil {
			return res, fmt.Errorf("store entry from line %d: %w", i+2, err)
		}
		res.Imported++
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func (im *Importer) entryFromRow(row bankRow) (core.LedgerEntry, error) {
	date, err := parseBankDate(row.Date)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	raw := strings.TrimSpace(strings.ReplaceAll(row.Amount, ",", "."))
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, row.Amount)
	}
	if amount.IsZero() {
		return core.LedgerEntry{}, fmt.Errorf("%w: zero", core.ErrInvalidAmount)
	}

	direction := core.Credit
	if amount.IsNegative() {
		direction = core.Debit
	}
	cents := amount.Abs().Shift(2).Round(0).IntPart()

	entry := core.LedgerEntry{
		ID:          im.newID(),
		Date:        date,
		Amount:      core.Money{Cents: cents},
		Direction:   direction,
		Description: strings.TrimSpace(row.Description),
	}
	if err := entry.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}
	return entry, nil
}

// parseBankDate accepts both the bank's dd/mm/yyyy form and ISO dates.
func parseBankDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if parts := strings.Split(s, "/"); len(parts) == 3 {
		var day, month, year int
		if _, err := fmt.Sscanf(s, "%d/%d/%d", &day, &month, &year); err == nil {
			d := core.NewDate(year, month, day)
			// Reject rolled-over dates such as 31/02.
			if d.Day() == day && d.Month() == month && d.Year() == year {
				return d, nil
			}
		}
		return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
	return core.ParseDate(s)
}
