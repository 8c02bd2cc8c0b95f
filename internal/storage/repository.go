// Package storage persists ledger entries, investment snapshots and
// archived statements in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"balancete/internal/core"
	"balancete/internal/ledger"
	"balancete/internal/statement"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// Ensure interface conformance
var (
	_ ledger.EntrySource       = (*SQLiteRepository)(nil)
	_ statement.SnapshotSource = (*SQLiteRepository)(nil)
	_ statement.ArchiveStore   = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var ErrEntryNotFound = errors.New("ledger entry not found")

// InsertEntry records a validated ledger entry. Entries are append-only;
// only the detail annotation can change afterwards.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, e core.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, entry_date, amount_cents, direction, description, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.ISO(), e.Amount.Cents, string(e.Direction), e.Description, e.Detail)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	slog.InfoContext(ctx, "ledger entry recorded",
		"id", e.ID,
		"date", e.Date.ISO(),
		"direction", string(e.Direction),
		"amount_cents", e.Amount.Cents)
	return nil
}

// UpdateEntryDetail edits the one mutable field of an entry.
func (r *SQLiteRepository) UpdateEntryDetail(ctx context.Context, id, detail string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET detail = ? WHERE id = ?`, detail, id)
	if err != nil {
		return fmt.Errorf("update entry detail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry detail: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Entry returns a single entry by id.
func (r *SQLiteRepository) Entry(ctx context.Context, id string) (core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, entry_date, amount_cents, direction, description, detail
		FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, ErrEntryNotFound
	}
	return e, err
}

// EntriesBetween implements ledger.EntrySource.
func (r *SQLiteRepository) EntriesBetween(ctx context.Context, from, to core.Date) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_date, amount_cents, direction, description, detail
		FROM ledger_entries
		WHERE entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date DESC, id`,
		from.ISO(), to.ISO())
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	return entries, nil
}

// BalanceBefore implements ledger.EntrySource: the signed sum of the
// entire history preceding a date, computed in the database.
func (r *SQLiteRepository) BalanceBefore(ctx context.Context, before core.Date) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE direction WHEN 'credit' THEN amount_cents ELSE -amount_cents END), 0)
		FROM ledger_entries WHERE entry_date < ?`,
		before.ISO()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum history: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// InsertSnapshot appends an investment balance snapshot. One snapshot
// per date; a re-import of the same date replaces the value.
func (r *SQLiteRepository) InsertSnapshot(ctx context.Context, s core.InvestmentSnapshot) error {
	if err := s.Date.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO investment_snapshots (snapshot_date, value_cents)
		VALUES (?, ?)
		ON CONFLICT (snapshot_date) DO UPDATE SET value_cents = excluded.value_cents`,
		s.Date.ISO(), s.Value.Cents)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Snapshots implements statement.SnapshotSource.
func (r *SQLiteRepository) Snapshots(ctx context.Context) ([]core.InvestmentSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT snapshot_date, value_cents FROM investment_snapshots
		ORDER BY snapshot_date`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []core.InvestmentSnapshot
	for rows.Next() {
		var (
			iso   string
			cents int64
		)
		if err := rows.Scan(&iso, &cents); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		date, err := core.ParseDate(iso)
		if err != nil {
			return nil, fmt.Errorf("snapshot date: %w", err)
		}
		snaps = append(snaps, core.InvestmentSnapshot{Date: date, Value: core.Money{Cents: cents}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return snaps, nil
}

// SaveStatement implements statement.ArchiveStore as an idempotent
// upsert keyed by (year, month). Last write wins.
func (r *SQLiteRepository) SaveStatement(ctx context.Context, st core.PeriodStatement) error {
	entriesJSON, err := json.Marshal(st.Entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	totalsJSON, err := json.Marshal(st.TotalsByCategory)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO archived_statements (
			year, month, opening_cents, closing_cents, credits_cents, debits_cents,
			investment_cents, patrimony_cents, skipped_count, warning,
			entries_json, totals_json, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year, month) DO UPDATE SET
			opening_cents = excluded.opening_cents,
			closing_cents = excluded.closing_cents,
			credits_cents = excluded.credits_cents,
			debits_cents = excluded.debits_cents,
			investment_cents = excluded.investment_cents,
			patrimony_cents = excluded.patrimony_cents,
			skipped_count = excluded.skipped_count,
			warning = excluded.warning,
			entries_json = excluded.entries_json,
			totals_json = excluded.totals_json,
			archived_at = excluded.archived_at`,
		st.Period.Year, st.Period.Month,
		st.OpeningBalance.Cents, st.ClosingBalance.Cents,
		st.Credits.Cents, st.Debits.Cents,
		st.InvestmentBalance.Cents, st.TotalPatrimony.Cents,
		st.SkippedCount, st.Warning,
		string(entriesJSON), string(totalsJSON),
		st.ArchivedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert archived statement: %w", err)
	}
	return nil
}

// ArchivedStatement implements statement.ArchiveStore.
func (r *SQLiteRepository) ArchivedStatement(ctx context.Context, p core.Period) (core.PeriodStatement, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT opening_cents, closing_cents, credits_cents, debits_cents,
		       investment_cents, patrimony_cents, skipped_count, warning,
		       entries_json, totals_json, archived_at
		FROM archived_statements WHERE year = ? AND month = ?`,
		p.Year, p.Month)

	var (
		st          core.PeriodStatement
		entriesJSON string
		totalsJSON  string
		archivedAt  string
	)
	st.Period = p
	err := row.Scan(
		&st.OpeningBalance.Cents, &st.ClosingBalance.Cents,
		&st.Credits.Cents, &st.Debits.Cents,
		&st.InvestmentBalance.Cents, &st.TotalPatrimony.Cents,
		&st.SkippedCount, &st.Warning,
		&entriesJSON, &totalsJSON, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PeriodStatement{}, statement.ErrNotArchived
	}
	if err != nil {
		return core.PeriodStatement{}, fmt.Errorf("query archived statement: %w", err)
	}

	if err := json.Unmarshal([]byte(entriesJSON), &st.Entries); err != nil {
		return core.PeriodStatement{}, fmt.Errorf("unmarshal entries: %w", err)
	}
	if err := json.Unmarshal([]byte(totalsJSON), &st.TotalsByCategory); err != nil {
		return core.PeriodStatement{}, fmt.Errorf("unmarshal totals: %w", err)
	}
	st.ArchivedAt, err = time.Parse(time.RFC3339, archivedAt)
	if err != nil {
		return core.PeriodStatement{}, fmt.Errorf("parse archived_at: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var (
		e   core.LedgerEntry
		iso string
		dir string
	)
	if err := row.Scan(&e.ID, &iso, &e.Amount.Cents, &dir, &e.Description, &e.Detail); err != nil {
		return core.LedgerEntry{}, err
	}
	date, err := core.ParseDate(iso)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("entry date: %w", err)
	}
	e.Date = date
	e.Direction = core.Direction(dir)
	return e, nil
}
