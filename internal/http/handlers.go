package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"balancete/internal/core"
	"balancete/internal/export"
	"balancete/internal/ledger"
	"balancete/internal/statement"
	"balancete/internal/storage"
)

// statementResponse extends the export contract with the engine's own
// bookkeeping fields, which renderers ignore.
type statementResponse struct {
	export.Report
	TotalsByCategory map[string]int64 `json:"totals_by_category_cents"`
	SkippedCount     int              `json:"skipped_count"`
	Warning          string           `json:"warning,omitempty"`
	ArchivedAt       string           `json:"archived_at,omitempty"`
}

func toStatementResponse(st core.PeriodStatement) statementResponse {
	resp := statementResponse{
		Report:           export.FromStatement(st),
		TotalsByCategory: make(map[string]int64, len(st.TotalsByCategory)),
		SkippedCount:     st.SkippedCount,
		Warning:          st.Warning,
	}
	for cat, amount := range st.TotalsByCategory {
		resp.TotalsByCategory[string(cat)] = amount.Cents
	}
	if st.IsArchived() {
		resp.ArchivedAt = st.ArchivedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// periodFromQuery reads year (required) and month (optional, 0 means
// the whole calendar year) from the query string.
func periodFromQuery(r *http.Request) (core.Period, error) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		return core.Period{}, errors.New("year is required and must be a number")
	}
	p := core.Period{Year: year}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, errors.New("month must be a number")
		}
		p.Month = m
	}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

func (s *Server) handleDraftStatement(w http.ResponseWriter, r *http.Request) {
	p, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.recomputer.Statement(r.Context(), p)
	if err != nil {
		var fetchErr *ledger.DataFetchError
		if errors.As(err, &fetchErr) {
			slog.ErrorContext(r.Context(), "Statement build failed", "error", err, "year", p.Year, "month", p.Month)
			writeError(w, http.StatusBadGateway, "ledger data unavailable: "+fetchErr.Op)
			return
		}
		slog.ErrorContext(r.Context(), "Statement build failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "statement build failed")
		return
	}

	writeJSON(w, http.StatusOK, toStatementResponse(st))
}

func (s *Server) handleArchivedStatement(w http.ResponseWriter, r *http.Request) {
	p, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.builder.Archived(r.Context(), p)
	if err != nil {
		if errors.Is(err, statement.ErrNotArchived) {
			writeError(w, http.StatusNotFound, "no archived statement for period")
			return
		}
		slog.ErrorContext(r.Context(), "Archived statement lookup failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, toStatementResponse(st))
}

type archiveRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p := core.Period{Year: req.Year, Month: req.Month}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.builder.BuildAndArchive(r.Context(), p)
	if err != nil {
		var fetchErr *ledger.DataFetchError
		if errors.As(err, &fetchErr) {
			slog.ErrorContext(r.Context(), "Archive failed", "error", err, "year", p.Year, "month", p.Month)
			writeError(w, http.StatusBadGateway, "ledger data unavailable: "+fetchErr.Op)
			return
		}
		slog.ErrorContext(r.Context(), "Archive failed", "error", err, "year", p.Year, "month", p.Month)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}

	writeJSON(w, http.StatusOK, toStatementResponse(st))
}

type bucketResponse struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	CreditCents int64 `json:"credit_cents"`
	DebitCents  int64 `json:"debit_cents"`
	NetCents    int64 `json:"net_cents"`
}

func toBucketResponses(buckets []ledger.Bucket) []bucketResponse {
	out := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketResponse{
			Year:        b.Year,
			Month:       b.Month,
			CreditCents: b.Credits.Cents,
			DebitCents:  b.Debits.Cents,
			NetCents:    b.Net().Cents,
		})
	}
	return out
}

// handleBreakdown serves the per-month chart data. mode=calendar (the
// default) buckets one calendar year; mode=rolling buckets the last N
// months counted back from today.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = "calendar"
	}

	switch mode {
	case "calendar":
		year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
		if err != nil {
			writeError(w, http.StatusBadRequest, "year is required and must be a number")
			return
		}
		res, err := s.agg.Aggregate(r.Context(), ledger.PeriodWindow(core.Period{Year: year}))
		if err != nil {
			slog.ErrorContext(r.Context(), "Breakdown aggregation failed", "error", err, "year", year)
			writeError(w, http.StatusBadGateway, "ledger data unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":    mode,
			"buckets": toBucketResponses(res.Buckets),
		})
	case "rolling":
		months := 12
		if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
			m, err := strconv.Atoi(v)
			if err != nil || m < 1 || m > 36 {
				writeError(w, http.StatusBadRequest, "months must be between 1 and 36")
				return
			}
			months = m
		}
		now := time.Now()
		ref := core.NewDate(now.Year(), int(now.Month()), now.Day())
		buckets, err := s.agg.Rolling(r.Context(), ref, months)
		if err != nil {
			slog.ErrorContext(r.Context(), "Rolling breakdown failed", "error", err, "months", months)
			writeError(w, http.StatusBadGateway, "ledger data unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":    mode,
			"buckets": toBucketResponses(buckets),
		})
	default:
		writeError(w, http.StatusBadRequest, "mode must be 'calendar' or 'rolling'")
	}
}

type createEntryRequest struct {
	Date        string `json:"date"` // ISO 2006-01-02
	Description string `json:"description"`
	Detail      string `json:"detail"`
	AmountCents int64  `json:"amount_cents"`
	Direction   string `json:"direction"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := core.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "date must be YYYY-MM-DD")
		return
	}

	entry := core.LedgerEntry{
		ID:          uuid.NewString(),
		Date:        date,
		Description: strings.TrimSpace(req.Description),
		Detail:      strings.TrimSpace(req.Detail),
		Amount:      core.Money{Cents: req.AmountCents},
		Direction:   core.Direction(req.Direction),
	}
	if err := entry.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.entries.InsertEntry(r.Context(), entry); err != nil {
		slog.ErrorContext(r.Context(), "Entry insert failed", "error", err, "entry_id", entry.ID)
		writeError(w, http.StatusInternalServerError, "entry insert failed")
		return
	}

	s.notifyLedgerChanged(r.Context(), entry.ID, date)

	writeJSON(w, http.StatusCreated, map[string]string{"id": entry.ID})
}

// notifyLedgerChanged invalidates the touched period's drafts and
// announces the change to the archive worker. Event publication is best
// effort.
func (s *Server) notifyLedgerChanged(ctx context.Context, entryID string, date core.Date) {
	s.recomputer.LedgerChanged(core.Period{Year: date.Year(), Month: date.Month()})
	if s.events != nil {
		if err := s.events.PublishLedgerChanged(ctx, entryID, date); err != nil {
			slog.WarnContext(ctx, "Ledger change event not published", "error", err, "entry_id", entryID)
		}
	}
}

type updateDetailRequest struct {
	Detail string `json:"detail"`
}

func (s *Server) handleUpdateDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "entry id is required")
		return
	}

	var req updateDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.entries.UpdateEntryDetail(r.Context(), id, strings.TrimSpace(req.Detail)); err != nil {
		if errors.Is(err, storage.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		slog.ErrorContext(r.Context(), "Detail update failed", "error", err, "entry_id", id)
		writeError(w, http.StatusInternalServerError, "detail update failed")
		return
	}

	// Detail feeds classification, so the edit changes category totals.
	entry, err := s.entries.Entry(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Entry lookup after detail update failed", "error", err, "entry_id", id)
	} else {
		s.notifyLedgerChanged(r.Context(), entry.ID, entry.Date)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.importer.Import(r.Context(), r.Body)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bank import failed", "error", err, "imported", res.Imported, "skipped", res.Skipped)
		writeError(w, http.StatusUnprocessableEntity, "import failed: "+err.Error())
		return
	}

	// Every stored entry is a ledger change; the per-period debounce in
	// the recomputer and the worker absorbs the burst.
	for _, e := range res.Entries {
		s.notifyLedgerChanged(r.Context(), e.ID, e.Date)
	}

	slog.InfoContext(r.Context(), "Bank import completed", "imported", res.Imported, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, map[string]int{
		"imported": res.Imported,
		"skipped":  res.Skipped,
	})
}
