package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type (
	// Direction marks a ledger entry as money in or money out.
	Direction string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// LedgerEntry is a single dated bank transaction. Amount is always a
	// positive magnitude; Direction carries the sign. Only Detail may be
	// edited after the entry is recorded.
	LedgerEntry struct {
		ID          string
		Date        Date
		Amount      Money
		Direction   Direction
		Description string
		Detail      string
	}

	// InvestmentSnapshot is one point of the append-only investment
	// balance history.
	InvestmentSnapshot struct {
		Date  Date
		Value Money
	}

	// Period selects an aggregation window. Month == 0 means the full
	// calendar year.
	Period struct {
		Year  int
		Month int // 1-12, or 0 for the whole year
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrEmptyDescription = errors.New("empty description")
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO "2006-01-02" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// ISO returns the date formatted as "2006-01-02". The storage layer
// relies on this form sorting lexicographically by calendar order.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (dir Direction) Validate() error {
	switch dir {
	case Credit, Debit:
		return nil
	}
	return ErrInvalidDirection
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Validate reports whether an entry is well formed enough to take part
// in aggregation. Malformed entries are skipped, not fatal.
func (e LedgerEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Direction.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	return nil
}

// SignedCents returns the entry's contribution to a running balance:
// positive for credits, negative for debits.
func (e LedgerEntry) SignedCents() int64 {
	if e.Direction == Debit {
		return -e.Amount.Cents
	}
	return e.Amount.Cents
}

func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 3000 {
		return ErrInvalidPeriod
	}
	if p.Month < 0 || p.Month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}

// IsYearly reports whether the period covers the whole calendar year.
func (p Period) IsYearly() bool {
	return p.Month == 0
}

// Window returns the inclusive [start, end] date range of the period.
func (p Period) Window() (Date, Date) {
	if p.IsYearly() {
		return NewDate(p.Year, 1, 1), NewDate(p.Year, 12, 31)
	}
	start := NewDate(p.Year, p.Month, 1)
	end := Date{Time: start.AddDate(0, 1, -1)}
	return start, end
}

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// Label returns the human period name used on statements, e.g.
// "Março/2025" or "Ano 2025".
func (p Period) Label() string {
	if p.IsYearly() {
		return fmt.Sprintf("Ano %d", p.Year)
	}
	return fmt.Sprintf("%s/%d", monthNames[p.Month-1], p.Year)
}
