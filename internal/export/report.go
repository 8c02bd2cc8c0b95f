// Package export defines the stable data contract handed to the
// document-rendering collaborator. Amounts stay in integer cents;
// locale formatting (separators, currency symbol) is the renderer's
// job, never the engine's.
package export

import (
	"errors"
	"fmt"

	"balancete/internal/core"
)

// Version identifies the report field contract. Renderers pin on it.
const Version = 1

type (
	// LineItem is one ledger entry on the report. Exactly one of
	// CreditCents and DebitCents is set; the other is nil.
	LineItem struct {
		Date        string `json:"date"` // ISO 2006-01-02
		Description string `json:"description"`
		CreditCents *int64 `json:"credit_cents"`
		DebitCents  *int64 `json:"debit_cents"`
	}

	// Report is the renderer-facing statement shape.
	Report struct {
		Version                int        `json:"version"`
		PeriodLabel            string     `json:"period_label"`
		Year                   int        `json:"year"`
		OpeningBalanceCents    int64      `json:"opening_balance_cents"`
		CreditsCents           int64      `json:"credits_cents"`
		DebitsCents            int64      `json:"debits_cents"`
		CurrentBalanceCents    int64      `json:"current_balance_cents"`
		InvestmentBalanceCents int64      `json:"investment_balance_cents"`
		TotalPatrimonyCents    int64      `json:"total_patrimony_cents"`
		LineItems              []LineItem `json:"line_items"`
	}
)

var ErrInvalidReport = errors.New("invalid report")

// FromStatement converts a period statement into the export contract.
func FromStatement(st core.PeriodStatement) Report {
	items := make([]LineItem, 0, len(st.Entries))
	for _, e := range st.Entries {
		item := LineItem{Date: e.Date.ISO(), Description: e.Description}
		cents := e.Amount.Cents
		if e.Direction == core.Credit {
			item.CreditCents = &cents
		} else {
			item.DebitCents = &cents
		}
		items = append(items, item)
	}
	return Report{
		Version:                Version,
		PeriodLabel:            st.Period.Label(),
		Year:                   st.Period.Year,
		OpeningBalanceCents:    st.OpeningBalance.Cents,
		CreditsCents:           st.Credits.Cents,
		DebitsCents:            st.Debits.Cents,
		CurrentBalanceCents:    st.ClosingBalance.Cents,
		InvestmentBalanceCents: st.InvestmentBalance.Cents,
		TotalPatrimonyCents:    st.TotalPatrimony.Cents,
		LineItems:              items,
	}
}

// Validate checks the report's internal arithmetic before hand-off so a
// renderer can trust the numbers without recomputing them.
func (r Report) Validate() error {
	if r.Version != Version {
		return fmt.Errorf("%w: version %d", ErrInvalidReport, r.Version)
	}
	if r.CurrentBalanceCents != r.OpeningBalanceCents+r.CreditsCents-r.DebitsCents {
		return fmt.Errorf("%w: balance arithmetic", ErrInvalidReport)
	}
	if r.TotalPatrimonyCents != r.CurrentBalanceCents+r.InvestmentBalanceCents {
		return fmt.Errorf("%w: patrimony arithmetic", ErrInvalidReport)
	}
	var credits, debits int64
	for i, item := range r.LineItems {
		switch {
		case item.CreditCents != nil && item.DebitCents != nil:
			return fmt.Errorf("%w: line %d has both credit and debit", ErrInvalidReport, i)
		case item.CreditCents == nil && item.DebitCents == nil:
			return fmt.Errorf("%w: line %d has neither credit nor debit", ErrInvalidReport, i)
		case item.CreditCents != nil:
			credits += *item.CreditCents
		default:
			debits += *item.DebitCents
		}
	}
	if credits != r.CreditsCents || debits != r.DebitsCents {
		return fmt.Errorf("%w: line items do not sum to totals", ErrInvalidReport)
	}
	return nil
}
