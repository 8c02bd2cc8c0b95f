package core

import (
	"errors"
	"time"
)

const (
	CategoryWater  Category = "agua"
	CategoryEnergy Category = "energia"
	CategoryOther  Category = "outros"
)

type (
	// Category is the derived spending classification of a debit entry.
	// It is never persisted on the entry itself: rule changes must
	// retroactively reclassify history.
	Category string

	// CategoryTotals partitions the debit entries of a window. Credits
	// are pure income and are never categorized.
	CategoryTotals map[Category]Money

	// PeriodStatement is the balancete of one period: checking-account
	// balances with carry-forward, spending breakdown and investment
	// balance combined into total patrimony.
	//
	// A statement is a draft until it is archived; ArchivedAt is the
	// zero time on drafts.
	PeriodStatement struct {
		Period            Period
		OpeningBalance    Money
		ClosingBalance    Money
		Credits           Money
		Debits            Money
		InvestmentBalance Money
		TotalPatrimony    Money
		Entries           []LedgerEntry
		TotalsByCategory  CategoryTotals
		SkippedCount      int
		Warning           string
		ArchivedAt        time.Time
	}
)

var ErrInconsistentStatement = errors.New("inconsistent statement")

// Total returns the sum over all categories.
func (t CategoryTotals) Total() Money {
	var sum Money
	for _, m := range t {
		sum = sum.Add(m)
	}
	return sum
}

// IsArchived reports whether the statement has been persisted.
func (s PeriodStatement) IsArchived() bool {
	return !s.ArchivedAt.IsZero()
}

// CheckInvariants verifies the balance arithmetic that every statement
// must satisfy: closing = opening + credits - debits, patrimony =
// closing + investment, and category totals partitioning the debits.
func (s PeriodStatement) CheckInvariants() error {
	if s.ClosingBalance.Cents != s.OpeningBalance.Cents+s.Credits.Cents-s.Debits.Cents {
		return ErrInconsistentStatement
	}
	if s.TotalPatrimony.Cents != s.ClosingBalance.Cents+s.InvestmentBalance.Cents {
		return ErrInconsistentStatement
	}
	if s.TotalsByCategory.Total().Cents != s.Debits.Cents {
		return ErrInconsistentStatement
	}
	return nil
}
