// Package investment resolves the condominium's investment balance at a
// point in time from its append-only snapshot history.
package investment

import (
	"sort"

	"balancete/internal/core"
)

// Tracker answers "what was the investment balance on this date" over a
// sorted snapshot list. It is pure and read-only; construct a new
// tracker when fresh snapshots are loaded.
type Tracker struct {
	snapshots []core.InvestmentSnapshot
}

// NewTracker copies and sorts the snapshots by date ascending.
func NewTracker(snapshots []core.InvestmentSnapshot) *Tracker {
	sorted := make([]core.InvestmentSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})
	return &Tracker{snapshots: sorted}
}

// At returns the value of the most recent snapshot dated at or before
// target, or zero when there is no such snapshot.
func (t *Tracker) At(target core.Date) core.Money {
	// First snapshot strictly after target; the answer is its
	// predecessor.
	i := sort.Search(len(t.snapshots), func(i int) bool {
		return t.snapshots[i].Date.After(target.Time)
	})
	if i == 0 {
		return core.Money{}
	}
	return t.snapshots[i-1].Value
}

// Len returns the number of snapshots held.
func (t *Tracker) Len() int {
	return len(t.snapshots)
}
