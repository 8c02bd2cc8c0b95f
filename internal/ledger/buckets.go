package ledger

import "balancete/internal/core"

// Bucket holds one month's credit and debit sums for charting.
type Bucket struct {
	Year    int
	Month   int // 1-12
	Credits core.Money
	Debits  core.Money
}

// Net returns credits minus debits for the month.
func (b Bucket) Net() core.Money {
	return core.Money{Cents: b.Credits.Cents - b.Debits.Cents}
}

func (b *Bucket) add(e core.LedgerEntry) {
	switch e.Direction {
	case core.Credit:
		b.Credits = b.Credits.Add(e.Amount)
	case core.Debit:
		b.Debits = b.Debits.Add(e.Amount)
	}
}

// calendarBuckets produces the 12 fixed Jan-Dec buckets of one year.
// Every month is present even when empty so charts keep a stable axis.
func calendarBuckets(entries []core.LedgerEntry, year int) []Bucket {
	buckets := make([]Bucket, 12)
	for i := range buckets {
		buckets[i] = Bucket{Year: year, Month: i + 1}
	}
	for _, e := range entries {
		if e.Date.Year() != year {
			continue
		}
		buckets[e.Date.Month()-1].add(e)
	}
	return buckets
}

// rollingBuckets produces `months` empty buckets ending at ref's month,
// oldest first, keyed by (year, month) rather than calendar position.
func rollingBuckets(ref core.Date, months int) []Bucket {
	buckets := make([]Bucket, months)
	y, m := ref.Year(), ref.Month()
	for i := months - 1; i >= 0; i-- {
		buckets[i] = Bucket{Year: y, Month: m}
		m--
		if m == 0 {
			m = 12
			y--
		}
	}
	return buckets
}
