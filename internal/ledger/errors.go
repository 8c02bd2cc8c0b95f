package ledger

import "fmt"

// Query names used in DataFetchError and log fields.
const (
	OpOpeningBalance = "opening_balance"
	OpWindowEntries  = "window_entries"
	OpRollingEntries = "rolling_entries"
	OpSnapshots      = "investment_snapshots"
)

// DataFetchError wraps a failed store read. Aggregation aborts on it;
// no partial result is ever returned alongside one.
type DataFetchError struct {
	Op  string
	Err error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}
