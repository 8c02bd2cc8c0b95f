package amqp

import (
	"encoding/json"
	"time"

	"balancete/internal/core"
)

// LedgerChangedMessage notifies that an entry was added or annotated.
// It carries only the entry id and the period the entry falls in; the
// worker recomputes the period from the database rather than trusting
// message payloads.
type LedgerChangedMessage struct {
	EntryID   string    `json:"entry_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage builds a change notification for an entry.
func NewLedgerChangedMessage(entryID string, date core.Date) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		EntryID:   entryID,
		Year:      date.Year(),
		Month:     date.Month(),
		Timestamp: time.Now(),
	}
}

// Period returns the monthly period the changed entry belongs to.
func (m *LedgerChangedMessage) Period() core.Period {
	return core.Period{Year: m.Year, Month: m.Month}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON creates a message from JSON bytes
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
