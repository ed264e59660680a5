package eventlog

import "time"

// Category classifies a log entry for display.
type Category string

// Entry categories.
const (
	CategoryInfo     Category = "info"
	CategorySuccess  Category = "success"
	CategoryError    Category = "error"
	CategorySent     Category = "sent"
	CategoryReceived Category = "received"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInfo, CategorySuccess, CategoryError, CategorySent, CategoryReceived:
		return true
	}
	return false
}

// Entry is a single immutable traffic log record.
type Entry struct {
	// ID increases monotonically for the lifetime of the Store.
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  Category  `json:"category"`
}
