// Package audit archives the traffic journal to SQLite so history survives
// the 50-entry in-memory window, and serves it back for GET /audit.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/casa-core/internal/eventlog"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one archived journal entry.
type Record struct {
	ID        string            `json:"id"`
	EntryID   uint64            `json:"entry_id"`
	Timestamp time.Time         `json:"timestamp"`
	Category  eventlog.Category `json:"category"`
	Message   string            `json:"message"`
}

// FromEntry converts a journal entry into an unsaved Record.
func FromEntry(e eventlog.Entry) Record {
	return Record{
		EntryID:   e.ID,
		Timestamp: e.Timestamp,
		Category:  e.Category,
		Message:   e.Message,
	}
}

// Filter controls which records List returns.
type Filter struct {
	Category eventlog.Category // optional
	Since    time.Time         // optional: records at or after this instant
	Contains string            // optional: substring of the message, e.g. a topic
	Limit    int               // default 50, max 200
	Offset   int
}

// ListResult is a page of records, newest first.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository stores and queries archived records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores records in the traffic_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a record. ID and Timestamp are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "aud-" + uuid.NewString()[:8]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if !rec.Category.Valid() {
		rec.Category = eventlog.CategoryInfo
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO traffic_log (id, entry_id, timestamp, category, message)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.EntryID,
		rec.Timestamp.UTC().Format(timeLayout),
		string(rec.Category), rec.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting traffic record: %w", err)
	}
	return nil
}

// List returns records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, string(filter.Category))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Contains != "" {
		conditions = append(conditions, "instr(message, ?) > 0")
		args = append(args, filter.Contains)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM traffic_log " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting traffic records: %w", err)
	}

	query := "SELECT id, entry_id, timestamp, category, message FROM traffic_log " + where + //nolint:gosec // as above
		" ORDER BY timestamp DESC, entry_id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying traffic records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var ts, category string
		if err := rows.Scan(&rec.ID, &rec.EntryID, &ts, &category, &rec.Message); err != nil {
			return nil, fmt.Errorf("scanning traffic record: %w", err)
		}
		rec.Category = eventlog.Category(category)

		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing traffic record timestamp %q: %w", ts, err)
		}
		rec.Timestamp = parsed

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating traffic records: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
