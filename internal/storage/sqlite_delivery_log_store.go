package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const defaultListLimit = 50

// SQLiteDeliveryLogStore implements DeliveryLogStore backed by SQLite.
type SQLiteDeliveryLogStore struct {
	db *sql.DB
}

// NewSQLiteDeliveryLogStore returns a new SQLiteDeliveryLogStore.
func NewSQLiteDeliveryLogStore(db *sql.DB) *SQLiteDeliveryLogStore {
	return &SQLiteDeliveryLogStore{db: db}
}

// LogDelivery inserts a dispatch outcome into the database.
func (s *SQLiteDeliveryLogStore) LogDelivery(ctx context.Context, entry DeliveryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_log (message_id, recipient, transport, stage, status,
			error_kind, error_msg, rows_affected, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.MessageID, entry.Recipient, entry.Transport, entry.Stage, entry.Status,
		entry.ErrorKind, entry.ErrorMsg, entry.RowsAffected, entry.DurationMS, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}
	return nil
}

// ListDeliveries returns the most recent entries ordered newest first.
func (s *SQLiteDeliveryLogStore) ListDeliveries(ctx context.Context, recipient string, limit int) (entries []DeliveryLogEntry, err error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, message_id, recipient, transport, stage, status,
			error_kind, error_msg, rows_affected, duration_ms, created_at
		FROM delivery_log`
	args := []any{}
	if recipient != "" {
		query += " WHERE recipient = ?"
		args = append(args, recipient)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var e DeliveryLogEntry
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Recipient, &e.Transport, &e.Stage, &e.Status,
			&e.ErrorKind, &e.ErrorMsg, &e.RowsAffected, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery log rows: %w", err)
	}
	return entries, nil
}

// PruneBefore deletes entries older than cutoff.
func (s *SQLiteDeliveryLogStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM delivery_log WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning delivery log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading pruned rows: %w", err)
	}
	return n, nil
}
