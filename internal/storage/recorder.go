package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaharia-lab/verimail/internal/event"
)

// RecordOutcome reports the effect of one delivery-status update.
type RecordOutcome struct {
	Username string `json:"username"`

	// AttemptedAt is when this update ran. The stored email_sent keeps the
	// first send time, so on a repeat record the two differ.
	AttemptedAt  time.Time `json:"attempted_at"`
	RowsAffected int64     `json:"rows_affected"`
}

// Updated reports whether a user row matched. A zero count is not an error:
// the row may not be visible yet.
func (o RecordOutcome) Updated() bool { return o.RowsAffected > 0 }

// Recorder persists that verification mail was sent to a user.
type Recorder interface {
	Record(ctx context.Context, id event.UserIdentity) (RecordOutcome, error)
}

// PersistenceErrorKind separates "could not reach the store" from "the store
// refused the statement".
type PersistenceErrorKind string

// Persistence failure kinds.
const (
	ConnectFailure PersistenceErrorKind = "connect_failure"
	QueryFailure   PersistenceErrorKind = "query_failure"
)

// PersistenceError is returned by Recorder implementations.
type PersistenceError struct {
	Kind PersistenceErrorKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Dialect selects the placeholder syntax of the underlying driver.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLUserStore marks user rows as having been sent verification mail. It never
// inserts: the row is owned by the registration flow.
type SQLUserStore struct {
	db    *sql.DB
	query string
	now   func() time.Time
}

// NewSQLUserStore validates table (optionally schema-qualified) and prepares
// the update statement.
func NewSQLUserStore(db *sql.DB, table string, dialect Dialect) (*SQLUserStore, error) {
	ident, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	if dialect == "" {
		dialect = DialectPostgres
	}

	p1, p2 := "$1", "$2"
	if dialect == DialectSQLite {
		p1, p2 = "?", "?"
	}
	// COALESCE keeps the first send time so repeated records leave the row unchanged.
	query := fmt.Sprintf(
		"UPDATE %s SET email_sent = COALESCE(email_sent, %s), verify_email_sent = TRUE WHERE username = %s",
		ident, p1, p2,
	)

	return &SQLUserStore{db: db, query: query, now: time.Now}, nil
}

// Record runs the conditional update for id.Email.
func (s *SQLUserStore) Record(ctx context.Context, id event.UserIdentity) (RecordOutcome, error) {
	if id.Email == "" {
		return RecordOutcome{}, &PersistenceError{Kind: QueryFailure, Err: errors.New("identity has no email")}
	}

	sentAt := s.now().UTC()
	res, err := s.db.ExecContext(ctx, s.query, sentAt, id.Email)
	if err != nil {
		return RecordOutcome{}, &PersistenceError{Kind: classifyDBError(err), Err: fmt.Errorf("updating delivery status: %w", err)}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return RecordOutcome{}, &PersistenceError{Kind: QueryFailure, Err: fmt.Errorf("reading rows affected: %w", err)}
	}

	return RecordOutcome{Username: id.Email, AttemptedAt: sentAt, RowsAffected: n}, nil
}

func quoteTable(table string) (string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) == 0 || len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

func classifyDBError(err error) PersistenceErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; everything else the server
		// answered with is a query problem.
		if strings.HasPrefix(pgErr.Code, "08") {
			return ConnectFailure
		}
		return QueryFailure
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ConnectFailure
	}
	if strings.Contains(err.Error(), "sql: database is closed") {
		return ConnectFailure
	}
	return QueryFailure
}
