package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the "pgx" database/sql driver.
)

// PostgresConfig holds connection parameters for the user database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// ConnectTimeout bounds the initial dial and ping.
	ConnectTimeout time.Duration
}

// DSN renders the config as a postgres:// URL. A port embedded in Host wins
// over Port.
func (c PostgresConfig) DSN() string {
	host := c.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := c.Port
		if port == 0 {
			port = 5432
		}
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
	}

	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Round(time.Second)/time.Second)))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     host,
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// OpenPostgres opens a small connection pool through pgx's database/sql
// driver. Connections are established lazily; callers that want to fail fast
// should follow up with Ping.
func OpenPostgres(cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Ping checks connectivity within timeout.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return &PersistenceError{Kind: ConnectFailure, Err: err}
	}
	return nil
}
