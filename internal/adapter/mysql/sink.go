package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"toggl-earnings/internal/domain"
)

// Client implements ports.SnapshotSink by writing to MySQL.
type Client struct {
	db  *sql.DB
	log *slog.Logger
}

// NewClient opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func NewClient(ctx context.Context, dsn string, log *slog.Logger) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// Writes happen at most once per change of the total.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return &Client{db: db, log: log}, nil
}

// RecordSnapshot appends s to the change log and upserts the month's latest
// total, in one transaction.
func (c *Client) RecordSnapshot(ctx context.Context, s domain.Snapshot) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	month := s.Month.Format(time.DateOnly)
	total := s.Total.String()
	at := s.ComputedAt.UTC()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO earnings_snapshots (month, total, computed_at) VALUES (?, ?, ?)`,
		month, total, at,
	); err != nil {
		tx.Rollback()
		return err
	}
	const upsert = `
INSERT INTO earnings_months
  (month, total, updated_at)
VALUES
  (?, ?, ?)
ON DUPLICATE KEY UPDATE
  total=VALUES(total),
  updated_at=VALUES(updated_at);
`
	if _, err := tx.ExecContext(ctx, upsert, month, total, at); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Debug("mysql sink recorded snapshot", slog.String("month", month), slog.String("total", total))
	return nil
}

// MonthTotal returns the latest recorded total for the month starting at
// month, and false if none was recorded.
func (c *Client) MonthTotal(ctx context.Context, month time.Time) (decimal.Decimal, bool, error) {
	var total string
	err := c.db.QueryRowContext(ctx,
		`SELECT total FROM earnings_months WHERE month = ?`, month.Format(time.DateOnly),
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// Close closes the underlying DB. Not wired via interface to keep ports minimal.
func (c *Client) Close() error { return c.db.Close() }

// DB exposes the pool for schema migrations.
func (c *Client) DB() *sql.DB { return c.db }
