// Package history provides the persistent append-only simulation log.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLStore implements domain.HistoryStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
//
// A single mutex serializes Append, ReadAll and Clear: the log is
// read-mostly and small, and what it must guarantee is strict ordering
// with no torn records, not throughput.
type SQLStore struct {
	mu     sync.Mutex
	db     *sql.DB
	driver string
}

// New creates a history store based on configuration.
func New(cfg domain.HistoryConfig) (domain.HistoryStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the log schema and probes it. An unreadable existing log
// is dropped and recreated empty: data loss on corruption is the documented
// policy, reported as a warning instead of failing startup.
func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(schemaHistory); err != nil {
		return err
	}

	// Probe the full column set, not just the table name, so a leftover
	// table with a different shape is caught here instead of inside Append.
	probe := s.rebind(`
		SELECT position, timestamp, income, age, requested_amount,
			   collateral_value, collateral_liquidity, probability,
			   approved, message
		FROM history LIMIT 1
	`)
	if rows, err := s.db.Query(probe); err == nil {
		rows.Close()
		return nil
	}

	slog.Warn("history log unreadable, resetting",
		"error", domain.ErrHistoryCorrupted,
	)
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS history`); err != nil {
		return err
	}
	_, err := s.db.Exec(schemaHistory)
	return err
}

// Append adds one record to the end of the log.
func (s *SQLStore) Append(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Next position is read under the same lock that guards the insert, so
	// two appends cannot interleave.
	var next int64
	query := s.rebind(`SELECT COALESCE(MAX(position), 0) + 1 FROM history`)
	if err := s.db.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate history position: %w", err)
	}

	insert := s.rebind(`
		INSERT INTO history (
			position, timestamp, income, age, requested_amount,
			collateral_value, collateral_liquidity, probability,
			approved, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, insert,
		next, rec.Timestamp.UTC(),
		rec.Income, rec.Age,
		rec.RequestedAmount, rec.CollateralValue,
		string(rec.CollateralLiquidity),
		finiteOrNull(rec.Probability),
		rec.Approved, rec.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	rec.ID = next
	return nil
}

// ReadAll returns every record in insertion order.
func (s *SQLStore) ReadAll(ctx context.Context) ([]*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.rebind(`
		SELECT position, timestamp, income, age, requested_amount,
			   collateral_value, collateral_liquidity, probability,
			   approved, message
		FROM history
		ORDER BY position ASC
	`)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.HistoryRecord, 0)
	for rows.Next() {
		var rec domain.HistoryRecord
		var ts time.Time
		var liquidity string
		var prob sql.NullFloat64
		var message sql.NullString

		if err := rows.Scan(
			&rec.ID, &ts,
			&rec.Income, &rec.Age,
			&rec.RequestedAmount, &rec.CollateralValue,
			&liquidity, &prob,
			&rec.Approved, &message,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		rec.Timestamp = ts.UTC()
		rec.CollateralLiquidity = domain.Liquidity(liquidity)
		rec.Message = message.String

		// NaN or Inf artifacts from prior computation come back as nil,
		// never as non-finite values.
		if prob.Valid && !math.IsNaN(prob.Float64) && !math.IsInf(prob.Float64, 0) {
			p := prob.Float64
			rec.Probability = &p
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Clear deletes the entire log. Idempotent.
func (s *SQLStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM history`)); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Ping checks database health.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// finiteOrNull maps absent or non-finite probabilities to SQL NULL.
func finiteOrNull(p *float64) any {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return *p
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
