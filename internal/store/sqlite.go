package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol         TEXT    NOT NULL,
	strategy       TEXT    NOT NULL,
	created_at     INTEGER NOT NULL,
	start_date     TEXT    NOT NULL,
	end_date       TEXT    NOT NULL,
	bars           INTEGER NOT NULL,
	lookback       INTEGER NOT NULL,
	slippage       REAL    NOT NULL,
	fee_rate       REAL    NOT NULL,
	stop_loss      REAL    NOT NULL,
	trade_count    INTEGER NOT NULL,
	average_return REAL,
	total_return   REAL    NOT NULL,
	win_rate       REAL    NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	date   TEXT    NOT NULL,
	action TEXT    NOT NULL,
	reason TEXT    NOT NULL,
	price  REAL    NOT NULL,
	fee    REAL    NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run and its fills in one transaction. A zero CreatedAt is
// set to the current time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var avg sql.NullFloat64
	if run.AverageReturn != nil {
		avg = sql.NullFloat64{Float64: *run.AverageReturn, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (symbol, strategy, created_at, start_date, end_date, bars,
			lookback, slippage, fee_rate, stop_loss,
			trade_count, average_return, total_return, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Symbol, run.Strategy, run.CreatedAt.UnixMilli(), run.Start, run.End, run.Bars,
		run.Lookback, run.Slippage, run.FeeRate, run.StopLoss,
		run.TradeCount, avg, run.TotalReturn, run.WinRate)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fills (run_id, seq, date, action, reason, price, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, f := range run.Fills {
		if _, err := stmt.ExecContext(ctx, id, i, f.Date, f.Action, f.Reason, f.Price, f.Fee); err != nil {
			return 0, fmt.Errorf("inserting fill %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	run.ID = id
	for i := range run.Fills {
		run.Fills[i].Seq = i
	}
	return id, nil
}

// GetRun retrieves a single run, including fills, by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	fills, err := s.ListFills(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Fills = fills
	return run, nil
}

// ListFills returns the fills of a run in execution order.
func (s *SQLiteStore) ListFills(ctx context.Context, runID int64) ([]FillRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, date, action, reason, price, fee
		FROM fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.Seq, &f.Date, &f.Action, &f.Reason, &f.Price, &f.Fee); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListRuns returns the most recent runs, newest first, up to limit. A
// non-positive limit returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const runColumns = `id, symbol, strategy, created_at, start_date, end_date, bars,
	lookback, slippage, fee_rate, stop_loss,
	trade_count, average_return, total_return, win_rate`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		r       RunRecord
		created int64
		avg     sql.NullFloat64
	)
	if err := sc.Scan(&r.ID, &r.Symbol, &r.Strategy, &created, &r.Start, &r.End, &r.Bars,
		&r.Lookback, &r.Slippage, &r.FeeRate, &r.StopLoss,
		&r.TradeCount, &avg, &r.TotalReturn, &r.WinRate); err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if avg.Valid {
		v := avg.Float64
		r.AverageReturn = &v
	}
	return &r, nil
}
