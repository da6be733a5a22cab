// Package storage provides SQLite-backed persistence for bar history and
// portfolio holdings.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/trendmonster/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNoHoldings is returned when no holdings have been recorded yet.
var ErrNoHoldings = errors.New("no holdings recorded")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db               *sql.DB
	maxBarsPerSeries int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/trendmonster/data.db.
func New(maxBarsPerSeries int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "trendmonster", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxBarsPerSeries: maxBarsPerSeries}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT NOT NULL,
			interval   TEXT NOT NULL,
			date       INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, interval, date)
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			spy        REAL NOT NULL,
			tqqq       REAL NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBars inserts or replaces bars and trims each touched series.
func (s *Storage) UpsertBars(bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars
			(symbol, interval, date, open, high, low, close, fetched_at)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	type series struct {
		symbol   string
		interval models.Interval
	}
	touched := make(map[series]bool)
	for i := range bars {
		b := &bars[i]
		if err := b.Validate(); err != nil {
			return fmt.Errorf("invalid bar %s/%s %s: %w", b.Symbol, b.Interval, b.Key(), err)
		}
		if _, err := stmt.Exec(b.Symbol, string(b.Interval), b.Date.UnixNano(),
			b.Open, b.High, b.Low, b.Close, now); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
		touched[series{b.Symbol, b.Interval}] = true
	}

	for k := range touched {
		if err := rotate(tx, k.symbol, k.interval, s.maxBarsPerSeries); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadBars returns a stored series, oldest first.
func (s *Storage) LoadBars(symbol string, interval models.Interval) ([]models.Bar, error) {
	rows, err := s.db.Query(`
		SELECT date, open, high, low, close
		FROM bars WHERE symbol = ? AND interval = ?
		ORDER BY date ASC`, symbol, string(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		b := models.Bar{Symbol: symbol, Interval: interval}
		var dateNano int64
		if err := rows.Scan(&dateNano, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = time.Unix(0, dateNano).UTC()
		bars = append(bars, b)
	}
	if bars == nil {
		bars = []models.Bar{}
	}
	return bars, rows.Err()
}

// RotateBars keeps at most maxBarsPerSeries newest bars of every series.
func (s *Storage) RotateBars() error {
	rows, err := s.db.Query(`SELECT DISTINCT symbol, interval FROM bars`)
	if err != nil {
		return fmt.Errorf("failed to list series: %w", err)
	}
	type series struct {
		symbol   string
		interval models.Interval
	}
	var all []series
	for rows.Next() {
		var k series
		var interval string
		if err := rows.Scan(&k.symbol, &interval); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan series: %w", err)
		}
		k.interval = models.Interval(interval)
		all = append(all, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list series: %w", err)
	}

	for _, k := range all {
		if err := rotate(s.db, k.symbol, k.interval, s.maxBarsPerSeries); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func rotate(db execer, symbol string, interval models.Interval, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := db.Exec(`
		DELETE FROM bars WHERE symbol = ? AND interval = ? AND date NOT IN (
			SELECT date FROM bars WHERE symbol = ? AND interval = ?
			ORDER BY date DESC LIMIT ?
		)`, symbol, string(interval), symbol, string(interval), keep)
	if err != nil {
		return fmt.Errorf("failed to rotate bars for %s/%s: %w", symbol, interval, err)
	}
	return nil
}

// SaveHoldings replaces the recorded holdings.
func (s *Storage) SaveHoldings(h *models.Holdings) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO holdings (id, spy, tqqq, updated_at)
		VALUES (1,?,?,?)`, h.SPY, h.TQQQ, h.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save holdings: %w", err)
	}
	return nil
}

// LoadHoldings returns the recorded holdings or ErrNoHoldings.
func (s *Storage) LoadHoldings() (*models.Holdings, error) {
	var h models.Holdings
	var updatedAtNano int64
	err := s.db.QueryRow(`SELECT spy, tqqq, updated_at FROM holdings WHERE id = 1`).
		Scan(&h.SPY, &h.TQQQ, &updatedAtNano)
	if err == sql.ErrNoRows {
		return nil, ErrNoHoldings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	h.UpdatedAt = time.Unix(0, updatedAtNano)
	return &h, nil
}
