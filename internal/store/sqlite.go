package store

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"BhavEngine/internal/model"
)

const dateLayout = "2006-01-02"

// SQLiteStore persists the canonical and adjusted datasets to a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers are not blocked while a backfill writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			symbol      TEXT NOT NULL,
			series      TEXT NOT NULL,
			date        TEXT NOT NULL,
			prev_close  REAL,
			open        REAL,
			high        REAL,
			low         REAL,
			last        REAL,
			close       REAL,
			avg_price   REAL,
			volume      INTEGER NOT NULL DEFAULT 0,
			turnover_lacs REAL,
			trade_count INTEGER NOT NULL DEFAULT 0,
			deliv_qty   INTEGER NOT NULL DEFAULT 0,
			deliv_per   REAL NOT NULL DEFAULT 0,
			source_tag  TEXT NOT NULL,
			PRIMARY KEY (symbol, series, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(date)`,

		`CREATE TABLE IF NOT EXISTS corporate_actions (
			symbol          TEXT NOT NULL,
			ex_date         TEXT NOT NULL,
			action_type     TEXT NOT NULL,
			dividend_amount REAL NOT NULL DEFAULT 0,
			split_from      REAL NOT NULL DEFAULT 0,
			split_to        REAL NOT NULL DEFAULT 0,
			bonus_from      REAL NOT NULL DEFAULT 0,
			bonus_to        REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ex_date, action_type)
		)`,

		`CREATE TABLE IF NOT EXISTS adjusted_prices (
			symbol     TEXT NOT NULL,
			series     TEXT NOT NULL,
			date       TEXT NOT NULL,
			close      REAL,
			factor     REAL NOT NULL DEFAULT 1,
			adj_close  REAL,
			PRIMARY KEY (symbol, series, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_adjusted_symbol ON adjusted_prices(symbol, date)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertCanonical(records []model.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO prices
		(symbol, series, date, prev_close, open, high, low, last, close, avg_price,
		 volume, turnover_lacs, trade_count, deliv_qty, deliv_per, source_tag)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, series, date) DO UPDATE SET
			prev_close=excluded.prev_close, open=excluded.open, high=excluded.high,
			low=excluded.low, last=excluded.last, close=excluded.close,
			avg_price=excluded.avg_price, volume=excluded.volume,
			turnover_lacs=excluded.turnover_lacs, trade_count=excluded.trade_count,
			deliv_qty=excluded.deliv_qty, deliv_per=excluded.deliv_per,
			source_tag=excluded.source_tag`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(r.Symbol, r.Series, r.Date.Format(dateLayout),
			nullable(r.PrevClose), nullable(r.Open), nullable(r.High), nullable(r.Low),
			nullable(r.Last), nullable(r.Close), nullable(r.AvgPrice),
			r.TotalTradedQty, nullable(r.TurnoverLacs), r.TradeCount,
			r.DeliveredQty, r.DeliveredPct, r.SourceTag)
		if err != nil {
			return fmt.Errorf("upsert price %s/%s/%s: %w", r.Symbol, r.Series, r.Date.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertActions(actions []model.CorporateAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO corporate_actions
		(symbol, ex_date, action_type, dividend_amount, split_from, split_to, bonus_from, bonus_to)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, ex_date, action_type) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range actions {
		a := &actions[i]
		_, err := stmt.Exec(a.Symbol, a.ExDate.Format(dateLayout), string(a.Type),
			a.DividendAmount, a.SplitRatioFrom, a.SplitRatioTo, a.BonusRatioFrom, a.BonusRatioTo)
		if err != nil {
			return fmt.Errorf("upsert action %s/%s: %w", a.Symbol, a.ExDate.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertAdjusted(records []model.AdjustedPriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO adjusted_prices
		(symbol, series, date, close, factor, adj_close)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(symbol, series, date) DO UPDATE SET
			close=excluded.close, factor=excluded.factor, adj_close=excluded.adj_close`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(r.Symbol, r.Series, r.Date.Format(dateLayout),
			nullable(r.Close), r.CumulativeFactor, nullable(r.AdjustedClose))
		if err != nil {
			return fmt.Errorf("upsert adjusted %s/%s/%s: %w", r.Symbol, r.Series, r.Date.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) QueryAdjusted(symbol string, from, to time.Time) ([]model.AdjustedPriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT symbol, series, date, close, factor, adj_close
		FROM adjusted_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY series, date`,
		symbol, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AdjustedPriceRecord
	for rows.Next() {
		var (
			rec             model.AdjustedPriceRecord
			dateStr         string
			close, adjClose sql.NullFloat64
		)
		if err := rows.Scan(&rec.Symbol, &rec.Series, &dateStr, &close, &rec.CumulativeFactor, &adjClose); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", dateStr, err)
		}
		rec.Date = d
		rec.Close = floatOrNaN(close)
		rec.AdjustedClose = floatOrNaN(adjClose)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestDate() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dateStr sql.NullString
	err := s.db.QueryRow(`SELECT MAX(date) FROM prices`).Scan(&dateStr)
	if err != nil {
		return time.Time{}, false, err
	}
	if !dateStr.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(dateLayout, dateStr.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored date %q: %w", dateStr.String, err)
	}
	return d, true, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

// nullable maps NaN to NULL; SQLite REAL has no NaN and the feeds use absence,
// not sentinels.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
