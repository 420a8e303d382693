package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"TickerScreen/internal/model"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// columns of the bar table; date and symbol form the primary key, in that order.
var columns = []string{"symbol", "open", "close", "high", "low", "volume", "vw", "date", "updated_at"}

// selectList reads nullable columns as zero so tables written by other tools scan cleanly.
var selectList = `symbol, COALESCE(open, 0) AS open, COALESCE(close, 0) AS close,
	COALESCE(high, 0) AS high, COALESCE(low, 0) AS low, COALESCE(volume, 0) AS volume,
	COALESCE(vw, open, 0) AS vw, date, COALESCE(updated_at, 0) AS updated_at`

// SQLiteStore persists bars to a SQLite database.
type SQLiteStore struct {
	db    *sqlx.DB
	table string
	now   func() time.Time

	mu sync.Mutex
	tx *sqlx.Tx // pending batch, nil when nothing is uncommitted
}

// NewSQLiteStore opens (or creates) the SQLite database file.
// The bar table is not created until CreateSchema.
func NewSQLiteStore(dbPath, table string) (*SQLiteStore, error) {
	// busy_timeout in the DSN applies to every pooled connection.
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrConnection, err)
	}

	// WAL mode so screens can read while a download batch is pending.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set WAL mode on %s: %v", ErrConnection, dbPath, err)
	}

	s, err := NewSQLiteStoreFromDB(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", dbPath).Str("table", table).Msg("sqlite store opened")
	return s, nil
}

// NewSQLiteStoreFromDB wraps an already opened handle.
func NewSQLiteStoreFromDB(db *sqlx.DB, table string) (*SQLiteStore, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrSchema, table)
	}
	return &SQLiteStore{db: db, table: table, now: time.Now}, nil
}

func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol     TEXT NOT NULL,
			open       REAL,
			close      REAL,
			high       REAL,
			low        REAL,
			volume     REAL,
			vw         REAL,
			date       INTEGER NOT NULL,
			updated_at INTEGER,
			PRIMARY KEY (date, symbol)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return s.checkSchema(ctx)
}

type columnInfo struct {
	Name string `db:"name"`
	PK   int    `db:"pk"`
}

// checkSchema verifies an existing table has every bar column and the
// (date, symbol) primary key. Column types are not compared.
func (s *SQLiteStore) checkSchema(ctx context.Context) error {
	var cols []columnInfo
	if err := s.db.SelectContext(ctx, &cols, `SELECT name, pk FROM pragma_table_info(?)`, s.table); err != nil {
		return fmt.Errorf("inspect table %s: %w", s.table, err)
	}

	have := make(map[string]int, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c.Name)] = c.PK
	}
	for _, name := range columns {
		if _, ok := have[name]; !ok {
			return fmt.Errorf("%w: table %s has no column %q", ErrSchema, s.table, name)
		}
	}
	if have["date"] != 1 || have["symbol"] != 2 {
		return fmt.Errorf("%w: table %s primary key is not (date, symbol)", ErrSchema, s.table)
	}
	for name, pk := range have {
		if pk > 0 && name != "date" && name != "symbol" {
			return fmt.Errorf("%w: table %s has extra key column %q", ErrSchema, s.table, name)
		}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, bar model.Bar) error {
	if bar.Symbol == "" {
		return fmt.Errorf("upsert @%d: empty symbol", bar.Date)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch: %w", err)
		}
		s.tx = tx
	}

	q := fmt.Sprintf(`INSERT INTO %s
		(symbol, open, close, high, low, volume, vw, date, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date, symbol) DO UPDATE SET
			open=excluded.open, close=excluded.close, high=excluded.high, low=excluded.low,
			volume=excluded.volume, vw=excluded.vw, updated_at=excluded.updated_at`, s.table)

	_, err := s.tx.ExecContext(ctx, q,
		bar.Symbol, bar.Open, bar.Close, bar.High, bar.Low,
		bar.Volume, bar.VW, bar.Date, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s@%d: %w", bar.Symbol, bar.Date, err)
	}
	return nil
}

func (s *SQLiteStore) CommitBatch(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}
	return nil
}

func (s *SQLiteStore) RollbackBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback()
}

func (s *SQLiteStore) DistinctSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	q := fmt.Sprintf(`SELECT DISTINCT symbol FROM %s ORDER BY symbol`, s.table)
	if err := s.db.SelectContext(ctx, &symbols, q); err != nil {
		return nil, fmt.Errorf("distinct symbols: %w", err)
	}
	return symbols, nil
}

func (s *SQLiteStore) QueryRange(ctx context.Context, rq RangeQuery) ([]model.Bar, error) {
	var (
		where []string
		args  []interface{}
	)
	if rq.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, rq.Symbol)
	}
	if !rq.Since.IsZero() {
		where = append(where, "date > ?")
		args = append(args, rq.Since.UnixMilli())
	}

	q := fmt.Sprintf(`SELECT %s FROM %s`, selectList, s.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date ASC, symbol ASC"

	var bars []model.Bar
	if err := s.db.SelectContext(ctx, &bars, q, args...); err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	return bars, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.RollbackBatch(); err != nil {
		log.Warn().Err(err).Msg("discard pending batch on close")
	}
	log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
