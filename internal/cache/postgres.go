// Package cache provides the Postgres-backed store for resolved VID records.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// uniqueViolation is the Postgres error code raised when the vid UNIQUE
// constraint fires. Insert pre-checks for the vid, so hitting it means two
// resolutions of the same vehicle raced; either way the row exists.
const uniqueViolation = "23505"

// columnFor maps selection fields to vid_cache columns.
var columnFor = map[string]string{
	catalog.FieldSeries:     "series",
	catalog.FieldBody:       "body",
	catalog.FieldModel:      "model",
	catalog.FieldMarket:     "market",
	catalog.FieldProduction: "production_month",
	catalog.FieldEngine:     "engine_code",
	catalog.FieldSteering:   "steering",
}

// DBPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool behind the cache.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

// Store implements catalog.Cache on top of Postgres.
type Store struct {
	pool   DBPool
	table  string
	clock  catalog.Clock
	logger *zap.Logger
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config, clock catalog.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table, clock, logger)
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool DBPool, table string, clock catalog.Clock, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "vid_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, table: table, clock: clock, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the cache table and its lookup indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	vid TEXT UNIQUE NOT NULL,
	series TEXT NOT NULL,
	body TEXT,
	model TEXT,
	market TEXT,
	production_month TEXT,
	engine_code TEXT,
	steering TEXT,
	url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_accessed TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_series ON %s (series)", s.table),
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_lookup ON %s (series, model, market, body, steering, engine_code, production_month)",
			s.table),
	}
	for _, stmt := range indexes {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Find returns the first record matching every constraint the selection
// carries, or nil when nothing matches. Storage failures are logged and
// reported as a miss so the caller can still resolve against the live
// catalog. A hit bumps last_accessed to now.
func (s *Store) Find(ctx context.Context, sel catalog.Selection) (*catalog.Record, error) {
	cons := sel.Constraints()
	where := make([]string, 0, len(cons))
	args := make([]any, 0, len(cons))
	for i, c := range cons {
		col, ok := columnFor[c.Field]
		if !ok {
			return nil, fmt.Errorf("unknown selection field %q", c.Field)
		}
		where = append(where, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, c.Value)
	}
	query := fmt.Sprintf(
		"SELECT id, vid, series, body, model, market, production_month, engine_code, steering, url, created_at, last_accessed FROM %s WHERE %s LIMIT 1",
		s.table, strings.Join(where, " AND "))

	var (
		id  int64
		rec catalog.Record

		body, model, market, production, engine, steering *string
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&id, &rec.VID, &rec.Series,
		&body, &model, &market, &production, &engine, &steering,
		&rec.URL, &rec.CreatedAt, &rec.LastAccess,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", zap.Error(err))
		return nil, nil
	}
	rec.Body = deref(body)
	rec.Model = deref(model)
	rec.Market = deref(market)
	rec.Production = deref(production)
	rec.Engine = deref(engine)
	rec.Steering = deref(steering)

	now := s.clock.Now()
	bump := fmt.Sprintf("UPDATE %s SET last_accessed = $1 WHERE id = $2", s.table)
	if _, err := s.pool.Exec(ctx, bump, now, id); err != nil {
		s.logger.Warn("recency update failed", zap.String("vid", rec.VID), zap.Error(err))
	} else {
		rec.LastAccess = now
	}
	return &rec, nil
}

// Insert persists a resolved record. It is idempotent on VID: a record whose
// VID is already cached is left untouched and no error is returned.
func (s *Store) Insert(ctx context.Context, rec *catalog.Record) error {
	if rec == nil || rec.VID == "" {
		return fmt.Errorf("record vid is required")
	}
	var one int
	check := fmt.Sprintf("SELECT 1 FROM %s WHERE vid = $1", s.table)
	err := s.pool.QueryRow(ctx, check, rec.VID).Scan(&one)
	if err == nil {
		s.logger.Debug("vid already cached, skipping insert", zap.String("vid", rec.VID))
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check existing vid: %w", err)
	}

	now := s.clock.Now()
	insert := fmt.Sprintf(`
INSERT INTO %s (
	vid, series, body, model, market, production_month, engine_code, steering, url, created_at, last_accessed
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)
	_, err = s.pool.Exec(ctx, insert,
		rec.VID, rec.Series,
		nullable(rec.Body), nullable(rec.Model), nullable(rec.Market),
		nullable(rec.Production), nullable(rec.Engine), nullable(rec.Steering),
		rec.URL, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			s.logger.Debug("lost duplicate-insert race, row already exists", zap.String("vid", rec.VID))
			return nil
		}
		return fmt.Errorf("insert vid record: %w", err)
	}
	return nil
}

// Stats reports the total row count and the per-series breakdown.
func (s *Store) Stats(ctx context.Context) (catalog.Stats, error) {
	st := catalog.Stats{BySeries: map[string]int64{}}
	total := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	if err := s.pool.QueryRow(ctx, total).Scan(&st.TotalCached); err != nil {
		return catalog.Stats{}, fmt.Errorf("count cached vids: %w", err)
	}
	bySeries := fmt.Sprintf("SELECT series, COUNT(*) FROM %s GROUP BY series", s.table)
	rows, err := s.pool.Query(ctx, bySeries)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("count vids by series: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			series string
			count  int64
		)
		if err := rows.Scan(&series, &count); err != nil {
			return catalog.Stats{}, fmt.Errorf("scan series count: %w", err)
		}
		st.BySeries[series] = count
	}
	if err := rows.Err(); err != nil {
		return catalog.Stats{}, fmt.Errorf("iterate series counts: %w", err)
	}
	return st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
