// Package remote implements the Postgres-backed remote store the sync
// engine uploads the local cache to. The store exposes a minimal generic
// CRUD surface keyed by natural keys; the table layout mirrors the local
// cache schema.
package remote

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is the remote CRUD surface the sync engine depends on.
type Store interface {
	// Upsert inserts rows by natural key, updating non-key columns on
	// conflict. Returns the number of rows sent.
	Upsert(ctx context.Context, table string, columns, conflictCols []string, rows [][]any) (int64, error)
	// DeleteWhere deletes the single row matching the key columns.
	DeleteWhere(ctx context.Context, table string, keyCols []string, keyVals []any) error
	// Count counts the rows of a table.
	Count(ctx context.Context, table string) (int64, error)
	// SelectKeys reads the full key set of a table as text tuples.
	SelectKeys(ctx context.Context, table string, keyCols []string) ([][]string, error)
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool querier
}

// New connects a PostgresStore using the provided config.
func New(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("remote.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func validateIdentifiers(table string, cols ...[]string) error {
	if !validIdentifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	for _, group := range cols {
		for _, c := range group {
			if !validIdentifier.MatchString(c) {
				return fmt.Errorf("invalid column name %q", c)
			}
		}
	}
	return nil
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, table string, columns, conflictCols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := validateIdentifiers(table, columns, conflictCols); err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ",
		table, strings.Join(columns, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, row[j])
		}
		sb.WriteByte(')')
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) ", strings.Join(conflictCols, ", "))
	updates := updateColumns(columns, conflictCols)
	if len(updates) == 0 {
		sb.WriteString("DO NOTHING")
	} else {
		sb.WriteString("DO UPDATE SET ")
		for i, c := range updates {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = excluded.%s", c, c)
		}
	}

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return 0, fmt.Errorf("upsert into %s: %w", table, err)
	}
	return int64(len(rows)), nil
}

func updateColumns(columns, conflictCols []string) []string {
	key := make(map[string]struct{}, len(conflictCols))
	for _, c := range conflictCols {
		key[c] = struct{}{}
	}
	var out []string
	for _, c := range columns {
		if _, ok := key[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// DeleteWhere implements Store.
func (s *PostgresStore) DeleteWhere(ctx context.Context, table string, keyCols []string, keyVals []any) error {
	if err := validateIdentifiers(table, keyCols); err != nil {
		return err
	}
	if len(keyCols) == 0 || len(keyCols) != len(keyVals) {
		return fmt.Errorf("delete from %s: %d key columns, %d values", table, len(keyCols), len(keyVals))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s WHERE ", table)
	for i, c := range keyCols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = $%d", c, i+1)
	}
	if _, err := s.pool.Exec(ctx, sb.String(), keyVals...); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, table string) (int64, error) {
	if err := validateIdentifiers(table); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// SelectKeys implements Store. Every key column is cast to text so keys
// compare byte-for-byte against the local cache's key formatting.
func (s *PostgresStore) SelectKeys(ctx context.Context, table string, keyCols []string) ([][]string, error) {
	if err := validateIdentifiers(table, keyCols); err != nil {
		return nil, err
	}
	cast := make([]string, len(keyCols))
	for i, c := range keyCols {
		cast[i] = c + "::text"
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cast, ", "), table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select keys of %s: %w", table, err)
	}
	defer rows.Close()

	var keys [][]string
	for rows.Next() {
		vals := make([]string, len(keyCols))
		dest := make([]any, len(keyCols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan keys of %s: %w", table, err)
		}
		keys = append(keys, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read keys of %s: %w", table, err)
	}
	return keys, nil
}
