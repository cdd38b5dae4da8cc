package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TableSpec describes one synchronized table: its columns in upload order
// and the natural-key columns used for conflict handling and reconciliation.
type TableSpec struct {
	Name       string
	Columns    []string
	KeyColumns []string
}

// SyncTables returns the synchronized tables in dependency order: parents
// before children, so uploads never hit a missing foreign key.
func SyncTables() []TableSpec {
	return []TableSpec{
		{
			Name:       "reference_tables",
			Columns:    []string{"code", "month_label"},
			KeyColumns: []string{"code"},
		},
		{
			Name:       "brands",
			Columns:    []string{"code", "vehicle_class", "name"},
			KeyColumns: []string{"code", "vehicle_class"},
		},
		{
			Name:       "models",
			Columns:    []string{"code", "brand_code", "vehicle_class", "name"},
			KeyColumns: []string{"code", "brand_code", "vehicle_class"},
		},
		{
			Name:       "year_fuel_variants",
			Columns:    []string{"code", "label", "year", "fuel_code", "fuel_name"},
			KeyColumns: []string{"code"},
		},
		{
			Name: "model_year_links",
			Columns: []string{
				"brand_code", "model_code", "vehicle_class", "year_fuel_code"},
			KeyColumns: []string{
				"brand_code", "model_code", "vehicle_class", "year_fuel_code"},
		},
		{
			Name: "price_quotes",
			Columns: []string{
				"brand_code", "model_code", "vehicle_class", "year", "fuel_code",
				"reference_month", "raw_value", "numeric_value", "fipe_code",
				"reference_code", "brand_name", "model_name", "fuel_name", "queried_at"},
			KeyColumns: []string{
				"brand_code", "model_code", "vehicle_class", "year", "fuel_code",
				"reference_month"},
		},
	}
}

// ReconcileTables returns the tables eligible for orphan deletion, children
// first, so a deleted model never leaves dangling links behind.
func ReconcileTables() []TableSpec {
	byName := make(map[string]TableSpec)
	for _, t := range SyncTables() {
		byName[t.Name] = t
	}
	return []TableSpec{
		byName["price_quotes"],
		byName["model_year_links"],
		byName["models"],
	}
}

// TableRows reads every row of a synchronized table in column order.
func (c *Cache) TableRows(ctx context.Context, spec TableSpec) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(spec.Columns, ", "), spec.Name)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", spec.Name, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		row := make([]any, len(spec.Columns))
		dest := make([]any, len(spec.Columns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", spec.Name, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TableKeys reads the natural-key set of a synchronized table. Keys are
// joined with KeyJoin so they compare equal to remote keys.
func (c *Cache) TableKeys(ctx context.Context, spec TableSpec) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(spec.KeyColumns, ", "), spec.Name)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read keys of %s: %w", spec.Name, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		row := make([]any, len(spec.KeyColumns))
		dest := make([]any, len(spec.KeyColumns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan key of %s: %w", spec.Name, err)
		}
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = KeyString(v)
		}
		keys[KeyJoin(parts)] = struct{}{}
	}
	return keys, rows.Err()
}

// CountFor counts the rows of one synchronized table.
func (c *Cache) CountFor(ctx context.Context, table string) (int64, error) {
	var known bool
	for _, t := range SyncTables() {
		if t.Name == table {
			known = true
			break
		}
	}
	if !known {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// KeyJoin joins natural-key parts into one comparable string. The separator
// never appears in catalog codes.
func KeyJoin(parts []string) string {
	return strings.Join(parts, "\x1f")
}

// KeyString renders one key value the same way Postgres' text cast would,
// so local and remote key sets compare directly.
func KeyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		// timestamptz::text in an UTC session.
		return x.UTC().Format("2006-01-02 15:04:05+00")
	default:
		return fmt.Sprint(x)
	}
}
