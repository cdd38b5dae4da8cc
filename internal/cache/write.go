package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

// withTx runs fn inside a single write transaction.
func (c *Cache) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	start := time.Now()
	defer func() {
		if c.rec != nil {
			c.rec.AddDBTime(time.Since(start))
		}
	}()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %w)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache transaction: %w", err)
	}
	return nil
}

// UpsertReferenceTables inserts or refreshes pricing editions. Editions are
// never deleted; the history only grows.
func (c *Cache) UpsertReferenceTables(ctx context.Context, tables []catalog.ReferenceTable) error {
	if len(tables) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reference_tables (code, month_label) VALUES (?, ?)
			ON CONFLICT (code) DO UPDATE SET month_label = excluded.month_label`)
		if err != nil {
			return fmt.Errorf("prepare reference table upsert: %w", err)
		}
		defer stmt.Close()
		for _, t := range tables {
			if _, err := stmt.ExecContext(ctx, t.Code, t.MonthLabel); err != nil {
				return fmt.Errorf("upsert reference table %d: %w", t.Code, err)
			}
		}
		return nil
	})
}

// UpsertBrands inserts brands, refreshing the name on re-discovery.
func (c *Cache) UpsertBrands(ctx context.Context, brands []catalog.Brand) error {
	if len(brands) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO brands (code, vehicle_class, name) VALUES (?, ?, ?)
			ON CONFLICT (code, vehicle_class) DO UPDATE SET name = excluded.name`)
		if err != nil {
			return fmt.Errorf("prepare brand upsert: %w", err)
		}
		defer stmt.Close()
		for _, b := range brands {
			if _, err := stmt.ExecContext(ctx, b.Code, int(b.Class), b.Name); err != nil {
				return fmt.Errorf("upsert brand %s/%s: %w", b.Code, b.Class, err)
			}
		}
		return nil
	})
}

// UpsertModels inserts models, refreshing the name on re-discovery.
func (c *Cache) UpsertModels(ctx context.Context, models []catalog.Model) error {
	if len(models) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO models (code, brand_code, vehicle_class, name) VALUES (?, ?, ?, ?)
			ON CONFLICT (code, brand_code, vehicle_class) DO UPDATE SET name = excluded.name`)
		if err != nil {
			return fmt.Errorf("prepare model upsert: %w", err)
		}
		defer stmt.Close()
		for _, m := range models {
			if _, err := stmt.ExecContext(ctx, m.Code, m.BrandCode, int(m.Class), m.Name); err != nil {
				return fmt.Errorf("upsert model %s of brand %s: %w", m.Code, m.BrandCode, err)
			}
		}
		return nil
	})
}

// UpsertYearFuelVariants inserts variants. Variants are immutable once
// created, so conflicts are ignored.
func (c *Cache) UpsertYearFuelVariants(ctx context.Context, variants []catalog.YearFuelVariant) error {
	if len(variants) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO year_fuel_variants (code, label, year, fuel_code, fuel_name)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (code) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare variant upsert: %w", err)
		}
		defer stmt.Close()
		for _, v := range variants {
			if _, err := stmt.ExecContext(ctx, v.Code, v.Label, v.Year, v.FuelCode, v.FuelName); err != nil {
				return fmt.Errorf("upsert variant %s: %w", v.Code, err)
			}
		}
		return nil
	})
}

// UpsertModelYearLinks inserts model/variant links, ignoring duplicates.
// All links of one batch land in one transaction, so a crash never leaves a
// model half-linked within the batch.
func (c *Cache) UpsertModelYearLinks(ctx context.Context, links []catalog.ModelYearLink) error {
	if len(links) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO model_year_links (brand_code, model_code, vehicle_class, year_fuel_code)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (brand_code, model_code, vehicle_class, year_fuel_code) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare link upsert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, l.BrandCode, l.ModelCode, int(l.Class), l.YearFuelCode); err != nil {
				return fmt.Errorf("upsert link %s/%s/%s: %w", l.BrandCode, l.ModelCode, l.YearFuelCode, err)
			}
		}
		return nil
	})
}

// UpsertPriceQuotes writes a batch of quotes in one transaction. Within the
// same (vehicle, month) key the newer quote replaces the older one.
func (c *Cache) UpsertPriceQuotes(ctx context.Context, quotes []catalog.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO price_quotes (
				brand_code, model_code, vehicle_class, year, fuel_code, reference_month,
				raw_value, numeric_value, fipe_code, reference_code,
				brand_name, model_name, fuel_name, queried_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (brand_code, model_code, vehicle_class, year, fuel_code, reference_month)
			DO UPDATE SET
				raw_value = excluded.raw_value,
				numeric_value = excluded.numeric_value,
				fipe_code = excluded.fipe_code,
				reference_code = excluded.reference_code,
				brand_name = excluded.brand_name,
				model_name = excluded.model_name,
				fuel_name = excluded.fuel_name,
				queried_at = excluded.queried_at`)
		if err != nil {
			return fmt.Errorf("prepare quote upsert: %w", err)
		}
		defer stmt.Close()
		for _, q := range quotes {
			if _, err := stmt.ExecContext(ctx,
				q.BrandCode, q.ModelCode, int(q.Class), q.Year, q.FuelCode, q.ReferenceMonth,
				q.RawValue, q.NumericValue, q.FipeCode, q.ReferenceCode,
				q.BrandName, q.ModelName, q.FuelName, q.QueriedAt); err != nil {
				return fmt.Errorf("upsert quote %s/%s %d-%d %s: %w",
					q.BrandCode, q.ModelCode, q.Year, q.FuelCode, q.ReferenceMonth, err)
			}
		}
		return nil
	})
}
