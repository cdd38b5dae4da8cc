package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

// Brands lists cached brands of one vehicle class, ordered by code.
func (c *Cache) Brands(ctx context.Context, class catalog.VehicleClass) ([]catalog.Brand, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT code, vehicle_class, name FROM brands
		WHERE vehicle_class = ? ORDER BY code`, int(class))
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	var brands []catalog.Brand
	for rows.Next() {
		var b catalog.Brand
		var cls int
		if err := rows.Scan(&b.Code, &cls, &b.Name); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		b.Class = catalog.VehicleClass(cls)
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// ModelsForBrand lists the cached models of one brand.
func (c *Cache) ModelsForBrand(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT code, brand_code, vehicle_class, name FROM models
		WHERE brand_code = ? AND vehicle_class = ? ORDER BY code`, brandCode, int(class))
	if err != nil {
		return nil, fmt.Errorf("query models for brand %s: %w", brandCode, err)
	}
	defer rows.Close()
	return scanModels(rows)
}

// ModelsWithoutYearLinks lists the brand's models that have no variant link
// yet. A non-empty result marks the brand as incomplete.
func (c *Cache) ModelsWithoutYearLinks(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT m.code, m.brand_code, m.vehicle_class, m.name
		FROM models m
		WHERE m.brand_code = ? AND m.vehicle_class = ?
		  AND NOT EXISTS (
			SELECT 1 FROM model_year_links l
			WHERE l.model_code = m.code
			  AND l.brand_code = m.brand_code
			  AND l.vehicle_class = m.vehicle_class)
		ORDER BY m.code`, brandCode, int(class))
	if err != nil {
		return nil, fmt.Errorf("query unlinked models for brand %s: %w", brandCode, err)
	}
	defer rows.Close()
	return scanModels(rows)
}

// BrandsWithoutModels lists cached brands that have no model rows at all.
func (c *Cache) BrandsWithoutModels(ctx context.Context, class catalog.VehicleClass) ([]catalog.Brand, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT b.code, b.vehicle_class, b.name
		FROM brands b
		WHERE b.vehicle_class = ?
		  AND NOT EXISTS (
			SELECT 1 FROM models m
			WHERE m.brand_code = b.code AND m.vehicle_class = b.vehicle_class)
		ORDER BY b.code`, int(class))
	if err != nil {
		return nil, fmt.Errorf("query brands without models: %w", err)
	}
	defer rows.Close()

	var brands []catalog.Brand
	for rows.Next() {
		var b catalog.Brand
		var cls int
		if err := rows.Scan(&b.Code, &cls, &b.Name); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		b.Class = catalog.VehicleClass(cls)
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func scanModels(rows *sql.Rows) ([]catalog.Model, error) {
	var models []catalog.Model
	for rows.Next() {
		var m catalog.Model
		var cls int
		if err := rows.Scan(&m.Code, &m.BrandCode, &cls, &m.Name); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m.Class = catalog.VehicleClass(cls)
		models = append(models, m)
	}
	return models, rows.Err()
}

// PriceTarget is one vehicle that still needs a quote for a given month.
type PriceTarget struct {
	BrandCode    string
	ModelCode    string
	Class        catalog.VehicleClass
	Year         int
	FuelCode     int
	YearFuelCode string
}

// PendingPriceTargets lists the linked vehicles with no quote for
// referenceMonth, newest model year first. Links without a fuel suffix are
// skipped because the price endpoint requires one.
func (c *Cache) PendingPriceTargets(ctx context.Context, referenceMonth string) ([]PriceTarget, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT l.brand_code, l.model_code, l.vehicle_class, v.year, v.fuel_code, l.year_fuel_code
		FROM model_year_links l
		JOIN year_fuel_variants v ON v.code = l.year_fuel_code
		WHERE v.fuel_code > 0
		  AND NOT EXISTS (
			SELECT 1 FROM price_quotes q
			WHERE q.brand_code = l.brand_code
			  AND q.model_code = l.model_code
			  AND q.vehicle_class = l.vehicle_class
			  AND q.year = v.year
			  AND q.fuel_code = v.fuel_code
			  AND q.reference_month = ?)
		ORDER BY v.year DESC, l.brand_code, l.model_code, v.fuel_code`, referenceMonth)
	if err != nil {
		return nil, fmt.Errorf("query pending price targets: %w", err)
	}
	defer rows.Close()

	var targets []PriceTarget
	for rows.Next() {
		var t PriceTarget
		var cls int
		if err := rows.Scan(&t.BrandCode, &t.ModelCode, &cls, &t.Year, &t.FuelCode, &t.YearFuelCode); err != nil {
			return nil, fmt.Errorf("scan price target: %w", err)
		}
		t.Class = catalog.VehicleClass(cls)
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// QuoteCountForMonth counts quotes already stored for one reference month.
func (c *Cache) QuoteCountForMonth(ctx context.Context, referenceMonth string) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_quotes WHERE reference_month = ?`, referenceMonth).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count quotes for month %s: %w", referenceMonth, err)
	}
	return n, nil
}
