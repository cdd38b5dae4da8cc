package fipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

// referenceTableDTO is the wire shape of one pricing edition.
type referenceTableDTO struct {
	Codigo int    `json:"Codigo"`
	Mes    string `json:"Mes"`
}

// modelsDTO is the wire shape of ConsultarModelos: the brand's models plus
// the year/fuel combinations the brand spans.
type modelsDTO struct {
	Modelos []catalog.CodeLabel `json:"Modelos"`
	Anos    []catalog.CodeLabel `json:"Anos"`
}

// priceDTO is the wire shape of a price lookup.
type priceDTO struct {
	Valor          string `json:"Valor"`
	Marca          string `json:"Marca"`
	Modelo         string `json:"Modelo"`
	AnoModelo      int    `json:"AnoModelo"`
	Combustivel    string `json:"Combustivel"`
	CodigoFipe     string `json:"CodigoFipe"`
	MesReferencia  string `json:"MesReferencia"`
	TipoVeiculo    int    `json:"TipoVeiculo"`
	SiglaCombustvl string `json:"SiglaCombustivel"`
}

// ReferenceTables lists all monthly pricing editions, newest first.
func (c *Client) ReferenceTables(ctx context.Context) ([]catalog.ReferenceTable, error) {
	body, err := c.postForm(ctx, opReferenceTables, url.Values{})
	if err != nil {
		return nil, err
	}
	if emptyResult(body) {
		return nil, nil
	}
	var dtos []referenceTableDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", opReferenceTables, err)
	}
	tables := make([]catalog.ReferenceTable, 0, len(dtos))
	for _, d := range dtos {
		tables = append(tables, catalog.ReferenceTable{Code: d.Codigo, MonthLabel: d.Mes})
	}
	return tables, nil
}

// CurrentReference resolves the newest pricing edition once and caches it
// for the lifetime of the client.
func (c *Client) CurrentReference(ctx context.Context) (catalog.ReferenceTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return *c.current, nil
	}
	tables, err := c.ReferenceTables(ctx)
	if err != nil {
		return catalog.ReferenceTable{}, err
	}
	if len(tables) == 0 {
		return catalog.ReferenceTable{}, fmt.Errorf("%s: no editions returned", opReferenceTables)
	}
	c.current = &tables[0]
	c.log.Info("resolved current reference table",
		zap.Int("code", c.current.Code),
		zap.String("month", c.current.MonthLabel))
	return *c.current, nil
}

// Brands lists the manufacturers of one vehicle class.
func (c *Client) Brands(ctx context.Context, class catalog.VehicleClass) ([]catalog.Brand, error) {
	ref, err := c.CurrentReference(ctx)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"codigoTabelaReferencia": {strconv.Itoa(ref.Code)},
		"codigoTipoVeiculo":      {strconv.Itoa(int(class))},
	}
	body, err := c.postForm(ctx, opBrands, form)
	if err != nil {
		return nil, err
	}
	if emptyResult(body) {
		return nil, nil
	}
	var items []catalog.CodeLabel
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", opBrands, err)
	}
	brands := make([]catalog.Brand, 0, len(items))
	for _, cl := range items {
		b, err := catalog.BrandFromCodeLabel(cl, class)
		if err != nil {
			c.log.Warn("skipping malformed brand item", zap.Error(err))
			continue
		}
		brands = append(brands, b)
	}
	return brands, nil
}

// Models lists a brand's models together with the year/fuel combinations the
// brand spans. Both come from a single upstream call.
func (c *Client) Models(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, []catalog.YearFuelVariant, error) {
	ref, err := c.CurrentReference(ctx)
	if err != nil {
		return nil, nil, err
	}
	form := url.Values{
		"codigoTipoVeiculo":      {strconv.Itoa(int(class))},
		"codigoTabelaReferencia": {strconv.Itoa(ref.Code)},
		"codigoMarca":            {brandCode},
	}
	body, err := c.postForm(ctx, opModels, form)
	if err != nil {
		return nil, nil, err
	}
	if emptyResult(body) {
		return nil, nil, nil
	}
	var dto modelsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, nil, fmt.Errorf("%s: decode: %w", opModels, err)
	}

	models := make([]catalog.Model, 0, len(dto.Modelos))
	for _, cl := range dto.Modelos {
		m, err := catalog.ModelFromCodeLabel(cl, brandCode, class)
		if err != nil {
			c.log.Warn("skipping malformed model item",
				zap.String("brand", brandCode), zap.Error(err))
			continue
		}
		models = append(models, m)
	}
	variants := make([]catalog.YearFuelVariant, 0, len(dto.Anos))
	for _, cl := range dto.Anos {
		v, err := catalog.NewYearFuelVariant(cl.Value, cl.Label)
		if err != nil {
			c.log.Warn("skipping malformed year item",
				zap.String("brand", brandCode), zap.Error(err))
			continue
		}
		variants = append(variants, v)
	}
	return models, variants, nil
}

// ModelYears lists the year/fuel variants available for one model.
func (c *Client) ModelYears(ctx context.Context, class catalog.VehicleClass, brandCode, modelCode string) ([]catalog.YearFuelVariant, error) {
	ref, err := c.CurrentReference(ctx)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"codigoTipoVeiculo":      {strconv.Itoa(int(class))},
		"codigoTabelaReferencia": {strconv.Itoa(ref.Code)},
		"codigoMarca":            {brandCode},
		"codigoModelo":           {modelCode},
	}
	body, err := c.postForm(ctx, opModelYears, form)
	if err != nil {
		return nil, err
	}
	if emptyResult(body) {
		return nil, nil
	}
	var items []catalog.CodeLabel
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", opModelYears, err)
	}
	variants := make([]catalog.YearFuelVariant, 0, len(items))
	for _, cl := range items {
		v, err := catalog.NewYearFuelVariant(cl.Value, cl.Label)
		if err != nil {
			c.log.Warn("skipping malformed year item",
				zap.String("model", modelCode), zap.Error(err))
			continue
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// ModelsByYear lists the models of a brand that exist for one year/fuel
// combination. The code must carry a fuel suffix ("32000-1").
func (c *Client) ModelsByYear(ctx context.Context, class catalog.VehicleClass, brandCode, yearFuelCode string) ([]catalog.Model, error) {
	year, fuel, hasFuel, err := catalog.ParseYearFuelCode(yearFuelCode)
	if err != nil {
		return nil, err
	}
	if !hasFuel {
		return nil, fmt.Errorf("%s: code %q lacks a fuel suffix", opModelsByYear, yearFuelCode)
	}
	ref, err := c.CurrentReference(ctx)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"codigoTipoVeiculo":      {strconv.Itoa(int(class))},
		"codigoTabelaReferencia": {strconv.Itoa(ref.Code)},
		"codigoModelo":           {""},
		"codigoMarca":            {brandCode},
		"ano":                    {yearFuelCode},
		"codigoTipoCombustivel":  {strconv.Itoa(fuel)},
		"anoModelo":              {strconv.Itoa(year)},
		"modeloCodigoExterno":    {""},
	}
	body, err := c.postForm(ctx, opModelsByYear, form)
	if err != nil {
		return nil, err
	}
	if emptyResult(body) {
		return nil, nil
	}
	var items []catalog.CodeLabel
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", opModelsByYear, err)
	}
	models := make([]catalog.Model, 0, len(items))
	for _, cl := range items {
		m, err := catalog.ModelFromCodeLabel(cl, brandCode, class)
		if err != nil {
			c.log.Warn("skipping malformed model item",
				zap.String("brand", brandCode), zap.Error(err))
			continue
		}
		models = append(models, m)
	}
	return models, nil
}

// Price fetches the quoted value of one vehicle in one pricing edition.
// found is false when the edition carries no quote for the vehicle.
func (c *Client) Price(ctx context.Context, class catalog.VehicleClass, brandCode, modelCode string, year, fuel, refCode int) (catalog.PriceQuote, bool, error) {
	form := url.Values{
		"codigoTabelaReferencia": {strconv.Itoa(refCode)},
		"codigoMarca":            {brandCode},
		"codigoModelo":           {modelCode},
		"codigoTipoVeiculo":      {strconv.Itoa(int(class))},
		"anoModelo":              {strconv.Itoa(year)},
		"codigoTipoCombustivel":  {strconv.Itoa(fuel)},
		"tipoVeiculo":            {class.String()},
		"tipoConsulta":           {"tradicional"},
	}
	body, err := c.postForm(ctx, opPrice, form)
	if err != nil {
		return catalog.PriceQuote{}, false, err
	}
	if emptyResult(body) {
		return catalog.PriceQuote{}, false, nil
	}
	var dto priceDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return catalog.PriceQuote{}, false, fmt.Errorf("%s: decode: %w", opPrice, err)
	}
	if dto.Valor == "" {
		return catalog.PriceQuote{}, false, nil
	}

	numeric, err := catalog.ParseBRL(dto.Valor)
	if err != nil {
		return catalog.PriceQuote{}, false, fmt.Errorf("%s: %w", opPrice, err)
	}
	month, err := catalog.ParseReferenceMonth(dto.MesReferencia)
	if err != nil {
		return catalog.PriceQuote{}, false, fmt.Errorf("%s: %w", opPrice, err)
	}
	return catalog.PriceQuote{
		BrandCode:      brandCode,
		ModelCode:      modelCode,
		Class:          class,
		Year:           year,
		FuelCode:       fuel,
		ReferenceMonth: month,
		RawValue:       dto.Valor,
		NumericValue:   numeric,
		FipeCode:       dto.CodigoFipe,
		ReferenceCode:  refCode,
		BrandName:      dto.Marca,
		ModelName:      dto.Modelo,
		FuelName:       dto.Combustivel,
		QueriedAt:      time.Now().UTC(),
	}, true, nil
}
