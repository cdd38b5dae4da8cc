// Package catalog defines the core types shared by the FIPE crawling engine:
// the vehicle catalog entities, the traversal strategy selector, and the pure
// parsing helpers for the upstream API's string encodings.
package catalog

import "time"

// VehicleClass is a top-level partition of the FIPE catalog. The numeric
// values match the upstream API's codigoTipoVeiculo parameter.
type VehicleClass int

// Vehicle classes known to the upstream API.
const (
	Cars        VehicleClass = 1
	Motorcycles VehicleClass = 2
	Trucks      VehicleClass = 3
)

// String returns the short name the upstream API uses for the class.
func (c VehicleClass) String() string {
	switch c {
	case Cars:
		return "carro"
	case Motorcycles:
		return "moto"
	case Trucks:
		return "caminhao"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known vehicle classes.
func (c VehicleClass) Valid() bool {
	return c == Cars || c == Motorcycles || c == Trucks
}

// ReferenceTable is one monthly pricing edition. Code is the upstream's own
// identifier; the newest edition has the highest code.
type ReferenceTable struct {
	Code       int
	MonthLabel string
}

// Brand is a vehicle manufacturer within one vehicle class.
// PK: (Code, Class).
type Brand struct {
	Code  string
	Class VehicleClass
	Name  string
}

// Model belongs to exactly one Brand. PK: (Code, BrandCode, Class).
type Model struct {
	Code      string
	BrandCode string
	Class     VehicleClass
	Name      string
}

// YearFuelVariant is one year/fuel combination as encoded by the upstream,
// e.g. "2014-1" (2014, Gasolina) or "32000-6" (zero-km, Híbrido).
// PK: Code. Rows are immutable once created.
type YearFuelVariant struct {
	Code     string
	Label    string
	Year     int
	FuelCode int // 0 when the code carries no fuel suffix
	FuelName string
}

// ModelYearLink ties a Model to a YearFuelVariant. Its absence for a
// (model, year, fuel) triple is exactly what makes a model incomplete.
// PK: all four fields.
type ModelYearLink struct {
	BrandCode    string
	ModelCode    string
	Class        VehicleClass
	YearFuelCode string
}

// PriceQuote is one priced vehicle in one monthly edition. History accumulates
// across editions; within an edition the row is upserted idempotently.
// PK: (BrandCode, ModelCode, Class, Year, FuelCode, ReferenceMonth).
type PriceQuote struct {
	BrandCode      string
	ModelCode      string
	Class          VehicleClass
	Year           int
	FuelCode       int
	ReferenceMonth string // normalized YYYYMM
	RawValue       string // e.g. "R$ 38.279,00"
	NumericValue   float64
	FipeCode       string
	ReferenceCode  int
	BrandName      string
	ModelName      string
	FuelName       string
	QueriedAt      time.Time
}
