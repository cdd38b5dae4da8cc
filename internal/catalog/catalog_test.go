package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		name   string
		models int
		combos int
		want   Strategy
	}{
		{"fewer models", 40, 52, PerModel},
		{"fewer combos", 120, 18, PerCombination},
		{"tie favors per-model", 10, 10, PerModel},
		{"zero models", 0, 5, PerModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseStrategy(tt.models, tt.combos))
		})
	}
}

func TestParseYearFuelCode(t *testing.T) {
	tests := []struct {
		code     string
		wantYear int
		wantFuel int
		hasFuel  bool
		wantErr  bool
	}{
		{code: "2014-1", wantYear: 2014, wantFuel: 1, hasFuel: true},
		{code: "32000-6", wantYear: 32000, wantFuel: 6, hasFuel: true},
		{code: "32000", wantYear: 32000, hasFuel: false},
		{code: " 1999-3 ", wantYear: 1999, wantFuel: 3, hasFuel: true},
		{code: "", wantErr: true},
		{code: "abc-1", wantErr: true},
		{code: "2014-x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			year, fuel, hasFuel, err := ParseYearFuelCode(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantFuel, fuel)
			assert.Equal(t, tt.hasFuel, hasFuel)
		})
	}
}

func TestNewYearFuelVariant(t *testing.T) {
	v, err := NewYearFuelVariant("2014-1", "2014 Gasolina")
	require.NoError(t, err)
	assert.Equal(t, 2014, v.Year)
	assert.Equal(t, 1, v.FuelCode)
	assert.Equal(t, "Gasolina", v.FuelName)

	v, err = NewYearFuelVariant("32000", "Zero Km")
	require.NoError(t, err)
	assert.Equal(t, SentinelYear, v.Year)
	assert.Zero(t, v.FuelCode)
	assert.Empty(t, v.FuelName)
}

func TestYearDisplay(t *testing.T) {
	assert.Equal(t, "Zero Km", YearDisplay(SentinelYear))
	assert.Equal(t, "2014", YearDisplay(2014))
}

func TestFuelName(t *testing.T) {
	assert.Equal(t, "Gasolina", FuelName(1))
	assert.Equal(t, "Gás Natural", FuelName(7))
	assert.Empty(t, FuelName(0))
	assert.Empty(t, FuelName(99))
}

func TestParseReferenceMonth(t *testing.T) {
	tests := []struct {
		label   string
		want    string
		wantErr bool
	}{
		{label: "janeiro/2026", want: "202601"},
		{label: "março/2025", want: "202503"},
		{label: "dezembro de 2024", want: "202412"},
		{label: "Janeiro/2026 ", want: "202601"},
		{label: "202601", want: "202601"},
		{label: "", wantErr: true},
		{label: "smarch/2026", wantErr: true},
		{label: "janeiro", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseReferenceMonth(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatReferenceMonth(t *testing.T) {
	assert.Equal(t, "Janeiro/2026", FormatReferenceMonth("202601"))
	assert.Equal(t, "Dezembro/2024", FormatReferenceMonth("202412"))
	assert.Equal(t, "not-a-key", FormatReferenceMonth("not-a-key"))
	assert.Equal(t, "202613", FormatReferenceMonth("202613"))
}

func TestParseBRL(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{raw: "R$ 38.279,00", want: 38279.00},
		{raw: "R$ 1.234.567,89", want: 1234567.89},
		{raw: "R$ 950,50", want: 950.50},
		{raw: "38.279,00", want: 38279.00},
		{raw: "", wantErr: true},
		{raw: "R$ ", wantErr: true},
		{raw: "R$ abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseBRL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestCodeLabelValidate(t *testing.T) {
	assert.NoError(t, CodeLabel{Value: "21", Label: "Acura"}.Validate())
	assert.Error(t, CodeLabel{Value: "", Label: "Acura"}.Validate())
	assert.Error(t, CodeLabel{Value: "21", Label: "  "}.Validate())
}

func TestBrandFromCodeLabel(t *testing.T) {
	b, err := BrandFromCodeLabel(CodeLabel{Value: " 21 ", Label: " Acura "}, Cars)
	require.NoError(t, err)
	assert.Equal(t, Brand{Code: "21", Class: Cars, Name: "Acura"}, b)

	_, err = BrandFromCodeLabel(CodeLabel{}, Cars)
	assert.Error(t, err)
}

func TestVehicleClass(t *testing.T) {
	assert.Equal(t, "carro", Cars.String())
	assert.Equal(t, "moto", Motorcycles.String())
	assert.Equal(t, "caminhao", Trucks.String())
	assert.True(t, Trucks.Valid())
	assert.False(t, VehicleClass(0).Valid())
	assert.False(t, VehicleClass(4).Valid())
}
