package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// SentinelYear is the upstream's placeholder for "current model year / zero
// km". It sorts as newest, never as a literal calendar year.
const SentinelYear = 32000

// fuelNames maps upstream fuel codes to their display names.
var fuelNames = map[int]string{
	1: "Gasolina",
	2: "Álcool",
	3: "Diesel",
	4: "Elétrico",
	5: "Flex",
	6: "Híbrido",
	7: "Gás Natural",
}

// FuelName returns the display name for an upstream fuel code, or "" for an
// unknown or absent code.
func FuelName(code int) string {
	return fuelNames[code]
}

// ParseYearFuelCode decodes an upstream year/fuel code such as "2014-1" into
// its year and fuel components. A bare year ("32000") is legal and yields
// hasFuel == false.
func ParseYearFuelCode(code string) (year, fuel int, hasFuel bool, err error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, 0, false, fmt.Errorf("empty year/fuel code")
	}
	yearPart, fuelPart, found := strings.Cut(code, "-")
	year, err = strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse year in %q: %w", code, err)
	}
	if !found {
		return year, 0, false, nil
	}
	fuel, err = strconv.Atoi(fuelPart)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse fuel in %q: %w", code, err)
	}
	return year, fuel, true, nil
}

// YearFuelCode builds the upstream encoding of a year/fuel pair.
func YearFuelCode(year, fuel int) string {
	return fmt.Sprintf("%d-%d", year, fuel)
}

// NewYearFuelVariant decodes code/label into a YearFuelVariant.
func NewYearFuelVariant(code, label string) (YearFuelVariant, error) {
	year, fuel, hasFuel, err := ParseYearFuelCode(code)
	if err != nil {
		return YearFuelVariant{}, err
	}
	v := YearFuelVariant{Code: code, Label: label, Year: year}
	if hasFuel {
		v.FuelCode = fuel
		v.FuelName = FuelName(fuel)
	}
	return v, nil
}

// YearDisplay renders a year for humans, mapping the sentinel to "Zero Km".
func YearDisplay(year int) string {
	if year == SentinelYear {
		return "Zero Km"
	}
	return strconv.Itoa(year)
}
