package catalog

import (
	"fmt"
	"strings"
)

// CodeLabel is the upstream's universal listing element: every brand, model
// and variant listing is an array of these.
type CodeLabel struct {
	Value string `json:"Value"`
	Label string `json:"Label"`
}

// Validate rejects listing elements with a blank code or label. The upstream
// occasionally returns padding rows; callers skip them with a warning rather
// than aborting the whole listing.
func (cl CodeLabel) Validate() error {
	if strings.TrimSpace(cl.Value) == "" {
		return fmt.Errorf("listing element %q has empty code", cl.Label)
	}
	if strings.TrimSpace(cl.Label) == "" {
		return fmt.Errorf("listing element %q has empty label", cl.Value)
	}
	return nil
}

// BrandFromCodeLabel builds a Brand from a listing element.
func BrandFromCodeLabel(cl CodeLabel, class VehicleClass) (Brand, error) {
	if err := cl.Validate(); err != nil {
		return Brand{}, err
	}
	return Brand{
		Code:  strings.TrimSpace(cl.Value),
		Class: class,
		Name:  strings.TrimSpace(cl.Label),
	}, nil
}

// ModelFromCodeLabel builds a Model from a listing element.
func ModelFromCodeLabel(cl CodeLabel, brandCode string, class VehicleClass) (Model, error) {
	if err := cl.Validate(); err != nil {
		return Model{}, err
	}
	return Model{
		Code:      strings.TrimSpace(cl.Value),
		BrandCode: brandCode,
		Class:     class,
		Name:      strings.TrimSpace(cl.Label),
	}, nil
}
