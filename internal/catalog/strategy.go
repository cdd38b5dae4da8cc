package catalog

// Strategy is the traversal order chosen for one brand.
type Strategy int

const (
	// PerModel issues one variant-listing request per model.
	PerModel Strategy = iota
	// PerCombination issues one model-listing request per year/fuel
	// combination and unions the results.
	PerCombination
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	if s == PerCombination {
		return "per-combination"
	}
	return "per-model"
}

// ChooseStrategy picks the traversal that issues fewer upstream requests for
// a brand reporting modelCount models and comboCount year/fuel combinations.
// Ties favor PerModel because it yields per-model provenance for free.
func ChooseStrategy(modelCount, comboCount int) Strategy {
	if modelCount <= comboCount {
		return PerModel
	}
	return PerCombination
}
