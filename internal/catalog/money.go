package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBRL converts a Brazilian real amount such as "R$ 38.279,00" to its
// numeric value. The raw string is kept alongside the parsed value upstream
// of here, so a lossy parse never loses the source.
func ParseBRL(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price value %q", raw)
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return v, nil
}
