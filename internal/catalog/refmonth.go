package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

var monthNumbers = map[string]int{
	"janeiro":   1,
	"fevereiro": 2,
	"março":     3,
	"abril":     4,
	"maio":      5,
	"junho":     6,
	"julho":     7,
	"agosto":    8,
	"setembro":  9,
	"outubro":   10,
	"novembro":  11,
	"dezembro":  12,
}

var monthNames = [13]string{"", "Janeiro", "Fevereiro", "Março", "Abril",
	"Maio", "Junho", "Julho", "Agosto", "Setembro", "Outubro", "Novembro",
	"Dezembro"}

// ParseReferenceMonth normalizes an upstream edition label to a sortable
// YYYYMM key. Accepted inputs: "janeiro/2026", "janeiro de 2026", and keys
// that are already normalized ("202601", passed through).
func ParseReferenceMonth(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("empty reference month label")
	}
	if len(label) == 6 && isDigits(label) {
		return label, nil
	}

	lower := strings.ToLower(label)
	var monthName, yearPart string
	switch {
	case strings.Contains(lower, "/"):
		monthName, yearPart, _ = strings.Cut(lower, "/")
	case strings.Contains(lower, " de "):
		monthName, yearPart, _ = strings.Cut(lower, " de ")
	default:
		return "", fmt.Errorf("unrecognized reference month label %q", label)
	}

	monthName = strings.TrimSpace(monthName)
	yearPart = strings.TrimSpace(yearPart)
	month, ok := monthNumbers[monthName]
	if !ok {
		return "", fmt.Errorf("unknown month name %q", monthName)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return "", fmt.Errorf("parse year in %q: %w", label, err)
	}
	return fmt.Sprintf("%04d%02d", year, month), nil
}

// FormatReferenceMonth renders a normalized YYYYMM key for humans, e.g.
// "202601" -> "Janeiro/2026". Unrecognized input is returned unchanged.
func FormatReferenceMonth(key string) string {
	if len(key) != 6 || !isDigits(key) {
		return key
	}
	month, err := strconv.Atoi(key[4:6])
	if err != nil || month < 1 || month > 12 {
		return key
	}
	return fmt.Sprintf("%s/%s", monthNames[month], key[:4])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
