package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`[\d.]+`)

// SafeStr trims surrounding whitespace. Absent values are the empty string.
func SafeStr(s string) string {
	return strings.TrimSpace(s)
}

// ExtractNumber parses the first number in a display string written with
// "." as thousands separator and "," as decimal separator, e.g.
// "14.952 đ/kg" -> 14952 and "1,5 kg" -> 1.5. It returns NaN and a
// QueryParseError when no number can be read.
func ExtractNumber(s string) (float64, *QueryParseError) {
	raw := s
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	match := numberPattern.FindString(s)
	if match == "" {
		return math.NaN(), &QueryParseError{Value: raw, Reason: "no digits"}
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN(), &QueryParseError{Value: raw, Reason: err.Error()}
	}
	return v, nil
}

// ExtractProvince returns the last two comma-separated segments of an
// address joined by ", ", or "" when the address has fewer than two.
func ExtractProvince(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return ""
	}
	tail := parts[len(parts)-2:]
	for i := range tail {
		tail[i] = strings.TrimSpace(tail[i])
	}
	return strings.Join(tail, ", ")
}

// ItemText is the text embedded for a stored item.
func ItemText(categoryName, productName string) string {
	return strings.TrimSpace(categoryName + " | " + productName)
}

// ParseCoordinate reads a decimal degree value, NaN when empty or invalid.
func ParseCoordinate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// FormatFloat renders a float for the metadata file. NaN is written empty.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
