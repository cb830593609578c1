package utils

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var decimalPattern = regexp.MustCompile(`[.,](\d{1,2})$`)

// NormalizeNumber turns a number written with either thousand-separator
// convention into a float. A trailing separator followed by one or two digits
// is taken as the decimal mark; every other separator is dropped.
func NormalizeNumber(s string) float64 {
	s = strings.Trim(strings.TrimSpace(s), ".,")
	if s == "" {
		return 0
	}

	intPart, fracPart := s, ""
	if m := decimalPattern.FindStringSubmatchIndex(s); m != nil {
		intPart = s[:m[0]]
		fracPart = s[m[2]:m[3]]
	}

	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	clean := intPart
	if fracPart != "" {
		clean += "." + fracPart
	}

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return value
}

// Median returns the median of values, or 0 for an empty slice.
// The input is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
