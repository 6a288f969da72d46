package ups

import (
	"math"
	"strconv"
	"strings"
)

// Scale multiplies a numeric raw value by factor and rounds to one decimal.
// Non-numeric values are returned unchanged; a zero factor means "not set".
func Scale(raw string, factor float64) string {
	if factor == 0 {
		return raw
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return raw
	}
	scaled := math.Round(v*factor*10) / 10
	return strconv.FormatFloat(scaled, 'f', 1, 64)
}
