package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders v as the shortest decimal that round-trips, always
// keeping a fractional part for integral values ("0.0", "600.0") and
// switching to exponent form for very large or very small magnitudes.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}

	return s
}
