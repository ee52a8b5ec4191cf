package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scale factors, matched case-insensitively. M is milli, MEG is mega.
var unitMap = map[string]float64{
	"t":   1e12,  // tera
	"g":   1e9,   // giga
	"meg": 1e6,   // mega
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

// Number followed by an optional scale factor and unit (V, s, ohm, F, Hz ...).
var valuePattern = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)([A-Za-z]*)$`)

// ParseValue parses a SPICE style value. 30ps -> 3e-11, 1.8PF -> 1.8e-12,
// 0.8V -> 0.8, 40ohm -> 40, 1M -> 1e-3, 1MEG -> 1e6. The scale factor is
// the leading letter(s) of the suffix; the rest is a unit and ignored.
func ParseValue(val string) (float64, error) {
	matches := valuePattern.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %q", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	return num * scaleFactor(strings.ToLower(matches[2])), nil
}

func scaleFactor(suffix string) float64 {
	if strings.HasPrefix(suffix, "meg") {
		return unitMap["meg"]
	}
	if suffix == "" {
		return 1
	}
	if factor, ok := unitMap[suffix[:1]]; ok {
		return factor
	}
	return 1
}

// FormatNumber renders v the way netlists carry plain numbers: 0.8, 4e-11.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
