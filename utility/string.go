package utility

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToInt converts a decimal string to an integer; surrounding spaces are ignored,
// anything else that is not a digit makes the conversion fail
func ToInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// ToBool accepts "true" or "false" in any letter case
func ToBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %q", s)
}

// FormatFixed formats a float with a fixed number of decimals, like 1234.567 -> "1234.6"
func FormatFixed(f float64, decimals int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}
