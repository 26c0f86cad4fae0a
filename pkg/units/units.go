package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnsupportedConversion is returned when two units do not belong to the
// same convertible pair.
var ErrUnsupportedConversion = errors.New("units: unsupported conversion")

const (
	Centimeter = "cm"
	Foot       = "ft"
	Kilogram   = "kg"
	Pound      = "lb"
	Celsius    = "C"
	Fahrenheit = "F"
)

const (
	cmPerFoot  = 30.48
	kgPerPound = 0.45359237
)

var aliases = map[string]string{
	"cm":          Centimeter,
	"centimeter":  Centimeter,
	"centimeters": Centimeter,
	"ft":          Foot,
	"feet":        Foot,
	"foot":        Foot,
	"kg":          Kilogram,
	"kgs":         Kilogram,
	"kilogram":    Kilogram,
	"kilograms":   Kilogram,
	"lb":          Pound,
	"lbs":         Pound,
	"pound":       Pound,
	"pounds":      Pound,
	"c":           Celsius,
	"°c":          Celsius,
	"degc":        Celsius,
	"celsius":     Celsius,
	"f":           Fahrenheit,
	"°f":          Fahrenheit,
	"degf":        Fahrenheit,
	"fahrenheit":  Fahrenheit,
}

// Normalize maps unit spellings used by templates ("°C", "lbs", "Feet") onto
// the package constants. Units outside the convertible set are returned
// trimmed but otherwise untouched so they can still be compared for identity.
func Normalize(unit string) string {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := aliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// Same reports whether two unit spellings refer to the same unit.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Convertible reports whether Convert supports the from/to pair.
func Convertible(from, to string) bool {
	_, err := Convert(0, from, to)
	return err == nil
}

// Convert translates value between two units. It is the identity when both
// units match and never clamps the result.
func Convert(value float64, from, to string) (float64, error) {
	src, dst := Normalize(from), Normalize(to)
	if src == dst {
		return value, nil
	}

	switch {
	case src == Centimeter && dst == Foot:
		return value / cmPerFoot, nil
	case src == Foot && dst == Centimeter:
		return value * cmPerFoot, nil
	case src == Kilogram && dst == Pound:
		return value / kgPerPound, nil
	case src == Pound && dst == Kilogram:
		return value * kgPerPound, nil
	case src == Celsius && dst == Fahrenheit:
		return value*9/5 + 32, nil
	case src == Fahrenheit && dst == Celsius:
		return (value - 32) * 5 / 9, nil
	}
	return 0, fmt.Errorf("%w: %q to %q", ErrUnsupportedConversion, from, to)
}

// RoundForDisplay applies the display rounding policy: feet and pounds keep
// one decimal, Fahrenheit is shown as an integer, every other unit snaps to
// the field step. A non-positive step leaves the value untouched.
func RoundForDisplay(value float64, unit string, step float64) float64 {
	switch Normalize(unit) {
	case Foot, Pound:
		return roundTo(value, 1)
	case Fahrenheit:
		return math.Round(value)
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return value
	}
	snapped := math.Round(value/step) * step
	return roundTo(snapped, StepDecimals(step))
}

// StepDecimals returns the number of fractional digits carried by step
// (0.1 -> 1, 0.25 -> 2, 1 -> 0).
func StepDecimals(step float64) int {
	if step <= 0 {
		return 0
	}
	formatted := strconv.FormatFloat(step, 'f', -1, 64)
	idx := strings.IndexByte(formatted, '.')
	if idx < 0 {
		return 0
	}
	return len(formatted) - idx - 1
}

func roundTo(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(value)
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// FormatNumber renders a number without trailing zeros, rounded to at most
// two decimals. Used for range messages.
func FormatNumber(value float64) string {
	return strconv.FormatFloat(roundTo(value, 2), 'f', -1, 64)
}

// FormatMin renders a lower bound rounded up to two decimals, so every value
// at or above the shown number is inside the range.
func FormatMin(value float64) string {
	return strconv.FormatFloat(roundBound(value, math.Ceil), 'f', -1, 64)
}

// FormatMax renders an upper bound rounded down to two decimals, so every
// value at or below the shown number is inside the range.
func FormatMax(value float64) string {
	return strconv.FormatFloat(roundBound(value, math.Floor), 'f', -1, 64)
}

// roundBound applies fn at two decimals. Values already within conversion
// noise of a two-decimal number snap to it.
func roundBound(value float64, fn func(float64) float64) float64 {
	scaled := value * 100
	if nearest := math.Round(scaled); math.Abs(scaled-nearest) < 1e-6 {
		return nearest / 100
	}
	return fn(scaled) / 100
}
