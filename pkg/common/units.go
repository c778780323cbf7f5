package common

import (
	"math"
	"strings"
)

type unitConv struct {
	base   string
	factor float64
	offset float64
}

// units maps lower-cased unit spellings to a base unit. Temperatures use
// an offset so that base = value*factor + offset.
var units = map[string]unitConv{
	"g":  {"g", 1, 0},
	"kg": {"g", 1000, 0},
	"mg": {"g", 0.001, 0},
	"µg": {"g", 1e-6, 0},
	"ug": {"g", 1e-6, 0},
	"t":  {"g", 1e6, 0},

	"°c":      {"°C", 1, 0},
	"c":       {"°C", 1, 0},
	"degc":    {"°C", 1, 0},
	"celsius": {"°C", 1, 0},
	"k":       {"°C", 1, -273.15},
	"kelvin":  {"°C", 1, -273.15},
	"°f":      {"°C", 5.0 / 9.0, -160.0 / 9.0},
	"f":       {"°C", 5.0 / 9.0, -160.0 / 9.0},
	"degf":    {"°C", 5.0 / 9.0, -160.0 / 9.0},

	"%":       {"%", 1, 0},
	"percent": {"%", 1, 0},
	"vol%":    {"%", 1, 0},
	"wt%":     {"%", 1, 0},

	"ml": {"l", 0.001, 0},
	"l":  {"l", 1, 0},
	"m3": {"l", 1000, 0},

	"mm": {"m", 0.001, 0},
	"cm": {"m", 0.01, 0},
	"m":  {"m", 1, 0},

	"pa":   {"kPa", 0.001, 0},
	"kpa":  {"kPa", 1, 0},
	"mpa":  {"kPa", 1000, 0},
	"mbar": {"kPa", 0.1, 0},
	"bar":  {"kPa", 100, 0},
	"psi":  {"kPa", 6.894757, 0},
}

// NormalizeUnit converts numeric values with a known unit to the unit's
// base (grams, degrees Celsius, percent, litres, metres, kilopascal).
// Other values are returned unchanged.
func NormalizeUnit(v Value) Value {
	if v.Kind != KindNumber || v.Unit == "" {
		return v
	}
	n, base, ok := ConvertUnit(v.Num, v.Unit)
	if !ok {
		return v
	}
	return NumberValue(n, base)
}

// ConvertUnit expresses n given in unit in the matching base unit. It
// reports false for unknown units.
func ConvertUnit(n float64, unit string) (float64, string, bool) {
	if unit == "" {
		return n, "", true
	}
	key := strings.ToLower(strings.ReplaceAll(unit, " ", ""))
	key = strings.ReplaceAll(key, "º", "°")
	conv, ok := units[key]
	if !ok {
		return n, unit, false
	}
	return math.Round((n*conv.factor+conv.offset)*1e6) / 1e6, conv.base, true
}
