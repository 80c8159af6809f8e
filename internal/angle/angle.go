// Package angle provides the planar angle value used for instrument pointing
// and catalog bearings. Values are stored in radians.
package angle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
)

// Unit constants
const (
	RAD = "RAD"
	DEG = "DEG"
	GON = "GON"
	DMS = "DMS"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{RAD, DEG, GON, DMS}

// FullTurn is one full rotation in radians.
const FullTurn = 2 * math.Pi

// HalfTurn is the face classification threshold (200 gon).
const HalfTurn = math.Pi

// Angle is an immutable planar angle.
type Angle struct {
	rad float64
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Radians returns an Angle of r radians.
func Radians(r float64) Angle { return Angle{rad: r} }

// Degrees returns an Angle of d decimal degrees.
func Degrees(d float64) Angle { return Angle{rad: d * math.Pi / 180} }

// Gons returns an Angle of g gons (400 gon per turn).
func Gons(g float64) Angle { return Angle{rad: g * math.Pi / 200} }

// New converts a numeric value in the given unit. DMS is not numeric and
// must go through Parse.
func New(v float64, unit string) (Angle, error) {
	switch unit {
	case RAD:
		return Radians(v), nil
	case DEG:
		return Degrees(v), nil
	case GON:
		return Gons(v), nil
	default:
		return Angle{}, fmt.Errorf("unsupported numeric angle unit %q", unit)
	}
}

// Parse reads s in the given unit. DMS values are written "ddd-mm-ss" with
// optional fractional seconds and an optional leading sign.
func Parse(s, unit string) (Angle, error) {
	s = strings.TrimSpace(s)
	if unit != DMS {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Angle{}, fmt.Errorf("invalid %s angle %q: %w", unit, s, err)
		}
		return New(v, unit)
	}

	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Angle{}, fmt.Errorf("invalid DMS angle %q: expected ddd-mm-ss", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Angle{}, fmt.Errorf("invalid DMS angle %q: %w", s, err)
		}
		vals[i] = v
	}
	if vals[1] >= 60 || vals[2] >= 60 {
		return Angle{}, fmt.Errorf("invalid DMS angle %q: minutes and seconds must be below 60", s)
	}
	return Degrees(sign * (vals[0] + vals[1]/60 + vals[2]/3600)), nil
}

// Radians returns the value in radians.
func (a Angle) Radians() float64 { return a.rad }

// Degrees returns the value in decimal degrees.
func (a Angle) Degrees() float64 { return a.rad * 180 / math.Pi }

// Gon returns the value in gons.
func (a Angle) Gon() float64 { return a.rad * 200 / math.Pi }

// DMS formats the value as ddd-mm-ss to whole seconds.
func (a Angle) DMS() string {
	sign := ""
	secs := math.Round(math.Abs(a.Degrees()) * 3600)
	if a.rad < 0 && secs > 0 {
		sign = "-"
	}
	d := math.Floor(secs / 3600)
	m := math.Floor((secs - d*3600) / 60)
	s := secs - d*3600 - m*60
	return fmt.Sprintf("%s%d-%02d-%02d", sign, int(d), int(m), int(s))
}

// In returns the numeric value in unit. DMS is rejected; use DMS().
func (a Angle) In(unit string) (float64, error) {
	switch unit {
	case RAD:
		return a.Radians(), nil
	case DEG:
		return a.Degrees(), nil
	case GON:
		return a.Gon(), nil
	default:
		return 0, fmt.Errorf("unsupported numeric angle unit %q", unit)
	}
}

// Add returns a+b without wrapping.
func (a Angle) Add(b Angle) Angle { return Angle{rad: a.rad + b.rad} }

// Sub returns a-b without wrapping.
func (a Angle) Sub(b Angle) Angle { return Angle{rad: a.rad - b.rad} }

// Scale returns a multiplied by k.
func (a Angle) Scale(k float64) Angle { return Angle{rad: a.rad * k} }

// Normalize wraps a into [0, 2π).
func (a Angle) Normalize() Angle {
	r := math.Mod(a.rad, FullTurn)
	if r < 0 {
		r += FullTurn
	}
	// math.Mod can return FullTurn-ε for tiny negative inputs which rounds
	// back onto FullTurn after the addition above.
	if r >= FullTurn {
		r = 0
	}
	return Angle{rad: r}
}

// Less reports whether a < b.
func (a Angle) Less(b Angle) bool { return a.rad < b.rad }

// Cmp returns -1, 0 or +1 comparing a with b.
func (a Angle) Cmp(b Angle) int {
	switch {
	case a.rad < b.rad:
		return -1
	case a.rad > b.rad:
		return 1
	default:
		return 0
	}
}

// Near reports whether a and b are within tol radians of each other.
func (a Angle) Near(b Angle, tol float64) bool {
	return scalar.EqualWithinAbs(a.rad, b.rad, tol)
}

// String formats the angle in DMS, which is how field crews read bearings.
func (a Angle) String() string { return a.DMS() }
