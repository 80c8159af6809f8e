// Package survey holds observations and the ordered target catalog used to
// recognise a sighted prism, plus readers for the catalog file formats.
package survey

import (
	"github.com/banshee-data/station-orient/internal/angle"
)

// Observation is a single sighting. Nil fields are absent: a live reading
// may lack Hz, and catalog rows from some sources lack a distance.
type Observation struct {
	ID       string            `json:"id,omitempty"`
	Hz       *angle.Angle      `json:"-"`
	V        *angle.Angle      `json:"-"`
	Distance *float64          `json:"distance,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasHz reports whether the horizontal direction is present.
func (o Observation) HasHz() bool { return o.Hz != nil }

// HasV reports whether the zenith angle is present.
func (o Observation) HasV() bool { return o.V != nil }

// HasDistance reports whether the slope distance is present.
func (o Observation) HasDistance() bool { return o.Distance != nil }

// Catalog is an ordered list of previously surveyed targets. Order matters:
// the first entry is conventionally the backsight and matching is
// first-hit-wins in catalog order.
type Catalog []Observation

// ZenithBounds returns the smallest and largest zenith angle among entries
// that carry one. ok is false when no entry has a zenith.
func (c Catalog) ZenithBounds() (lo, hi angle.Angle, ok bool) {
	for _, o := range c {
		if o.V == nil {
			continue
		}
		if !ok {
			lo, hi, ok = *o.V, *o.V, true
			continue
		}
		if o.V.Less(lo) {
			lo = *o.V
		}
		if hi.Less(*o.V) {
			hi = *o.V
		}
	}
	return lo, hi, ok
}

// AnglePtr returns a pointer to a, for building observations inline.
func AnglePtr(a angle.Angle) *angle.Angle { return &a }

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 { return &f }
