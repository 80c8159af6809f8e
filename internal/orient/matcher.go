// Package orient finds a known reference prism with a motorised total
// station and sets the instrument's horizontal orientation from it.
package orient

import (
	"math"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/survey"
)

// Match is a catalog entry recognised from a live observation.
type Match struct {
	Index int
	ID    string
	Hz    angle.Angle
}

// Matcher recognises a live observation against an ordered catalog by slope
// distance and height difference (distance·cos(zenith)).
type Matcher struct {
	catalog survey.Catalog
	tol     float64
}

// NewMatcher keeps a reference to cat; the catalog must not change while the
// matcher is in use.
func NewMatcher(cat survey.Catalog, distTol float64) Matcher {
	return Matcher{catalog: cat, tol: distTol}
}

// Find returns the first catalog entry, in catalog order, whose distance and
// elevation both differ from obs by strictly less than the tolerance.
// Observations without distance or zenith never match. Catalog entries
// lacking any of hz, zenith or distance are skipped, even when their
// distance and elevation would match: a hit must carry a bearing.
func (m Matcher) Find(obs survey.Observation) (Match, bool) {
	if !obs.HasDistance() || !obs.HasV() {
		return Match{}, false
	}
	dist := *obs.Distance
	elev := elevation(dist, *obs.V)

	for i, e := range m.catalog {
		if !e.HasDistance() || !e.HasV() || !e.HasHz() {
			continue
		}
		if math.Abs(dist-*e.Distance) < m.tol && math.Abs(elev-elevation(*e.Distance, *e.V)) < m.tol {
			return Match{Index: i, ID: e.ID, Hz: *e.Hz}, true
		}
	}
	return Match{}, false
}

func elevation(dist float64, v angle.Angle) float64 {
	return dist * math.Cos(v.Radians())
}
