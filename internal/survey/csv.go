package survey

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/station-orient/internal/angle"
)

// ReadCSV parses a delimited catalog with a header row. Columns named id,
// hz, v and distance (any case) fill the observation; other columns are
// kept as metadata. Angles are read in unit. Empty cells leave the field
// absent.
func ReadCSV(r io.Reader, unit string, comma rune) (Catalog, error) {
	if !angle.IsValid(unit) {
		return nil, fmt.Errorf("invalid angle unit %q", unit)
	}
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var cat Catalog
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
		line, _ := cr.FieldPos(0)

		var obs Observation
		for i, cell := range rec {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			switch header[i] {
			case "id":
				obs.ID = cell
			case "hz", "v":
				a, err := angle.Parse(cell, unit)
				if err != nil {
					return nil, fmt.Errorf("catalog line %d: %w", line, err)
				}
				if header[i] == "hz" {
					obs.Hz = &a
				} else {
					obs.V = &a
				}
			case "distance":
				d, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("catalog line %d: invalid distance %q: %w", line, cell, err)
				}
				obs.Distance = &d
			default:
				if obs.Metadata == nil {
					obs.Metadata = make(map[string]string)
				}
				obs.Metadata[header[i]] = cell
			}
		}
		cat = append(cat, obs)
	}
	return cat, nil
}
