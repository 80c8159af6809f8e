package survey

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/station-orient/internal/angle"
)

// GeoEasy field codes used by the reader.
const (
	geoStation      = 2
	geoInstHeight   = 3
	geoPointID      = 5
	geoSignalHeight = 6
	geoHz           = 7
	geoV            = 8
	geoSlopeDist    = 9
)

// ReadGeo parses a GeoEasy observation file. Each target line looks like
// {{5 P12} {7 1.2345} {8 1.5607} {9 48.211}}; angles are radians. Station
// lines (code 2) are not targets; their id and instrument height (code 3)
// are recorded as "station" and "instrument_height" metadata on the targets
// that follow.
func ReadGeo(r io.Reader) (Catalog, error) {
	var cat Catalog
	station, instHeight := "", ""
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		fields, err := parseGeoRecord(line)
		if err != nil {
			return nil, fmt.Errorf("geo line %d: %w", lineNo, err)
		}
		if id, ok := fields[geoStation]; ok {
			station, instHeight = id, fields[geoInstHeight]
			continue
		}
		id, ok := fields[geoPointID]
		if !ok {
			continue
		}

		obs := Observation{ID: id, Metadata: map[string]string{}}
		if station != "" {
			obs.Metadata["station"] = station
		}
		if instHeight != "" {
			obs.Metadata["instrument_height"] = instHeight
		}
		if v, ok := fields[geoSignalHeight]; ok {
			obs.Metadata["signal_height"] = v
		}
		if v, ok := fields[geoHz]; ok {
			a, err := angle.Parse(v, angle.RAD)
			if err != nil {
				return nil, fmt.Errorf("geo line %d: %w", lineNo, err)
			}
			obs.Hz = &a
		}
		if v, ok := fields[geoV]; ok {
			a, err := angle.Parse(v, angle.RAD)
			if err != nil {
				return nil, fmt.Errorf("geo line %d: %w", lineNo, err)
			}
			obs.V = &a
		}
		if v, ok := fields[geoSlopeDist]; ok {
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("geo line %d: invalid distance %q: %w", lineNo, v, err)
			}
			obs.Distance = &d
		}
		cat = append(cat, obs)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("reading geo file: %w", err)
	}
	return cat, nil
}

// parseGeoRecord splits "{{c v} {c v} ...}" into a code→value map. Values
// may themselves be brace-quoted to carry spaces.
func parseGeoRecord(line string) (map[int]string, error) {
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return nil, fmt.Errorf("record not enclosed in braces: %q", line)
	}
	body := strings.TrimSpace(line[1 : len(line)-1])
	out := make(map[int]string)
	for len(body) > 0 {
		if body[0] != '{' {
			return nil, fmt.Errorf("expected '{' in %q", body)
		}
		depth, end := 0, -1
		for i, c := range body {
			if c == '{' {
				depth++
			} else if c == '}' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unbalanced braces in %q", line)
		}
		item := strings.TrimSpace(body[1:end])
		body = strings.TrimSpace(body[end+1:])

		codeStr, value, found := strings.Cut(item, " ")
		if !found {
			return nil, fmt.Errorf("field without value: %q", item)
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid field code %q", codeStr)
		}
		value = strings.TrimSpace(value)
		value = strings.TrimSuffix(strings.TrimPrefix(value, "{"), "}")
		out[code] = value
	}
	return out, nil
}
