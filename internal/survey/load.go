package survey

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/fsutil"
)

// LoadOptions controls how delimited catalogs are read. GeoEasy files are
// always radians.
type LoadOptions struct {
	// AngleUnit overrides the per-extension default (RAD for .csv, DMS for
	// .dmp).
	AngleUnit string
}

// LoadFile reads a catalog, choosing the reader by extension: .geo,
// .csv (comma separated) or .dmp (semicolon separated).
func LoadFile(fsys fsutil.FileSystem, path string, opts LoadOptions) (Catalog, error) {
	f, err := fsys.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	unit := opts.AngleUnit
	switch ext {
	case ".geo":
		return ReadGeo(f)
	case ".csv":
		if unit == "" {
			unit = angle.RAD
		}
		return ReadCSV(f, unit, ',')
	case ".dmp":
		if unit == "" {
			unit = angle.DMS
		}
		return ReadCSV(f, unit, ';')
	default:
		return nil, fmt.Errorf("unsupported catalog extension %q: expected .geo, .csv or .dmp", ext)
	}
}
