package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/fsutil"
	"github.com/banshee-data/station-orient/internal/serialmux"
	"github.com/banshee-data/station-orient/internal/station"
	"github.com/banshee-data/station-orient/internal/station/geocom"
)

// DefaultConfigPath is where cmd/orient looks when -config is not given.
const DefaultConfigPath = "config/orient.json"

// OrientConfig is the root configuration of an orientation run. Every field
// is optional; the Get* methods supply defaults for omitted ones, so partial
// files are safe.
type OrientConfig struct {
	// Instrument
	Model        *string                `json:"model,omitempty"`
	Port         *string                `json:"port,omitempty"`
	Serial       *serialmux.PortOptions `json:"serial,omitempty"`
	ReplyTimeout *string                `json:"reply_timeout,omitempty"` // duration string like "5s"

	// Catalog
	Catalog   *string `json:"catalog,omitempty"`
	AngleUnit *string `json:"angle_unit,omitempty"` // RAD, DEG, GON or DMS for .csv/.dmp

	// Search
	StepDeg        *float64 `json:"step_deg,omitempty"`
	DistTol        *float64 `json:"dist_tol,omitempty"`
	MeasureWait    *string  `json:"measure_wait,omitempty"` // duration string like "12s"
	EDMMode        *string  `json:"edm_mode,omitempty"`
	MeasureProgram *string  `json:"measure_program,omitempty"`

	// Diagnostics
	Listen *string `json:"listen,omitempty"` // debug HTTP address, empty disables
	Debug  *bool   `json:"debug,omitempty"`
}

// EmptyOrientConfig returns an OrientConfig with all fields set to nil.
func EmptyOrientConfig() *OrientConfig {
	return &OrientConfig{}
}

// LoadOrientConfig loads an OrientConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadOrientConfig(fsys fsutil.FileSystem, path string) (*OrientConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOrientConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *OrientConfig) Validate() error {
	if c.Model != nil {
		if _, err := geocom.Lookup(*c.Model); err != nil {
			return err
		}
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}

	if c.StepDeg != nil {
		if math.IsNaN(*c.StepDeg) || *c.StepDeg <= 0 || *c.StepDeg >= 360 {
			return fmt.Errorf("step_deg must be in (0, 360), got %v", *c.StepDeg)
		}
	}

	if c.DistTol != nil {
		if math.IsNaN(*c.DistTol) || *c.DistTol < 0 {
			return fmt.Errorf("dist_tol must be non-negative, got %v", *c.DistTol)
		}
	}

	for name, v := range map[string]*string{"measure_wait": c.MeasureWait, "reply_timeout": c.ReplyTimeout} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	if c.EDMMode != nil {
		mode, err := station.ParseEDMMode(*c.EDMMode)
		if err != nil {
			return fmt.Errorf("edm_mode: %w", err)
		}
		if mode == station.EDMCurrent {
			return fmt.Errorf("edm_mode must name a settable mode, got %s", mode)
		}
	}

	if c.MeasureProgram != nil {
		if _, err := station.ParseEDMMode(*c.MeasureProgram); err != nil {
			return fmt.Errorf("measure_program: %w", err)
		}
	}

	if c.AngleUnit != nil && *c.AngleUnit != "" && !angle.IsValid(*c.AngleUnit) {
		return fmt.Errorf("angle_unit must be one of %v, got %q", angle.ValidUnits, *c.AngleUnit)
	}

	return nil
}

// GetModel returns the instrument model name or the default.
func (c *OrientConfig) GetModel() string {
	if c.Model == nil || *c.Model == "" {
		return "TPS1200"
	}
	return *c.Model
}

// GetPort returns the serial device path or the default.
func (c *OrientConfig) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return "/dev/ttyUSB0"
	}
	return *c.Port
}

// GetSerial returns the serial options; unset values are filled by
// PortOptions.Normalise when the port opens.
func (c *OrientConfig) GetSerial() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{}
	}
	return *c.Serial
}

// GetReplyTimeout parses and returns the ReplyTimeout as a time.Duration.
func (c *OrientConfig) GetReplyTimeout() time.Duration {
	if c.ReplyTimeout == nil || *c.ReplyTimeout == "" {
		return station.DefaultReplyTimeout
	}
	d, err := time.ParseDuration(*c.ReplyTimeout)
	if err != nil {
		return station.DefaultReplyTimeout // default on parse error
	}
	return d
}

// GetCatalog returns the catalog path; empty when unset.
func (c *OrientConfig) GetCatalog() string {
	if c.Catalog == nil {
		return ""
	}
	return *c.Catalog
}

// GetAngleUnit returns the catalog angle unit; empty selects the
// per-extension default.
func (c *OrientConfig) GetAngleUnit() string {
	if c.AngleUnit == nil {
		return ""
	}
	return *c.AngleUnit
}

// GetStep returns the raster step angle.
func (c *OrientConfig) GetStep() angle.Angle {
	if c.StepDeg == nil {
		return angle.Degrees(3)
	}
	return angle.Degrees(*c.StepDeg)
}

// GetDistTol returns the dist_tol value or the default.
func (c *OrientConfig) GetDistTol() float64 {
	if c.DistTol == nil {
		return 0.1
	}
	return *c.DistTol
}

// GetMeasureWait parses and returns the MeasureWait as a time.Duration.
func (c *OrientConfig) GetMeasureWait() time.Duration {
	if c.MeasureWait == nil || *c.MeasureWait == "" {
		return 12 * time.Second
	}
	d, err := time.ParseDuration(*c.MeasureWait)
	if err != nil {
		return 12 * time.Second // default on parse error
	}
	return d
}

// GetEDMMode returns the EDM mode set before searching.
func (c *OrientConfig) GetEDMMode() station.EDMMode {
	if c.EDMMode == nil {
		return station.EDMStandard
	}
	mode, err := station.ParseEDMMode(*c.EDMMode)
	if err != nil || mode == station.EDMCurrent {
		return station.EDMStandard
	}
	return mode
}

// GetMeasureProgram returns the program passed to each measurement.
func (c *OrientConfig) GetMeasureProgram() station.EDMMode {
	if c.MeasureProgram == nil {
		return station.EDMCurrent
	}
	mode, err := station.ParseEDMMode(*c.MeasureProgram)
	if err != nil {
		return station.EDMCurrent
	}
	return mode
}

// GetListen returns the debug listen address; empty disables it.
func (c *OrientConfig) GetListen() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}

// GetDebug returns the debug value or the default.
func (c *OrientConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
