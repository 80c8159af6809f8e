package station

import (
	"fmt"
	"time"

	"github.com/banshee-data/station-orient/internal/angle"
)

// Command names a device operation independent of any vendor protocol.
type Command int

const (
	CmdSetATR Command = iota + 1
	CmdGetATR
	CmdSetLock
	CmdGetLock
	CmdSetAtmCorr
	CmdGetAtmCorr
	CmdSetRefCorr
	CmdGetRefCorr
	CmdSetStation
	CmdGetStation
	CmdSetEDMMode
	CmdGetEDMMode
	CmdMove
	CmdSetOrientation
	CmdSetReflectorConstant
	CmdMeasure
	CmdGetMeasure
	CmdGetCoordinates
	CmdGetAngles
	CmdClearDistance
	CmdChangeFace
	CmdPowerSearch
	CmdMeasureDistAng
	// CmdGetFace and CmdMoveRelative are composed by the gateway from other
	// commands and never reach a codec.
	CmdGetFace
	CmdMoveRelative
	CmdGetCapabilities
)

var commandNames = map[Command]string{
	CmdSetATR:               "SetATR",
	CmdGetATR:               "GetATR",
	CmdSetLock:              "SetLock",
	CmdGetLock:              "GetLock",
	CmdSetAtmCorr:           "SetAtmCorr",
	CmdGetAtmCorr:           "GetAtmCorr",
	CmdSetRefCorr:           "SetRefCorr",
	CmdGetRefCorr:           "GetRefCorr",
	CmdSetStation:           "SetStation",
	CmdGetStation:           "GetStation",
	CmdSetEDMMode:           "SetEDMMode",
	CmdGetEDMMode:           "GetEDMMode",
	CmdMove:                 "Move",
	CmdSetOrientation:       "SetOrientation",
	CmdSetReflectorConstant: "SetReflectorConstant",
	CmdMeasure:              "Measure",
	CmdGetMeasure:           "GetMeasure",
	CmdGetCoordinates:       "GetCoordinates",
	CmdGetAngles:            "GetAngles",
	CmdClearDistance:        "ClearDistance",
	CmdChangeFace:           "ChangeFace",
	CmdPowerSearch:          "PowerSearch",
	CmdMeasureDistAng:       "MeasureDistAng",
	CmdGetFace:              "GetFace",
	CmdMoveRelative:         "MoveRelative",
	CmdGetCapabilities:      "GetCapabilities",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// EDMMode selects the distance measurement program. EDMCurrent is the
// "whatever the instrument is set to" marker accepted by Measure.
type EDMMode int

const (
	EDMCurrent EDMMode = iota
	EDMStandard
	EDMFast
	EDMTracking
	EDMReflectorless
	EDMLongRange
)

func (m EDMMode) String() string {
	switch m {
	case EDMCurrent:
		return "CURRENT"
	case EDMStandard:
		return "STANDARD"
	case EDMFast:
		return "FAST"
	case EDMTracking:
		return "TRACKING"
	case EDMReflectorless:
		return "REFLECTORLESS"
	case EDMLongRange:
		return "LONGRANGE"
	default:
		return fmt.Sprintf("EDMMode(%d)", int(m))
	}
}

// ParseEDMMode reads a mode name as written in config files.
func ParseEDMMode(s string) (EDMMode, error) {
	for m := EDMCurrent; m <= EDMLongRange; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown EDM mode %q", s)
}

// Inclination selects how the instrument applies its tilt sensor.
type Inclination int

const (
	InclinationMeasure Inclination = iota
	InclinationModel
	InclinationAuto
)

// Face is the telescope position.
type Face int

const (
	FaceLeft Face = iota
	FaceRight
)

func (f Face) String() string {
	if f == FaceRight {
		return "right"
	}
	return "left"
}

// Direction of a PowerSearch rotation.
type Direction int

const (
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

// AtmCorr holds the atmospheric correction inputs.
type AtmCorr struct {
	Lambda   float64 // carrier wavelength, metres
	Pressure float64 // hPa
	DryTemp  float64 // °C
	WetTemp  float64 // °C
}

// RefCorr holds the refraction correction inputs.
type RefCorr struct {
	Enabled     bool
	EarthRadius float64 // metres
	Coefficient float64
}

// StationCoords are the instrument set-up coordinates.
type StationCoords struct {
	Easting     float64
	Northing    float64
	Elevation   float64
	InstrHeight float64
}

// Params carries command arguments. Each command reads only the fields it
// needs; the rest are ignored.
type Params struct {
	On          bool
	Hz          angle.Angle
	V           angle.Angle
	ATR         bool
	EDMMode     EDMMode
	Wait        time.Duration
	Inclination Inclination
	Atm         AtmCorr
	Ref         RefCorr
	Station     StationCoords
	Constant    float64
	Direction   Direction
}
