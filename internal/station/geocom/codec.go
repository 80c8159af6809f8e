// Package geocom encodes station commands as Leica GeoCOM ASCII RPCs and
// decodes the replies. Angles on the wire are radians.
package geocom

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/station"
)

// ErrUnknownModel is returned by Lookup for instrument names that match no
// supported series.
var ErrUnknownModel = errors.New("unknown GeoCOM instrument model")

// Model is a supported instrument series.
type Model struct {
	Name string
	caps station.CapabilitySet
}

var models = []struct {
	pattern *regexp.Regexp
	model   Model
}{
	{regexp.MustCompile(`12\d\d`), Model{Name: "TPS1200", caps: station.NewCapabilitySet(
		station.CapATR, station.CapLock, station.CapPowerSearch, station.CapReflectorless)}},
	{regexp.MustCompile(`11\d\d`), Model{Name: "TCRA1100", caps: station.NewCapabilitySet(
		station.CapATR, station.CapLock, station.CapReflectorless)}},
	{regexp.MustCompile(`18\d\d`), Model{Name: "TCA1800", caps: station.NewCapabilitySet(
		station.CapATR, station.CapLock)}},
}

// Lookup resolves an instrument name such as "TCA 1800" or "TPS1201".
func Lookup(name string) (*Codec, error) {
	key := strings.ReplaceAll(strings.ToUpper(name), " ", "")
	for _, m := range models {
		if m.pattern.MatchString(key) {
			return &Codec{model: m.model}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Codec implements station.Codec for one model. Each request carries a
// fresh transaction id so a late reply to a timed-out request is never taken
// as the answer to the next one.
type Codec struct {
	model Model
	seq   atomic.Uint32
}

// maxTransactionID bounds the id echoed in the reply header; 0 is never
// sent.
const maxTransactionID = 65535

func (c *Codec) nextTransaction() int {
	return int((c.seq.Add(1)-1)%maxTransactionID) + 1
}

// Name implements station.Codec.
func (c *Codec) Name() string { return "geocom/" + c.model.Name }

// Capabilities implements station.Codec.
func (c *Codec) Capabilities() station.CapabilitySet { return c.model.caps }

type valueKind int

const (
	kindAngle valueKind = iota
	kindFloat
	kindInt
	kindEDM
)

type value struct {
	name string
	kind valueKind
}

type rpc struct {
	code     int
	requires station.Capability
	args     func(station.Params) ([]string, error)
	out      []value
	wait     time.Duration // added to the link timeout when Params.Wait is zero
}

// Instrument-side durations for RPCs that drive motors or the EDM.
const (
	positioningWait = 30 * time.Second
	powerSearchWait = 60 * time.Second
	distAngWait     = 12 * time.Second
)

// TMC and BAP measure programs.
const (
	tmcDefaultDist = 1
	tmcClear       = 3
	tmcTrackDist   = 8
	bapDefaultDist = 2
)

// EDM mode codes.
var edmCodes = map[station.EDMMode]int{
	station.EDMStandard:      2,
	station.EDMFast:          3,
	station.EDMLongRange:     4,
	station.EDMReflectorless: 5,
	station.EDMTracking:      6,
}

func noArgs(station.Params) ([]string, error) { return nil, nil }

func inclination(i station.Inclination) string {
	switch i {
	case station.InclinationAuto:
		return "1"
	case station.InclinationModel:
		return "2"
	default:
		return "0"
	}
}

func waitMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

var rpcs = map[station.Command]rpc{
	station.CmdSetATR: {code: 18005, requires: station.CapATR, args: func(p station.Params) ([]string, error) {
		return []string{formatBool(p.On)}, nil
	}},
	station.CmdGetATR: {code: 18006, requires: station.CapATR, args: noArgs,
		out: []value{{station.FieldATRStatus, kindInt}}},
	station.CmdSetLock: {code: 18007, requires: station.CapLock, args: func(p station.Params) ([]string, error) {
		return []string{formatBool(p.On)}, nil
	}},
	station.CmdGetLock: {code: 18008, requires: station.CapLock, args: noArgs,
		out: []value{{station.FieldLockStatus, kindInt}}},
	station.CmdSetAtmCorr: {code: 2028, args: func(p station.Params) ([]string, error) {
		a := p.Atm
		return []string{formatFloat(a.Lambda), formatFloat(a.Pressure), formatFloat(a.DryTemp), formatFloat(a.WetTemp)}, nil
	}},
	station.CmdGetAtmCorr: {code: 2029, args: noArgs, out: []value{
		{station.FieldLambda, kindFloat}, {station.FieldPressure, kindFloat},
		{station.FieldDryTemp, kindFloat}, {station.FieldWetTemp, kindFloat},
	}},
	station.CmdSetRefCorr: {code: 2030, args: func(p station.Params) ([]string, error) {
		r := p.Ref
		return []string{formatBool(r.Enabled), formatFloat(r.EarthRadius), formatFloat(r.Coefficient)}, nil
	}},
	station.CmdGetRefCorr: {code: 2031, args: noArgs, out: []value{
		{station.FieldRefraction, kindInt}, {station.FieldEarthRadius, kindFloat}, {station.FieldRefCoefficient, kindFloat},
	}},
	station.CmdSetStation: {code: 2010, args: func(p station.Params) ([]string, error) {
		s := p.Station
		return []string{formatFloat(s.Easting), formatFloat(s.Northing), formatFloat(s.Elevation), formatFloat(s.InstrHeight)}, nil
	}},
	station.CmdGetStation: {code: 2009, args: noArgs, out: []value{
		{station.FieldEasting, kindFloat}, {station.FieldNorthing, kindFloat},
		{station.FieldElevation, kindFloat}, {station.FieldInstrHeight, kindFloat},
	}},
	station.CmdSetEDMMode: {code: 2020, args: func(p station.Params) ([]string, error) {
		code, ok := edmCodes[p.EDMMode]
		if !ok {
			return nil, fmt.Errorf("%w: EDM mode %s", station.ErrUnsupported, p.EDMMode)
		}
		return []string{strconv.Itoa(code)}, nil
	}},
	station.CmdGetEDMMode: {code: 2021, args: noArgs, out: []value{{station.FieldEDMMode, kindEDM}}},
	station.CmdMove: {code: 9027, args: func(p station.Params) ([]string, error) {
		return []string{formatFloat(p.Hz.Radians()), formatFloat(p.V.Radians()), "0", formatBool(p.ATR), "0"}, nil
	}, wait: positioningWait},
	station.CmdSetOrientation: {code: 2113, args: func(p station.Params) ([]string, error) {
		return []string{formatFloat(p.Hz.Normalize().Radians())}, nil
	}},
	station.CmdSetReflectorConstant: {code: 2024, args: func(p station.Params) ([]string, error) {
		return []string{formatFloat(p.Constant)}, nil
	}},
	station.CmdMeasure: {code: 2008, args: func(p station.Params) ([]string, error) {
		prog := tmcDefaultDist
		if p.EDMMode == station.EDMTracking {
			prog = tmcTrackDist
		}
		return []string{strconv.Itoa(prog), inclination(p.Inclination)}, nil
	}},
	station.CmdGetMeasure: {code: 2108, args: func(p station.Params) ([]string, error) {
		return []string{waitMillis(p.Wait), inclination(p.Inclination)}, nil
	}, out: []value{{station.FieldHz, kindAngle}, {station.FieldV, kindAngle}, {station.FieldDistance, kindFloat}}},
	station.CmdGetCoordinates: {code: 2082, args: func(p station.Params) ([]string, error) {
		return []string{waitMillis(p.Wait), inclination(p.Inclination)}, nil
	}, out: []value{{station.FieldEasting, kindFloat}, {station.FieldNorthing, kindFloat}, {station.FieldElevation, kindFloat}}},
	station.CmdGetAngles: {code: 2107, args: func(p station.Params) ([]string, error) {
		return []string{inclination(p.Inclination)}, nil
	}, out: []value{{station.FieldHz, kindAngle}, {station.FieldV, kindAngle}}},
	station.CmdClearDistance: {code: 2008, args: func(p station.Params) ([]string, error) {
		return []string{strconv.Itoa(tmcClear), inclination(p.Inclination)}, nil
	}},
	station.CmdChangeFace: {code: 9028, args: func(station.Params) ([]string, error) {
		return []string{"0", "0", "0"}, nil
	}, wait: positioningWait},
	station.CmdPowerSearch: {code: 9051, requires: station.CapPowerSearch, args: func(p station.Params) ([]string, error) {
		dir := p.Direction
		if dir != station.CounterClockwise {
			dir = station.Clockwise
		}
		return []string{strconv.Itoa(int(dir)), "0"}, nil
	}, wait: powerSearchWait},
	station.CmdMeasureDistAng: {code: 17017, args: func(station.Params) ([]string, error) {
		return []string{strconv.Itoa(bapDefaultDist)}, nil
	}, out: []value{{station.FieldHz, kindAngle}, {station.FieldV, kindAngle}, {station.FieldDistance, kindFloat}},
		wait: distAngWait},
}

func (c *Codec) lookup(cmd station.Command) (rpc, error) {
	r, ok := rpcs[cmd]
	if !ok {
		return rpc{}, fmt.Errorf("%w: %s has no GeoCOM RPC", station.ErrUnsupported, cmd)
	}
	if r.requires != "" && !c.model.caps.Has(r.requires) {
		return rpc{}, fmt.Errorf("%w: %s needs %s on %s", station.ErrUnsupported, cmd, r.requires, c.model.Name)
	}
	return r, nil
}

// Encode implements station.Codec.
func (c *Codec) Encode(cmd station.Command, p station.Params) (station.Request, error) {
	r, err := c.lookup(cmd)
	if err != nil {
		return station.Request{}, err
	}
	if cmd == station.CmdSetEDMMode && p.EDMMode == station.EDMReflectorless && !c.model.caps.Has(station.CapReflectorless) {
		return station.Request{}, fmt.Errorf("%w: reflectorless EDM on %s", station.ErrUnsupported, c.model.Name)
	}
	args, err := r.args(p)
	if err != nil {
		return station.Request{}, err
	}
	wait := p.Wait
	if wait <= 0 {
		wait = r.wait
	}
	tr := c.nextTransaction()
	return station.Request{
		Command: cmd,
		Payload: encodeRequest(r.code, tr, args),
		Wait:    wait,
		Accept:  answers(tr),
	}, nil
}

// Decode implements station.Codec.
func (c *Codec) Decode(cmd station.Command, reply station.Reply) (station.Fields, error) {
	r, err := c.lookup(cmd)
	if err != nil {
		return nil, err
	}
	f, err := parseReply(reply.Payload)
	if err != nil {
		return nil, err
	}
	if f.comRC != rcOK {
		return nil, fmt.Errorf("%w: communication return code %d", ErrMalformedReply, f.comRC)
	}
	if f.rc != rcOK && !isWarning(f.rc) {
		return nil, &station.DeviceError{Code: f.rc, Message: deviceMessages[f.rc]}
	}
	if len(f.values) < len(r.out) {
		return nil, fmt.Errorf("%w: %s wants %d values, got %d", ErrMalformedReply, cmd, len(r.out), len(f.values))
	}

	fields := station.Fields{}
	for i, v := range r.out {
		if f.rc == rcAngleOnlyWarning && v.name == station.FieldDistance {
			continue
		}
		val, err := decodeValue(v.kind, f.values[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedReply, cmd, v.name, err)
		}
		fields[v.name] = val
	}
	return fields, nil
}

func decodeValue(kind valueKind, s string) (any, error) {
	switch kind {
	case kindAngle:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return angle.Radians(f), nil
	case kindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case kindInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		return n, nil
	case kindEDM:
		code, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		for mode, c := range edmCodes {
			if c == code {
				return mode, nil
			}
		}
		return nil, fmt.Errorf("unknown EDM mode code %d", code)
	default:
		return nil, fmt.Errorf("unknown value kind %d", kind)
	}
}
