package station

import (
	"maps"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/survey"
)

// Field names shared by all codecs.
const (
	FieldHz             = "hz"
	FieldV              = "v"
	FieldDistance       = "distance"
	FieldATRStatus      = "atrStatus"
	FieldLockStatus     = "lockStatus"
	FieldEDMMode        = "edmMode"
	FieldFace           = "face"
	FieldEasting        = "easting"
	FieldNorthing       = "northing"
	FieldElevation      = "elevation"
	FieldInstrHeight    = "ih"
	FieldLambda         = "lambda"
	FieldPressure       = "pressure"
	FieldDryTemp        = "dryTemp"
	FieldWetTemp        = "wetTemp"
	FieldRefraction     = "refractionOn"
	FieldEarthRadius    = "earthRadius"
	FieldRefCoefficient = "refCoefficient"
	FieldCapabilities   = "capabilities"
	FieldErrorCode      = "errorCode"
)

// Fields maps field names to decoded values. Angles are angle.Angle,
// lengths float64, status flags int.
type Fields map[string]any

// Angle returns the named angle field.
func (f Fields) Angle(name string) (angle.Angle, bool) {
	a, ok := f[name].(angle.Angle)
	return a, ok
}

// Float returns the named numeric field as float64.
func (f Fields) Float(name string) (float64, bool) {
	switch v := f[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns the named integer field.
func (f Fields) Int(name string) (int, bool) {
	v, ok := f[name].(int)
	return v, ok
}

// EDMMode returns the edmMode field.
func (f Fields) EDMMode() (EDMMode, bool) {
	m, ok := f[FieldEDMMode].(EDMMode)
	return m, ok
}

// Face returns the face field.
func (f Fields) Face() (Face, bool) {
	face, ok := f[FieldFace].(Face)
	return face, ok
}

// Result is the immutable outcome of one gateway call.
type Result struct {
	cmd    Command
	fields Fields
	raw    string
	err    *CommandError
}

// NewResult builds a successful result. fields is copied.
func NewResult(cmd Command, fields Fields) Result {
	return Result{cmd: cmd, fields: maps.Clone(fields)}
}

// NewFailure builds a failed result of the given kind.
func NewFailure(cmd Command, kind ErrorKind, err error) Result {
	return Result{cmd: cmd, err: &CommandError{Command: cmd, Kind: kind, Err: err}}
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.err == nil }

// Err returns nil on success, otherwise a *CommandError.
func (r Result) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Kind returns KindNone on success.
func (r Result) Kind() ErrorKind {
	if r.err == nil {
		return KindNone
	}
	return r.err.Kind
}

// Command returns the command that produced the result.
func (r Result) Command() Command { return r.cmd }

// Raw returns the reply payload as received, if any.
func (r Result) Raw() string { return r.raw }

// Fields returns a copy of the decoded fields.
func (r Result) Fields() Fields { return maps.Clone(r.fields) }

// Angle returns the named angle field.
func (r Result) Angle(name string) (angle.Angle, bool) { return r.fields.Angle(name) }

// Float returns the named numeric field.
func (r Result) Float(name string) (float64, bool) { return r.fields.Float(name) }

// Int returns the named integer field.
func (r Result) Int(name string) (int, bool) { return r.fields.Int(name) }

// Observation projects hz, v and distance onto a survey.Observation. Missing
// fields stay nil.
func (r Result) Observation() survey.Observation {
	var obs survey.Observation
	if hz, ok := r.fields.Angle(FieldHz); ok {
		obs.Hz = &hz
	}
	if v, ok := r.fields.Angle(FieldV); ok {
		obs.V = &v
	}
	if d, ok := r.fields.Float(FieldDistance); ok {
		obs.Distance = &d
	}
	return obs
}
