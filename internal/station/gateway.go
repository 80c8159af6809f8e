// Package station is the instrument command gateway. It turns named total
// station operations into requests through a vendor Codec, sends them over a
// Transport, and normalises every outcome into a Result.
//
// Get* calls do not change instrument state. Set*, Move, Measure,
// ChangeFace, PowerSearch and MeasureDistAng do and are not idempotent.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/monitoring"
)

const (
	// DefaultMeasureWait is how long GetMeasure lets the instrument finish
	// a distance measurement.
	DefaultMeasureWait = 12 * time.Second
	// DefaultCoordinateWait is the GetCoordinates wait.
	DefaultCoordinateWait = time.Second
)

// Gateway issues commands for one codec over one transport. It is not safe
// for concurrent use; a Session owns it exclusively.
type Gateway struct {
	codec       Codec
	transport   Transport
	measureWait time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMeasureWait overrides DefaultMeasureWait.
func WithMeasureWait(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.measureWait = d
		}
	}
}

// NewGateway binds a codec and a transport.
func NewGateway(codec Codec, transport Transport, opts ...GatewayOption) *Gateway {
	g := &Gateway{codec: codec, transport: transport, measureWait: DefaultMeasureWait}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Driver returns the codec name.
func (g *Gateway) Driver() string { return g.codec.Name() }

func (g *Gateway) process(ctx context.Context, cmd Command, p Params) Result {
	req, err := g.codec.Encode(cmd, p)
	if err != nil {
		kind := KindProtocol
		if errors.Is(err, ErrUnsupported) {
			kind = KindUnsupported
		}
		return NewFailure(cmd, kind, err)
	}
	req.Command = cmd

	reply, err := g.transport.Send(ctx, req)
	if err != nil {
		monitoring.Debugf("%s %s: transport error: %v", g.codec.Name(), cmd, err)
		return NewFailure(cmd, KindTransport, err)
	}

	fields, err := g.codec.Decode(cmd, reply)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return Result{
				cmd:    cmd,
				fields: Fields{FieldErrorCode: devErr.Code},
				raw:    reply.Payload,
				err:    &CommandError{Command: cmd, Kind: KindInstrument, Code: devErr.Code, Raw: reply.Payload, Err: err},
			}
		}
		return Result{
			cmd: cmd,
			raw: reply.Payload,
			err: &CommandError{Command: cmd, Kind: KindProtocol, Raw: reply.Payload, Err: err},
		}
	}
	return Result{cmd: cmd, fields: fields, raw: reply.Payload}
}

// SetATR switches automatic target recognition on or off.
func (g *Gateway) SetATR(ctx context.Context, on bool) Result {
	return g.process(ctx, CmdSetATR, Params{On: on})
}

// GetATR reads the ATR status (field atrStatus, 0/1).
func (g *Gateway) GetATR(ctx context.Context) Result {
	return g.process(ctx, CmdGetATR, Params{})
}

// SetLock switches prism lock on or off.
func (g *Gateway) SetLock(ctx context.Context, on bool) Result {
	return g.process(ctx, CmdSetLock, Params{On: on})
}

// GetLock reads the lock status (field lockStatus, 0/1).
func (g *Gateway) GetLock(ctx context.Context) Result {
	return g.process(ctx, CmdGetLock, Params{})
}

func (g *Gateway) SetAtmCorr(ctx context.Context, c AtmCorr) Result {
	return g.process(ctx, CmdSetAtmCorr, Params{Atm: c})
}

func (g *Gateway) GetAtmCorr(ctx context.Context) Result {
	return g.process(ctx, CmdGetAtmCorr, Params{})
}

func (g *Gateway) SetRefCorr(ctx context.Context, c RefCorr) Result {
	return g.process(ctx, CmdSetRefCorr, Params{Ref: c})
}

func (g *Gateway) GetRefCorr(ctx context.Context) Result {
	return g.process(ctx, CmdGetRefCorr, Params{})
}

func (g *Gateway) SetStation(ctx context.Context, s StationCoords) Result {
	return g.process(ctx, CmdSetStation, Params{Station: s})
}

func (g *Gateway) GetStation(ctx context.Context) Result {
	return g.process(ctx, CmdGetStation, Params{})
}

// SetEDMMode selects the distance program. EDMCurrent is not a settable mode.
func (g *Gateway) SetEDMMode(ctx context.Context, mode EDMMode) Result {
	if mode == EDMCurrent {
		return NewFailure(CmdSetEDMMode, KindUnsupported, fmt.Errorf("%w: %s is not a settable EDM mode", ErrUnsupported, mode))
	}
	return g.process(ctx, CmdSetEDMMode, Params{EDMMode: mode})
}

// GetEDMMode reads the active distance program (field edmMode).
func (g *Gateway) GetEDMMode(ctx context.Context) Result {
	return g.process(ctx, CmdGetEDMMode, Params{})
}

// Move turns the telescope to an absolute direction, fine-pointing on a
// prism when atr is set.
func (g *Gateway) Move(ctx context.Context, hz, v angle.Angle, atr bool) Result {
	return g.process(ctx, CmdMove, Params{Hz: hz, V: v, ATR: atr})
}

// MoveRelative reads the current direction and moves by the given deltas.
// A failed angle read is returned as is and no move is attempted; otherwise
// the result of the absolute Move is returned.
func (g *Gateway) MoveRelative(ctx context.Context, dhz, dv angle.Angle, atr bool) Result {
	cur := g.GetAngles(ctx, InclinationMeasure)
	if !cur.OK() {
		return cur
	}
	hz, okHz := cur.Angle(FieldHz)
	v, okV := cur.Angle(FieldV)
	if !okHz || !okV {
		return NewFailure(CmdMoveRelative, KindProtocol, errors.New("angle reply lacks hz or v"))
	}
	return g.Move(ctx, hz.Add(dhz).Normalize(), v.Add(dv), atr)
}

// SetOrientation sets the horizontal circle so the current line of sight
// reads hz.
func (g *Gateway) SetOrientation(ctx context.Context, hz angle.Angle) Result {
	return g.process(ctx, CmdSetOrientation, Params{Hz: hz})
}

// SetReflectorConstant sets the prism additive constant in metres.
func (g *Gateway) SetReflectorConstant(ctx context.Context, c float64) Result {
	return g.process(ctx, CmdSetReflectorConstant, Params{Constant: c})
}

// Measure triggers a distance measurement. With EDMCurrent the active
// program is read first; if that read fails its result is returned and no
// measurement is triggered.
func (g *Gateway) Measure(ctx context.Context, mode EDMMode, incl Inclination) Result {
	if mode == EDMCurrent {
		cur := g.GetEDMMode(ctx)
		if !cur.OK() {
			return cur
		}
		m, ok := cur.fields.EDMMode()
		if !ok {
			return NewFailure(CmdMeasure, KindProtocol, errors.New("EDM mode reply lacks edmMode"))
		}
		mode = m
	}
	return g.process(ctx, CmdMeasure, Params{EDMMode: mode, Inclination: incl})
}

// GetMeasure fetches the last measurement (hz, v, distance). A zero wait
// uses the gateway's measure wait.
func (g *Gateway) GetMeasure(ctx context.Context, wait time.Duration, incl Inclination) Result {
	if wait <= 0 {
		wait = g.measureWait
	}
	return g.process(ctx, CmdGetMeasure, Params{Wait: wait, Inclination: incl})
}

// GetCoordinates fetches target coordinates of the last measurement.
func (g *Gateway) GetCoordinates(ctx context.Context, wait time.Duration, incl Inclination) Result {
	if wait <= 0 {
		wait = DefaultCoordinateWait
	}
	return g.process(ctx, CmdGetCoordinates, Params{Wait: wait, Inclination: incl})
}

// GetAngles reads the current direction (hz, v).
func (g *Gateway) GetAngles(ctx context.Context, incl Inclination) Result {
	return g.process(ctx, CmdGetAngles, Params{Inclination: incl})
}

// MeasureDistAng measures distance and angles in one call with the
// instrument's default distance program (fields hz, v, distance).
func (g *Gateway) MeasureDistAng(ctx context.Context) Result {
	return g.process(ctx, CmdMeasureDistAng, Params{})
}

// ClearDistance discards the last measured distance on the instrument.
func (g *Gateway) ClearDistance(ctx context.Context) Result {
	return g.process(ctx, CmdClearDistance, Params{})
}

// ChangeFace turns the telescope to the opposite face.
func (g *Gateway) ChangeFace(ctx context.Context) Result {
	return g.process(ctx, CmdChangeFace, Params{})
}

// GetFace classifies the current zenith: below 200 gon is FaceLeft, the
// rest FaceRight. The classification is returned in field face.
func (g *Gateway) GetFace(ctx context.Context) Result {
	cur := g.GetAngles(ctx, InclinationMeasure)
	if !cur.OK() {
		return cur
	}
	v, ok := cur.Angle(FieldV)
	if !ok {
		return NewFailure(CmdGetFace, KindProtocol, errors.New("angle reply lacks v"))
	}
	face := FaceLeft
	if v.Normalize().Radians() >= angle.HalfTurn {
		face = FaceRight
	}
	return NewResult(CmdGetFace, Fields{FieldFace: face, FieldV: v})
}

// PowerSearch runs one vendor automated prism search in the given direction.
func (g *Gateway) PowerSearch(ctx context.Context, dir Direction) Result {
	return g.process(ctx, CmdPowerSearch, Params{Direction: dir})
}

// Capabilities returns the driver's static capability set.
func (g *Gateway) Capabilities() CapabilitySet { return g.codec.Capabilities() }

// GetCapabilities wraps Capabilities in a Result (field capabilities). It
// never touches the transport.
func (g *Gateway) GetCapabilities(context.Context) Result {
	return NewResult(CmdGetCapabilities, Fields{FieldCapabilities: g.codec.Capabilities()})
}
