package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/station-orient/internal/angle"
)

// stubCodec encodes every command as its name and decodes canned fields.
type stubCodec struct {
	caps      CapabilitySet
	encodeErr map[Command]error
	decoded   map[Command]Fields
	decodeErr map[Command]error
}

func (c *stubCodec) Name() string                { return "stub" }
func (c *stubCodec) Capabilities() CapabilitySet { return c.caps }

func (c *stubCodec) Encode(cmd Command, p Params) (Request, error) {
	if err := c.encodeErr[cmd]; err != nil {
		return Request{}, err
	}
	return Request{Payload: fmt.Sprintf("%s hz=%.4f v=%.4f edm=%s", cmd, p.Hz.Radians(), p.V.Radians(), p.EDMMode), Wait: p.Wait}, nil
}

func (c *stubCodec) Decode(cmd Command, reply Reply) (Fields, error) {
	if err := c.decodeErr[cmd]; err != nil {
		return nil, err
	}
	return c.decoded[cmd], nil
}

type stubTransport struct {
	mu   sync.Mutex
	sent []Request
	err  error
}

func (t *stubTransport) Send(_ context.Context, req Request) (Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, req)
	if t.err != nil {
		return Reply{}, t.err
	}
	return Reply{Payload: "reply:" + req.Command.String()}, nil
}

func (t *stubTransport) commands() []Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Command, len(t.sent))
	for i, r := range t.sent {
		out[i] = r.Command
	}
	return out
}

func TestGatewayNormalisesOutcomes(t *testing.T) {
	linkDown := errors.New("port gone")
	tests := []struct {
		name      string
		codec     *stubCodec
		transport *stubTransport
		wantKind  ErrorKind
		wantIs    error
		wantRaw   string
		wantCode  int
	}{
		{
			name:      "success",
			codec:     &stubCodec{decoded: map[Command]Fields{CmdGetATR: {FieldATRStatus: 1}}},
			transport: &stubTransport{},
			wantKind:  KindNone,
			wantRaw:   "reply:GetATR",
		},
		{
			name:      "transport failure skips decode",
			codec:     &stubCodec{decodeErr: map[Command]error{CmdGetATR: errors.New("must not decode")}},
			transport: &stubTransport{err: linkDown},
			wantKind:  KindTransport,
			wantIs:    ErrTransport,
		},
		{
			name:      "device fault",
			codec:     &stubCodec{decodeErr: map[Command]error{CmdGetATR: &DeviceError{Code: 8710}}},
			transport: &stubTransport{},
			wantKind:  KindInstrument,
			wantIs:    ErrInstrument,
			wantRaw:   "reply:GetATR",
			wantCode:  8710,
		},
		{
			name:      "unparseable reply",
			codec:     &stubCodec{decodeErr: map[Command]error{CmdGetATR: errors.New("garbled")}},
			transport: &stubTransport{},
			wantKind:  KindProtocol,
			wantIs:    ErrProtocol,
			wantRaw:   "reply:GetATR",
		},
		{
			name:      "unsupported command",
			codec:     &stubCodec{encodeErr: map[Command]error{CmdGetATR: fmt.Errorf("%w: no ATR", ErrUnsupported)}},
			transport: &stubTransport{},
			wantKind:  KindUnsupported,
			wantIs:    ErrUnsupported,
		},
		{
			name:      "encode failure",
			codec:     &stubCodec{encodeErr: map[Command]error{CmdGetATR: errors.New("bad args")}},
			transport: &stubTransport{},
			wantKind:  KindProtocol,
			wantIs:    ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.codec, tt.transport)
			res := g.GetATR(context.Background())

			assert.Equal(t, CmdGetATR, res.Command())
			assert.Equal(t, tt.wantKind, res.Kind())
			assert.Equal(t, tt.wantRaw, res.Raw())
			if tt.wantKind == KindNone {
				require.True(t, res.OK())
				require.NoError(t, res.Err())
				v, ok := res.Int(FieldATRStatus)
				require.True(t, ok)
				assert.Equal(t, 1, v)
				return
			}
			require.False(t, res.OK())
			require.ErrorIs(t, res.Err(), tt.wantIs)

			var cmdErr *CommandError
			require.ErrorAs(t, res.Err(), &cmdErr)
			assert.Equal(t, tt.wantCode, cmdErr.Code)
			if tt.wantCode != 0 {
				code, ok := res.Int(FieldErrorCode)
				require.True(t, ok)
				assert.Equal(t, tt.wantCode, code)
			}
		})
	}

	t.Run("transport cause is preserved", func(t *testing.T) {
		g := NewGateway(&stubCodec{}, &stubTransport{err: linkDown})
		res := g.SetLock(context.Background(), true)
		assert.ErrorIs(t, res.Err(), linkDown)
		assert.ErrorIs(t, res.Err(), ErrTransport)
		assert.NotErrorIs(t, res.Err(), ErrInstrument)
	})
}

func TestGatewayMeasureCurrentMode(t *testing.T) {
	t.Run("reads mode then measures", func(t *testing.T) {
		codec := &stubCodec{decoded: map[Command]Fields{CmdGetEDMMode: {FieldEDMMode: EDMFast}}}
		tr := &stubTransport{}
		res := NewGateway(codec, tr).Measure(context.Background(), EDMCurrent, InclinationAuto)

		require.True(t, res.OK())
		assert.Equal(t, []Command{CmdGetEDMMode, CmdMeasure}, tr.commands())
		assert.Contains(t, tr.sent[1].Payload, "edm=FAST")
	})

	t.Run("mode read failure short-circuits", func(t *testing.T) {
		codec := &stubCodec{decodeErr: map[Command]error{CmdGetEDMMode: &DeviceError{Code: 1}}}
		tr := &stubTransport{}
		res := NewGateway(codec, tr).Measure(context.Background(), EDMCurrent, InclinationAuto)

		assert.Equal(t, KindInstrument, res.Kind())
		assert.Equal(t, CmdGetEDMMode, res.Command())
		assert.Equal(t, []Command{CmdGetEDMMode}, tr.commands())
	})

	t.Run("explicit mode skips read", func(t *testing.T) {
		tr := &stubTransport{}
		res := NewGateway(&stubCodec{}, tr).Measure(context.Background(), EDMStandard, InclinationAuto)
		require.True(t, res.OK())
		assert.Equal(t, []Command{CmdMeasure}, tr.commands())
	})
}

func TestGatewaySetEDMModeRejectsCurrent(t *testing.T) {
	tr := &stubTransport{}
	res := NewGateway(&stubCodec{}, tr).SetEDMMode(context.Background(), EDMCurrent)
	assert.Equal(t, KindUnsupported, res.Kind())
	assert.Empty(t, tr.commands())
}

func TestGatewayGetMeasureWait(t *testing.T) {
	tr := &stubTransport{}
	g := NewGateway(&stubCodec{}, tr, WithMeasureWait(3*time.Second))

	g.GetMeasure(context.Background(), 0, InclinationAuto)
	g.GetMeasure(context.Background(), time.Second, InclinationAuto)
	g.GetCoordinates(context.Background(), 0, InclinationAuto)

	require.Len(t, tr.sent, 3)
	assert.Equal(t, 3*time.Second, tr.sent[0].Wait)
	assert.Equal(t, time.Second, tr.sent[1].Wait)
	assert.Equal(t, DefaultCoordinateWait, tr.sent[2].Wait)

	assert.Equal(t, DefaultMeasureWait, NewGateway(&stubCodec{}, tr).measureWait)
}

func TestGatewayGetFace(t *testing.T) {
	tests := []struct {
		name string
		v    angle.Angle
		want Face
	}{
		{"horizontal left", angle.Gons(100), FaceLeft},
		{"steep left", angle.Gons(10), FaceLeft},
		{"boundary is right", angle.Radians(angle.HalfTurn), FaceRight},
		{"horizontal right", angle.Gons(300), FaceRight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := &stubCodec{decoded: map[Command]Fields{CmdGetAngles: {FieldHz: angle.Gons(5), FieldV: tt.v}}}
			res := NewGateway(codec, &stubTransport{}).GetFace(context.Background())
			require.True(t, res.OK())
			face, ok := res.Fields().Face()
			require.True(t, ok)
			assert.Equal(t, tt.want, face)
		})
	}

	t.Run("missing zenith is a protocol error", func(t *testing.T) {
		codec := &stubCodec{decoded: map[Command]Fields{CmdGetAngles: {FieldHz: angle.Gons(5)}}}
		res := NewGateway(codec, &stubTransport{}).GetFace(context.Background())
		assert.Equal(t, KindProtocol, res.Kind())
		assert.Equal(t, CmdGetFace, res.Command())
	})
}

func TestGatewayMoveRelative(t *testing.T) {
	codec := &stubCodec{decoded: map[Command]Fields{
		CmdGetAngles: {FieldHz: angle.Radians(6.2), FieldV: angle.Radians(1.5)},
	}}
	tr := &stubTransport{}
	res := NewGateway(codec, tr).MoveRelative(context.Background(), angle.Radians(0.2), angle.Radians(-0.1), false)

	require.True(t, res.OK())
	assert.Equal(t, CmdMove, res.Command())
	require.Equal(t, []Command{CmdGetAngles, CmdMove}, tr.commands())
	// 6.2 + 0.2 wraps past a full turn.
	assert.Contains(t, tr.sent[1].Payload, fmt.Sprintf("hz=%.4f", 6.4-angle.FullTurn))
	assert.Contains(t, tr.sent[1].Payload, "v=1.4000")

	t.Run("failed read does not move", func(t *testing.T) {
		tr := &stubTransport{err: errors.New("timeout")}
		res := NewGateway(codec, tr).MoveRelative(context.Background(), angle.Radians(0.2), angle.Radians(0), false)
		assert.Equal(t, KindTransport, res.Kind())
		assert.Equal(t, []Command{CmdGetAngles}, tr.commands())
	})
}

func TestGatewayCapabilities(t *testing.T) {
	tr := &stubTransport{}
	g := NewGateway(&stubCodec{caps: NewCapabilitySet(CapLock, CapATR, CapATR)}, tr)

	res := g.GetCapabilities(context.Background())
	require.True(t, res.OK())
	caps, ok := res.Fields()[FieldCapabilities].(CapabilitySet)
	require.True(t, ok)
	assert.True(t, caps.Has(CapATR))
	assert.False(t, caps.Has(CapPowerSearch))
	assert.Equal(t, []Capability{CapATR, CapLock}, g.Capabilities().List())
	assert.Equal(t, "{ATR,LOCK}", g.Capabilities().String())
	assert.Empty(t, tr.commands())
}

func TestResultObservation(t *testing.T) {
	res := NewResult(CmdGetMeasure, Fields{FieldHz: angle.Radians(1), FieldDistance: 12.5})
	obs := res.Observation()
	require.True(t, obs.HasHz())
	assert.False(t, obs.HasV())
	require.True(t, obs.HasDistance())
	assert.Equal(t, 12.5, *obs.Distance)

	// Results hand out copies.
	res.Fields()[FieldHz] = angle.Radians(2)
	hz, _ := res.Angle(FieldHz)
	assert.Equal(t, 1.0, hz.Radians())
}

// readOnly lists the gateway calls that must not change instrument state.
var readOnly = []struct {
	name string
	call func(*Gateway) Result
}{
	{"atr status", func(g *Gateway) Result { return g.GetATR(context.Background()) }},
	{"angles", func(g *Gateway) Result { return g.GetAngles(context.Background(), InclinationMeasure) }},
	{"capabilities", func(g *Gateway) Result { return g.GetCapabilities(context.Background()) }},
}

// assertReadsRepeatable checks that each read, issued twice with no write
// in between, returns the same fields.
func assertReadsRepeatable(t *testing.T, g *Gateway) {
	t.Helper()
	opts := cmp.Options{cmp.AllowUnexported(angle.Angle{}, CapabilitySet{})}
	for _, tt := range readOnly {
		t.Run(tt.name, func(t *testing.T) {
			first := tt.call(g)
			second := tt.call(g)
			require.True(t, first.OK(), "first read: %v", first.Err())
			require.True(t, second.OK(), "second read: %v", second.Err())
			if diff := cmp.Diff(first.Fields(), second.Fields(), opts); diff != "" {
				t.Errorf("repeated read differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestGatewayReadsAreRepeatable(t *testing.T) {
	codec := &stubCodec{
		caps: NewCapabilitySet(CapATR, CapLock),
		decoded: map[Command]Fields{
			CmdGetATR:    {FieldATRStatus: 1},
			CmdGetAngles: {FieldHz: angle.Radians(0.25), FieldV: angle.Radians(1.5)},
		},
	}
	tr := &stubTransport{}
	assertReadsRepeatable(t, NewGateway(codec, tr))

	assert.Equal(t, []Command{CmdGetATR, CmdGetATR, CmdGetAngles, CmdGetAngles}, tr.commands(),
		"only reads reach the instrument")
}
