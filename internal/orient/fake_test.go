package orient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/station"
	"github.com/banshee-data/station-orient/internal/timeutil"
)

var (
	errLink    = errors.New("reply timeout")
	errNoPrism = &station.DeviceError{Code: 8710, Message: "no target detected"}
)

func ok(cmd station.Command) station.Result { return station.NewResult(cmd, nil) }

func linkFailure(cmd station.Command) station.Result {
	return station.NewFailure(cmd, station.KindTransport, errLink)
}

func deviceFailure(cmd station.Command) station.Result {
	return station.NewFailure(cmd, station.KindInstrument, errNoPrism)
}

type cell struct{ az, zen float64 }

// fakeInstrument is a scripted total station. Moves land on a prism only
// where target reports a hit; everything else succeeds unless overridden.
type fakeInstrument struct {
	caps station.CapabilitySet

	wake        station.Result
	setATR      station.Result
	setEDM      station.Result
	moveRel     station.Result
	secondPoint *station.Result
	powerSearch station.Result
	measure     station.Result
	commit      station.Result
	angles      station.Result
	// lockReading is what GetMeasure returns after a lock gained outside
	// the raster.
	lockReading station.Result
	target      func(az, zen float64) (dist, v float64, hit bool)
	failCommit  func(az, zen float64) bool

	clock    *timeutil.MockClock
	stepTime time.Duration

	calls     []string
	scanCells []cell
	committed []angle.Angle
	scanning  bool
	pos       cell
	onPrism   bool
}

func newFakeInstrument() *fakeInstrument {
	return &fakeInstrument{
		wake:        ok(station.CmdGetATR),
		setATR:      ok(station.CmdSetATR),
		setEDM:      ok(station.CmdSetEDMMode),
		moveRel:     deviceFailure(station.CmdMoveRelative),
		powerSearch: deviceFailure(station.CmdPowerSearch),
		measure:     ok(station.CmdMeasure),
		commit:      ok(station.CmdSetOrientation),
		angles: station.NewResult(station.CmdGetAngles, station.Fields{
			station.FieldHz: angle.Radians(0), station.FieldV: angle.Radians(1.5),
		}),
		lockReading: deviceFailure(station.CmdGetMeasure),
		target:      func(float64, float64) (float64, float64, bool) { return 0, 0, false },
		failCommit:  func(float64, float64) bool { return false },
	}
}

func (f *fakeInstrument) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	if f.clock != nil {
		f.clock.Advance(f.stepTime)
	}
}

func (f *fakeInstrument) GetATR(context.Context) station.Result {
	f.record("GetATR")
	return f.wake
}

func (f *fakeInstrument) SetATR(_ context.Context, on bool) station.Result {
	f.record("SetATR %t", on)
	return f.setATR
}

func (f *fakeInstrument) SetEDMMode(_ context.Context, mode station.EDMMode) station.Result {
	f.record("SetEDMMode %s", mode)
	return f.setEDM
}

func (f *fakeInstrument) Move(_ context.Context, hz, v angle.Angle, atr bool) station.Result {
	f.record("Move %.4f %.4f %t", hz.Radians(), v.Radians(), atr)
	f.pos = cell{hz.Radians(), v.Radians()}
	if !f.scanning && f.secondPoint != nil {
		f.onPrism = f.secondPoint.OK()
		return *f.secondPoint
	}
	if f.scanning {
		f.scanCells = append(f.scanCells, f.pos)
	}
	_, _, f.onPrism = f.target(f.pos.az, f.pos.zen)
	if !f.onPrism {
		return deviceFailure(station.CmdMove)
	}
	return ok(station.CmdMove)
}

func (f *fakeInstrument) MoveRelative(_ context.Context, dhz, dv angle.Angle, atr bool) station.Result {
	f.record("MoveRelative %.4f %.4f %t", dhz.Radians(), dv.Radians(), atr)
	f.onPrism = f.moveRel.OK()
	return f.moveRel
}

func (f *fakeInstrument) PowerSearch(_ context.Context, dir station.Direction) station.Result {
	f.record("PowerSearch %d", dir)
	f.onPrism = f.powerSearch.OK()
	return f.powerSearch
}

func (f *fakeInstrument) Measure(_ context.Context, mode station.EDMMode, _ station.Inclination) station.Result {
	f.record("Measure %s", mode)
	return f.measure
}

func (f *fakeInstrument) GetMeasure(_ context.Context, wait time.Duration, _ station.Inclination) station.Result {
	f.record("GetMeasure %s", wait)
	if !f.onPrism {
		return deviceFailure(station.CmdGetMeasure)
	}
	if !f.scanning {
		return f.lockReading
	}
	dist, v, _ := f.target(f.pos.az, f.pos.zen)
	return station.NewResult(station.CmdGetMeasure, station.Fields{
		station.FieldHz:       angle.Radians(f.pos.az),
		station.FieldV:        angle.Radians(v),
		station.FieldDistance: dist,
	})
}

func (f *fakeInstrument) GetAngles(context.Context, station.Inclination) station.Result {
	f.record("GetAngles")
	f.scanning = true
	return f.angles
}

func (f *fakeInstrument) SetOrientation(_ context.Context, hz angle.Angle) station.Result {
	f.record("SetOrientation %.4f", hz.Radians())
	if !f.commit.OK() || f.failCommit(f.pos.az, f.pos.zen) {
		return deviceFailure(station.CmdSetOrientation)
	}
	f.committed = append(f.committed, hz)
	return f.commit
}

func (f *fakeInstrument) Capabilities() station.CapabilitySet { return f.caps }

// exclusiveInstrument adds session semantics to a fake.
type exclusiveInstrument struct {
	*fakeInstrument
	id       string
	busy     bool
	releases int
}

func (e *exclusiveInstrument) ID() string { return e.id }

func (e *exclusiveInstrument) Acquire() (func(), error) {
	if e.busy {
		return nil, station.ErrSessionBusy
	}
	e.busy = true
	return func() {
		e.busy = false
		e.releases++
	}, nil
}
