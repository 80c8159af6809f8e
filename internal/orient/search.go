package orient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/monitoring"
	"github.com/banshee-data/station-orient/internal/station"
	"github.com/banshee-data/station-orient/internal/survey"
	"github.com/banshee-data/station-orient/internal/timeutil"
)

var (
	// ErrLinkDown means the instrument did not answer during Wake or Enable.
	ErrLinkDown = errors.New("instrument link down")
	// ErrEnableFailed means the instrument refused ATR or EDM set-up.
	ErrEnableFailed = errors.New("instrument set-up refused")
	// ErrInvalidOptions is returned by NewSearcher.
	ErrInvalidOptions = errors.New("invalid search options")
)

const (
	DefaultDistTol     = 0.1
	DefaultMeasureWait = 12 * time.Second
)

// DefaultStep is the raster increment in both azimuth and zenith.
var DefaultStep = angle.Degrees(3)

// rasterEps absorbs float drift when comparing accumulated steps to bounds.
const rasterEps = 1e-9

// Instrument is the subset of the station gateway the search drives.
// *station.Session satisfies it.
type Instrument interface {
	GetATR(ctx context.Context) station.Result
	SetATR(ctx context.Context, on bool) station.Result
	SetEDMMode(ctx context.Context, mode station.EDMMode) station.Result
	Move(ctx context.Context, hz, v angle.Angle, atr bool) station.Result
	MoveRelative(ctx context.Context, dhz, dv angle.Angle, atr bool) station.Result
	PowerSearch(ctx context.Context, dir station.Direction) station.Result
	Measure(ctx context.Context, mode station.EDMMode, incl station.Inclination) station.Result
	GetMeasure(ctx context.Context, wait time.Duration, incl station.Inclination) station.Result
	GetAngles(ctx context.Context, incl station.Inclination) station.Result
	SetOrientation(ctx context.Context, hz angle.Angle) station.Result
	Capabilities() station.CapabilitySet
}

// exclusive is implemented by instruments that must not be driven by two
// searches at once.
type exclusive interface {
	ID() string
	Acquire() (func(), error)
}

// Stage is a step of the escalating search.
type Stage int

const (
	StageWake Stage = iota
	StageEnable
	StageDirectVerify
	StageSecondPoint
	StagePowerSearch
	StageScan
)

func (s Stage) String() string {
	switch s {
	case StageWake:
		return "wake"
	case StageEnable:
		return "enable"
	case StageDirectVerify:
		return "direct-verify"
	case StageSecondPoint:
		return "second-point"
	case StagePowerSearch:
		return "power-search"
	case StageScan:
		return "scan"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Outcome is how a completed search ended.
type Outcome int

const (
	// OutcomeExhausted: the full raster ran without a committed match.
	OutcomeExhausted Outcome = iota
	// OutcomeOriented: a target was matched and the orientation committed.
	OutcomeOriented
)

func (o Outcome) String() string {
	if o == OutcomeOriented {
		return "oriented"
	}
	return "exhausted"
}

// Report describes one search run.
type Report struct {
	Outcome     Outcome
	Stage       Stage // stage the search ended in
	Orientation angle.Angle
	TargetID    string
	Cells       int   // raster cells visited
	LastErr     error // most recent tolerated command failure
	SessionID   string
	Elapsed     time.Duration
}

// Found reports whether the instrument was oriented.
func (r Report) Found() bool { return r.Outcome == OutcomeOriented }

// Options tunes a Searcher. Start from DefaultOptions.
type Options struct {
	Step    angle.Angle
	DistTol float64
	// MeasureWait bounds each measurement fetch.
	MeasureWait time.Duration
	// EDMMode is set during Enable. EDMCurrent means EDMStandard.
	EDMMode station.EDMMode
	// MeasureProgram is passed to Measure; EDMCurrent re-reads the mode.
	MeasureProgram station.EDMMode
	Clock          timeutil.Clock
	// Progress, if set, receives a snapshot of the report on every stage
	// change and after every raster cell. It runs on the search goroutine.
	Progress func(Report)
}

// DefaultOptions returns a 3° step, 0.1 m tolerance and a 12 s measure wait.
func DefaultOptions() Options {
	return Options{
		Step:           DefaultStep,
		DistTol:        DefaultDistTol,
		MeasureWait:    DefaultMeasureWait,
		EDMMode:        station.EDMStandard,
		MeasureProgram: station.EDMCurrent,
		Clock:          timeutil.RealClock{},
	}
}

// Searcher runs the escalating orientation search. A Searcher holds no
// per-run state and may be reused.
type Searcher struct {
	opts Options
}

// NewSearcher validates opts.
func NewSearcher(opts Options) (*Searcher, error) {
	step := opts.Step.Radians()
	if math.IsNaN(step) || step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ErrInvalidOptions, step)
	}
	if math.IsNaN(opts.DistTol) || opts.DistTol < 0 {
		return nil, fmt.Errorf("%w: distance tolerance must be non-negative, got %v", ErrInvalidOptions, opts.DistTol)
	}
	if opts.MeasureWait < 0 {
		return nil, fmt.Errorf("%w: negative measure wait %s", ErrInvalidOptions, opts.MeasureWait)
	}
	if opts.EDMMode == station.EDMCurrent {
		opts.EDMMode = station.EDMStandard
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Searcher{opts: opts}, nil
}

// Search runs a search with default options apart from tolerance and step
// and reports whether the instrument was oriented.
func Search(ctx context.Context, cat survey.Catalog, inst Instrument, distTol float64, step angle.Angle) (bool, error) {
	opts := DefaultOptions()
	opts.DistTol = distTol
	opts.Step = step
	s, err := NewSearcher(opts)
	if err != nil {
		return false, err
	}
	rep, err := s.Run(ctx, cat, inst)
	return rep.Found(), err
}

// run is the state of one search.
type run struct {
	opts    Options
	inst    Instrument
	cat     survey.Catalog
	matcher Matcher
	rep     *Report
}

// Run drives inst until a catalog target is matched and committed or the
// raster is exhausted. Exhaustion is reported in the Report, not as an
// error. Errors are returned for link loss during Wake or Enable, a busy
// session, and context cancellation.
func (s *Searcher) Run(ctx context.Context, cat survey.Catalog, inst Instrument) (rep Report, err error) {
	start := s.opts.Clock.Now()
	defer func() { rep.Elapsed = s.opts.Clock.Since(start) }()

	if ex, ok := inst.(exclusive); ok {
		release, err := ex.Acquire()
		if err != nil {
			return rep, err
		}
		defer release()
		rep.SessionID = ex.ID()
	}

	r := &run{opts: s.opts, inst: inst, cat: cat, matcher: NewMatcher(cat, s.opts.DistTol), rep: &rep}
	err = r.execute(ctx)
	if err == nil {
		monitoring.Logf("orient[%s]: %s at %s after %d cells", rep.SessionID, rep.Outcome, rep.Stage, rep.Cells)
	}
	return rep, err
}

func (r *run) enter(st Stage) {
	r.rep.Stage = st
	monitoring.Debugf("orient[%s]: stage %s", r.rep.SessionID, st)
	r.progress()
}

func (r *run) progress() {
	if r.opts.Progress != nil {
		r.opts.Progress(*r.rep)
	}
}

// fail records a tolerated failure.
func (r *run) fail(res station.Result) {
	r.rep.LastErr = res.Err()
	monitoring.Debugf("orient[%s]: %s: %v", r.rep.SessionID, r.rep.Stage, res.Err())
}

func isLinkFailure(res station.Result) bool {
	k := res.Kind()
	return k == station.KindTransport || k == station.KindProtocol
}

func (r *run) execute(ctx context.Context) error {
	r.enter(StageWake)
	if res := r.inst.GetATR(ctx); isLinkFailure(res) {
		return fmt.Errorf("%w: %w", ErrLinkDown, res.Err())
	} else if !res.OK() {
		r.fail(res)
	}

	r.enter(StageEnable)
	for _, call := range []func() station.Result{
		func() station.Result { return r.inst.SetATR(ctx, true) },
		func() station.Result { return r.inst.SetEDMMode(ctx, r.opts.EDMMode) },
	} {
		out := call()
		if out.OK() {
			continue
		}
		if isLinkFailure(out) {
			return fmt.Errorf("%w: %w", ErrLinkDown, out.Err())
		}
		return fmt.Errorf("%w: %w", ErrEnableFailed, out.Err())
	}

	locked, err := r.acquireLock(ctx)
	if err != nil {
		return err
	}
	if locked && r.matchAndCommit(ctx) {
		return nil
	}
	return r.scan(ctx)
}

// acquireLock escalates through the cheap ways of finding a prism. It
// reports whether any of them left the instrument locked on one.
func (r *run) acquireLock(ctx context.Context) (bool, error) {
	r.enter(StageDirectVerify)
	res := r.inst.MoveRelative(ctx, angle.Radians(0), angle.Radians(0), true)
	if res.OK() {
		return true, nil
	}
	r.fail(res)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if len(r.cat) >= 2 && r.cat[1].HasHz() && r.cat[1].HasV() {
		r.enter(StageSecondPoint)
		res = r.inst.Move(ctx, *r.cat[1].Hz, *r.cat[1].V, true)
		if res.OK() {
			return true, nil
		}
		r.fail(res)
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}

	if r.inst.Capabilities().Has(station.CapPowerSearch) {
		r.enter(StagePowerSearch)
		res = r.inst.PowerSearch(ctx, station.Clockwise)
		if res.OK() {
			return true, nil
		}
		r.fail(res)
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// matchAndCommit measures the sighted prism, looks it up and sets the
// orientation. Any failed step leaves the search to continue.
func (r *run) matchAndCommit(ctx context.Context) bool {
	if res := r.inst.Measure(ctx, r.opts.MeasureProgram, station.InclinationMeasure); !res.OK() {
		r.fail(res)
		return false
	}
	res := r.inst.GetMeasure(ctx, r.opts.MeasureWait, station.InclinationMeasure)
	if !res.OK() {
		r.fail(res)
		return false
	}
	m, ok := r.matcher.Find(res.Observation())
	if !ok {
		return false
	}
	if commit := r.inst.SetOrientation(ctx, m.Hz); !commit.OK() {
		r.fail(commit)
		return false
	}
	r.rep.Outcome = OutcomeOriented
	r.rep.Orientation = m.Hz
	r.rep.TargetID = m.ID
	return true
}

func (r *run) scan(ctx context.Context) error {
	r.enter(StageScan)
	if err := ctx.Err(); err != nil {
		return err
	}

	start := angle.Radians(0)
	if res := r.inst.GetAngles(ctx, station.InclinationMeasure); res.OK() {
		if hz, ok := res.Angle(station.FieldHz); ok {
			start = hz
		}
	} else {
		r.fail(res)
	}

	lo, hi, haveZenith := r.cat.ZenithBounds()
	if !haveZenith {
		monitoring.Debugf("orient[%s]: catalog has no zenith angles; nothing to scan", r.rep.SessionID)
	}

	step := r.opts.Step
	for i := 0; !sweptFullTurn(step.Scale(float64(i))); i++ {
		az := start.Add(step.Scale(float64(i))).Normalize()
		if !haveZenith {
			continue
		}
		for j := 0; withinBound(lo.Add(step.Scale(float64(j))), hi); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			zen := lo.Add(step.Scale(float64(j)))
			r.rep.Cells++
			r.progress()
			res := r.inst.Move(ctx, az, zen, true)
			if !res.OK() {
				r.fail(res)
				continue
			}
			if r.matchAndCommit(ctx) {
				return nil
			}
		}
	}
	return nil
}

// sweptFullTurn reports whether an accumulated rotation has reached one full
// turn.
func sweptFullTurn(swept angle.Angle) bool {
	return swept.Radians() >= angle.FullTurn || scalar.EqualWithinAbs(swept.Radians(), angle.FullTurn, rasterEps)
}

// withinBound reports zen ≤ hi, allowing for accumulated step drift.
func withinBound(zen, hi angle.Angle) bool {
	return zen.Radians() <= hi.Radians() || scalar.EqualWithinAbs(zen.Radians(), hi.Radians(), rasterEps)
}
