package guider

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pihlerm/pipitrek/internal/frame"
	"github.com/pihlerm/pipitrek/internal/statuslog"
)

// State is the guiding session's state machine position (§4.3).
type State int

const (
	StateIdle State = iota
	StateTracking
	StateGuiding
	StateLostTracking
	StateCalibrating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTracking:
		return "TRACKING"
	case StateGuiding:
		return "GUIDING"
	case StateLostTracking:
		return "LOST_TRACKING"
	case StateCalibrating:
		return "CALIBRATING"
	default:
		return "UNKNOWN"
	}
}

// Point is a frame-coordinate pair, used for acquire hints and detector
// results so this package stays independent of the cgo-gated analyzer.
type Point struct {
	X, Y float64
}

// DetectResult mirrors analyzer.Result without importing the cgo-gated
// analyzer package, so the guider state machine can be built and tested
// without cgo.
type DetectResult struct {
	Found       bool
	X, Y        float64
	FocusMetric float64
}

// StarFinder is the Star Analyzer seam (§4.2): given a frame and a set of
// search-near hints, return one result per hint (or a single result when
// hints is empty, per the analyzer's "largest contour" default).
type StarFinder interface {
	Detect(f *frame.Frame, hints []Point, grayThreshold int, starSize, maxDistance float64) []DetectResult
}

// TrackedStar is a single guide star's reference and last-observed
// position (§3's TrackedStar entity).
type TrackedStar struct {
	RefX, RefY float64
	CurX, CurY float64
	Locked     bool
}

// Config is the mutable GuideConfig (§3), sampled at the top of each
// guide iteration and otherwise held fixed for its duration.
type Config struct {
	MaxDrift      float64       `json:"max_drift"`
	StarSize      float64       `json:"star_size"`
	GrayThreshold int           `json:"gray_threshold"`
	RotationAngle float64       `json:"rotation_angle"`
	PixelScale    float64       `json:"pixel_scale"`
	GuideInterval time.Duration `json:"guide_interval"`
	GuidePulse    float64       `json:"guide_pulse"`
	MaxDistance   float64       `json:"max_distance"`
	Method        Method        `json:"guide_method"`
	DecGuiding    bool          `json:"dec_guiding"`
	Declination   float64       `json:"declination"` // current mount dec, degrees, for pixels->arcsec
}

// Correction is the immutable record produced by one guide iteration
// (§3's Correction entity).
type Correction struct {
	RAPixels, DecPixels     float64
	RAArcsec, DecArcsec     float64
	RADirection, DecDirection int
}

// Guider owns the tracked-star set, the guiding state machine, and the
// cadence that ties star detection to mount correction (§4.3).
//
// Grounded on autoguider.py's Autoguider class and tracker.go's state
// handling style used throughout this module.
type Guider struct {
	mu sync.Mutex

	state State
	stars []TrackedStar

	cfg    Config
	output *GuideOutput
	finder StarFinder
	mover  Mover
	speed  SpeedSetter

	lastIterationStart time.Time
	lastCorrection     time.Time
	lastStatus         string

	statusLog *statuslog.Log

	guidingEnabled bool
}

// New builds a Guider in the Idle state.
func New(finder StarFinder, output *GuideOutput, mover Mover, speed SpeedSetter, cfg Config, statusLog *statuslog.Log) *Guider {
	return &Guider{
		state:     StateIdle,
		cfg:       cfg,
		output:    output,
		finder:    finder,
		mover:     mover,
		speed:     speed,
		statusLog: statusLog,
	}
}

// State reports the current state machine position.
func (g *Guider) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Config returns the current GuideConfig snapshot.
func (g *Guider) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// SetConfig validates and replaces the GuideConfig snapshot; it takes
// effect on the next guide iteration, never mid-iteration (§4.3's
// ordering guarantee). An out-of-range field is rejected with no
// mutation (§7's "Config out of range" error kind).
func (g *Guider) SetConfig(cfg Config) error {
	if cfg.GrayThreshold < 0 || cfg.GrayThreshold > 255 {
		return fmt.Errorf("guider: gray_threshold out of range [0,255]: %d", cfg.GrayThreshold)
	}
	if cfg.RotationAngle < -180 || cfg.RotationAngle > 180 {
		return fmt.Errorf("guider: rotation_angle out of range [-180,180]: %v", cfg.RotationAngle)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
	return nil
}

func (g *Guider) status(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	g.lastStatus = s
	if g.statusLog != nil {
		g.statusLog.Write("%s", s)
	}
}

// LastStatus returns the most recent status line, for the external
// surface's live status display.
func (g *Guider) LastStatus() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

// Acquire implements §4.3's acquire operation: detect a star near hint
// (or the largest contour if hint is nil), and if it is not already
// within max_distance of an existing tracked star, add it to the
// tracked set.
func (g *Guider) Acquire(f *frame.Frame, hint *Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var hints []Point
	if hint != nil {
		hints = []Point{*hint}
	}

	results := g.finder.Detect(f, hints, g.cfg.GrayThreshold, g.cfg.StarSize, g.cfg.MaxDistance)
	if len(results) == 0 || !results[0].Found {
		return fmt.Errorf("guider: acquire found no star")
	}
	r := results[0]

	for _, s := range g.stars {
		if dist(s.RefX, s.RefY, r.X, r.Y) <= g.cfg.MaxDistance {
			return nil
		}
	}

	g.stars = append(g.stars, TrackedStar{RefX: r.X, RefY: r.Y, CurX: r.X, CurY: r.Y, Locked: true})
	if g.state == StateIdle {
		g.state = StateTracking
	}
	g.status("ACQUIRED star at %.2f,%.2f", r.X, r.Y)
	return nil
}

// RemoveAll clears the tracked-star set and returns the state machine to
// Idle.
func (g *Guider) RemoveAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stars = nil
	g.state = StateIdle
	g.guidingEnabled = false
}

// SetGuiding turns guiding on or off. Per §3's invariant, enabling
// guiding resets the PID controllers; disabling it stops both mount axes
// (§4.4).
func (g *Guider) SetGuiding(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on && !g.guidingEnabled {
		g.output.ResetPID()
		g.lastCorrection = time.Time{}
	}
	if !on && g.guidingEnabled && g.mover != nil {
		g.mover.Stop(AxisRA)
		g.mover.Stop(AxisDec)
	}
	g.guidingEnabled = on
	if on {
		if g.state == StateTracking || g.state == StateLostTracking {
			g.state = StateGuiding
		}
	} else if g.state == StateGuiding || g.state == StateLostTracking {
		if len(g.stars) > 0 {
			g.state = StateTracking
		} else {
			g.state = StateIdle
		}
	}
}

// ShouldIterate reports whether a guide iteration is due: the guide
// thread calls this every ~10ms (§5) and only runs the pipeline when it
// returns true.
func (g *Guider) ShouldIterate(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateCalibrating {
		return false
	}
	if len(g.stars) == 0 {
		return false
	}
	return now.Sub(g.lastIterationStart) >= g.cfg.GuideInterval
}

// Iterate runs one guide iteration against frame f (§4.3 steps 1-8).
func (g *Guider) Iterate(f *frame.Frame, now time.Time) (Correction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastIterationStart = now
	cfg := g.cfg

	if g.output.PulseOutstanding() && cfg.Method == MethodPulse {
		return Correction{}, nil
	}

	hints := make([]Point, len(g.stars))
	for i, s := range g.stars {
		hints[i] = Point{X: s.CurX, Y: s.CurY}
	}

	results := g.finder.Detect(f, hints, cfg.GrayThreshold, cfg.StarSize, cfg.MaxDistance)

	anyFound := false
	for _, r := range results {
		if r.Found {
			anyFound = true
			break
		}
	}

	if !anyFound {
		if g.state == StateGuiding {
			g.state = StateLostTracking
		}
		g.status("LOST TRACKING")
		if g.guidingEnabled {
			g.mover.Stop(AxisRA)
			g.mover.Stop(AxisDec)
		}
		return Correction{}, nil
	}

	if g.state == StateLostTracking {
		g.state = StateGuiding
	}

	var vectors []Vector
	for i, r := range results {
		if !r.Found {
			continue
		}
		vectors = append(vectors, Vector{X: r.X - g.stars[i].RefX, Y: r.Y - g.stars[i].RefY})
	}

	mean := RobustMean(vectors)
	rotated := RotateVector(mean, cfg.RotationAngle)
	raArc, decArc := PixelsToArcseconds(rotated.X, rotated.Y, cfg.PixelScale, cfg.Declination)

	corr := Correction{RAPixels: rotated.X, DecPixels: rotated.Y, RAArcsec: raArc, DecArcsec: decArc}

	if g.guidingEnabled {
		raDir, decDir := g.output.Apply(cfg.Method, g.mover, g.speed, raArc, decArc, cfg.MaxDrift, cfg.GuidePulse, cfg.DecGuiding)
		corr.RADirection, corr.DecDirection = raDir, decDir
	}

	for i, r := range results {
		if r.Found {
			g.stars[i].CurX, g.stars[i].CurY = r.X, r.Y
			g.stars[i].Locked = true
		}
	}

	g.lastCorrection = now
	g.status("GUIDE ra=%.2f\" dec=%.2f\"", raArc, decArc)
	return corr, nil
}

func dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
