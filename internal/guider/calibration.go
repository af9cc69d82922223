package guider

import (
	"fmt"
	"math"
	"time"

	"github.com/pihlerm/pipitrek/internal/frame"
)

// MountMover issues the directional moves the calibration procedure
// needs; a separate interface from Mover that names moves as
// east/west/north/south rather than generic axis+direction, matching the mount's own LX200
// vocabulary (§4.5, §4.6).
type MountMover interface {
	MoveEast() error
	MoveWest() error
	MoveNorth() error
	MoveSouth() error
	StopAll() error
	SetQuiet(bool) error
	SetSlowestSpeed() error
	ZeroBacklash() error
}

// Calibration excursion durations, declared as package variables (rather
// than inlined constants) so tests can shrink them; production code leaves
// them at the real-world calibration excursion durations.
var (
	calibEastFirst   = 20 * time.Second
	calibEastSettle  = 2 * time.Second
	calibEastSecond  = 10 * time.Second
	calibWestBack    = 10 * time.Second
	calibNorthFirst  = 20 * time.Second
	calibNorthSecond = 15 * time.Second
	calibSouthFirst  = 15 * time.Second
	calibSouthBack   = 20 * time.Second
	calibWestReturn  = 20 * time.Second
)

// CalibrationResult is the inferred RotationModel delta (§3, §4.5).
type CalibrationResult struct {
	RotationAngle float64
	BacklashRA    float64
	BacklashDec   float64
}

// Calibrate runs the move-and-detect sequence of §4.5 against a single
// tracked reference star, inferring rotation_angle and, if
// withBacklash, per-axis backlash. On any move_and_detect failure to
// find a centroid, it aborts with no partial mutation of the result.
//
// Grounded on autoguider.py's calibrate_angle: the 20s/10s/10s and,
// for backlash, 20s/15s/15s/20s east/north/south/west excursion timing
// is carried over exactly.
func (g *Guider) Calibrate(f *frame.Frame, withBacklash bool, detectFrame func() *frame.Frame, mover MountMover) (CalibrationResult, error) {
	g.mu.Lock()
	if len(g.stars) == 0 {
		g.mu.Unlock()
		return CalibrationResult{}, fmt.Errorf("guider: calibration requires a tracked star")
	}
	prevGuiding := g.guidingEnabled
	g.guidingEnabled = false
	g.state = StateCalibrating
	g.mu.Unlock()

	restore := func() {
		g.mu.Lock()
		g.guidingEnabled = prevGuiding
		if prevGuiding {
			g.state = StateGuiding
		} else if len(g.stars) > 0 {
			g.state = StateTracking
		} else {
			g.state = StateIdle
		}
		g.mu.Unlock()
	}

	fail := func(err error) (CalibrationResult, error) {
		mover.SetQuiet(false)
		restore()
		return CalibrationResult{}, err
	}

	if err := mover.SetQuiet(true); err != nil {
		return fail(err)
	}
	if err := mover.SetSlowestSpeed(); err != nil {
		return fail(err)
	}
	if withBacklash {
		if err := mover.ZeroBacklash(); err != nil {
			return fail(err)
		}
	}

	detect := func() (float64, float64, bool) {
		results := g.finder.Detect(detectFrame(), []Point{{X: g.stars[0].CurX, Y: g.stars[0].CurY}}, g.cfg.GrayThreshold, g.cfg.StarSize, g.cfg.MaxDistance)
		if len(results) == 0 || !results[0].Found {
			return 0, 0, false
		}
		return results[0].X, results[0].Y, true
	}

	moveAndDetect := func(move func() error, dur time.Duration, settle time.Duration) (float64, float64, bool, error) {
		if err := move(); err != nil {
			return 0, 0, false, err
		}
		time.Sleep(dur)
		mover.StopAll()
		if settle > 0 {
			time.Sleep(settle)
		}
		x, y, ok := detect()
		return x, y, ok, nil
	}

	c1x, c1y, ok := detect()
	if !ok {
		return fail(fmt.Errorf("guider: calibration could not detect reference centroid"))
	}

	c2x, c2y, ok, err := moveAndDetect(mover.MoveEast, calibEastFirst, calibEastSettle)
	if err != nil || !ok {
		return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star moving east")))
	}

	c3x, c3y, ok, err := moveAndDetect(mover.MoveEast, calibEastSecond, 0)
	if err != nil || !ok {
		return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star on the second east move")))
	}

	c4x, c4y, ok, err := moveAndDetect(mover.MoveWest, calibWestBack, 0)
	if err != nil || !ok {
		return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star moving west")))
	}

	var c5x, c5y, c7x, c7y float64
	if withBacklash {
		c5x, c5y, ok, err = moveAndDetect(mover.MoveNorth, calibNorthFirst, 0)
		if err != nil || !ok {
			return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star moving north")))
		}
		_, _, ok, err = moveAndDetect(mover.MoveNorth, calibNorthSecond, 0)
		if err != nil || !ok {
			return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star on the second north move")))
		}
		c7x, c7y, ok, err = moveAndDetect(mover.MoveSouth, calibSouthFirst, 0)
		if err != nil || !ok {
			return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star moving south")))
		}
		if _, _, ok, err = moveAndDetect(mover.MoveSouth, calibSouthBack, 0); err != nil || !ok {
			return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star returning south")))
		}
	}

	if _, _, ok, err = moveAndDetect(mover.MoveWest, calibWestReturn, 0); err != nil || !ok {
		return fail(firstErr(err, fmt.Errorf("guider: calibration lost the star returning west")))
	}

	mover.SetQuiet(false)

	rotation := -math.Atan2(c3y-c1y, c3x-c1x) * 180 / math.Pi

	result := CalibrationResult{RotationAngle: round2(rotation)}

	if withBacklash {
		g.mu.Lock()
		pixelScale := g.cfg.PixelScale
		g.mu.Unlock()
		raVec := RotateVector(Vector{X: c4x - c2x, Y: c4y - c2y}, rotation)
		decVec := RotateVector(Vector{X: c7x - c5x, Y: c7y - c5y}, rotation)
		result.BacklashRA = math.Round(math.Abs(raVec.X * pixelScale))
		result.BacklashDec = math.Round(math.Abs(decVec.Y * pixelScale))
	}

	g.mu.Lock()
	g.cfg.RotationAngle = result.RotationAngle
	g.mu.Unlock()

	restore()
	return result, nil
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
