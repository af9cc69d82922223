package guider

import (
	"math"
	"testing"
	"time"

	"github.com/pihlerm/pipitrek/internal/frame"
)

func init() {
	// Shrink the real-world calibration excursion timing so these tests
	// don't sleep for the full 20s/10s/... durations.
	calibEastFirst = time.Millisecond
	calibEastSettle = time.Millisecond
	calibEastSecond = time.Millisecond
	calibWestBack = time.Millisecond
	calibNorthFirst = time.Millisecond
	calibNorthSecond = time.Millisecond
	calibSouthFirst = time.Millisecond
	calibSouthBack = time.Millisecond
	calibWestReturn = time.Millisecond
}

// scriptedMountMover records which moves were issued and lets a test
// drive the calibration sequence's centroid trajectory deterministically
// via detectFrame's sequenced return values.
type scriptedMountMover struct {
	calls []string
}

func (m *scriptedMountMover) MoveEast() error     { m.calls = append(m.calls, "E"); return nil }
func (m *scriptedMountMover) MoveWest() error     { m.calls = append(m.calls, "W"); return nil }
func (m *scriptedMountMover) MoveNorth() error    { m.calls = append(m.calls, "N"); return nil }
func (m *scriptedMountMover) MoveSouth() error    { m.calls = append(m.calls, "S"); return nil }
func (m *scriptedMountMover) StopAll() error      { return nil }
func (m *scriptedMountMover) SetQuiet(bool) error { return nil }
func (m *scriptedMountMover) SetSlowestSpeed() error { return nil }
func (m *scriptedMountMover) ZeroBacklash() error    { return nil }

// sequenceFinder returns successive entries from a scripted list on each
// Detect call, modeling the star moving through the calibration sequence.
type sequenceFinder struct {
	seq []DetectResult
	i   int
}

func (s *sequenceFinder) Detect(f *frame.Frame, hints []Point, grayThreshold int, starSize, maxDistance float64) []DetectResult {
	if s.i >= len(s.seq) {
		return []DetectResult{{Found: false}}
	}
	r := s.seq[s.i]
	s.i++
	return []DetectResult{r}
}

func TestCalibrate_RotationAngle(t *testing.T) {
	// C1 at origin; by C3 the star has moved (+100,+50) px, matching
	// spec scenario 4: rotation_angle = -atan2(50,100) ~= -26.565 deg.
	finder := &sequenceFinder{seq: []DetectResult{
		{Found: true, X: 0, Y: 0},      // C1 (initial detect)
		{Found: true, X: 70, Y: 35},    // C2 (after first east move)
		{Found: true, X: 100, Y: 50},   // C3 (after second east move)
		{Found: true, X: 90, Y: 45},    // C4 (after west reversal)
		{Found: true, X: 0, Y: 0},      // final return-west detect unused by rotation calc
	}}
	output := NewGuideOutput(4, 0, 0, 0)
	cfg := baseConfig()
	g := New(finder, output, nil, nil, cfg, nil)
	g.stars = []TrackedStar{{RefX: 0, RefY: 0, CurX: 0, CurY: 0, Locked: true}}
	g.state = StateTracking

	f := frame.New(100, 100, 1)
	mover := &scriptedMountMover{}
	result, err := g.Calibrate(f, false, func() *frame.Frame { return f }, mover)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	want := -math.Atan2(50, 100) * 180 / math.Pi
	if math.Abs(result.RotationAngle-want) > 0.01 {
		t.Errorf("rotation angle = %v, want %v", result.RotationAngle, want)
	}
	if g.State() != StateTracking {
		t.Errorf("state after calibration = %v, want TRACKING restored", g.State())
	}
}

func TestCalibrate_AbortsOnLostStar(t *testing.T) {
	finder := &sequenceFinder{seq: []DetectResult{
		{Found: true, X: 0, Y: 0}, // C1
		{Found: false},            // lost during first east move
	}}
	output := NewGuideOutput(4, 0, 0, 0)
	cfg := baseConfig()
	g := New(finder, output, nil, nil, cfg, nil)
	g.stars = []TrackedStar{{RefX: 0, RefY: 0, CurX: 0, CurY: 0, Locked: true}}
	g.state = StateTracking
	g.cfg.RotationAngle = 7.0

	f := frame.New(100, 100, 1)
	mover := &scriptedMountMover{}
	_, err := g.Calibrate(f, false, func() *frame.Frame { return f }, mover)
	if err == nil {
		t.Fatalf("expected Calibrate to fail when the star is lost")
	}
	if g.cfg.RotationAngle != 7.0 {
		t.Errorf("rotation angle mutated on failed calibration: got %v, want unchanged 7.0", g.cfg.RotationAngle)
	}
}
