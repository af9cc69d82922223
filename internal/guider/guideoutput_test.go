package guider

import (
	"sync"
	"testing"
	"time"
)

type fakeMover struct {
	mu      sync.Mutex
	moves   []Axis
	dirs    map[Axis]int
	stopped []Axis
}

func newFakeMover() *fakeMover {
	return &fakeMover{dirs: make(map[Axis]int)}
}

func (f *fakeMover) Move(axis Axis, direction int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, axis)
	f.dirs[axis] = direction
	return nil
}

func (f *fakeMover) Stop(axis Axis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, axis)
	return nil
}

func (f *fakeMover) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

type fakeSpeed struct {
	mu         sync.Mutex
	ra, dec    int
	calls      int
}

func (f *fakeSpeed) SetSpeed(ra, dec int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ra, f.dec = ra, dec
	f.calls++
	return nil
}

func TestGuideOutput_Pulse_DirectionAndOutstanding(t *testing.T) {
	g := NewGuideOutput(4, 2.0, 0.5, 0.5)
	mover := newFakeMover()

	raDir, decDir := g.Apply(MethodPulse, mover, nil, 36.0, 0.0, 10.0, 0.4, false)
	if raDir != -1 {
		t.Errorf("raDir = %d, want -1 (positive error cancelled by negative command)", raDir)
	}
	if decDir != 0 {
		t.Errorf("decDir = %d, want 0 (dec guiding off)", decDir)
	}

	// A second Apply before the pulse completes must not submit another
	// move for the same axis (at most one pulse outstanding per axis).
	g.Apply(MethodPulse, mover, nil, 36.0, 0.0, 10.0, 0.4, false)
	time.Sleep(10 * time.Millisecond)
	if n := mover.moveCount(); n != 1 {
		t.Errorf("expected exactly one move submitted while pulse outstanding, got %d", n)
	}

	time.Sleep(450 * time.Millisecond)
	if g.PulseOutstanding() {
		t.Errorf("expected pulse to have completed by now")
	}
}

func TestGuideOutput_Pulse_WithinThreshold_NoMove(t *testing.T) {
	g := NewGuideOutput(4, 2.0, 0.5, 0.5)
	mover := newFakeMover()

	raDir, decDir := g.Apply(MethodPulse, mover, nil, 5.0, -3.0, 10.0, 0.4, true)
	if raDir != 0 || decDir != 0 {
		t.Errorf("expected no correction within threshold, got ra=%d dec=%d", raDir, decDir)
	}
	if mover.moveCount() != 0 {
		t.Errorf("expected no move submitted, got %d", mover.moveCount())
	}
}

func TestGuideOutput_Speed_Clamped(t *testing.T) {
	g := NewGuideOutput(4, 0, 0, 0)
	speed := &fakeSpeed{}

	g.Apply(MethodSpeed, nil, speed, 100.0, -100.0, 10.0, 0.4, true)
	if speed.ra != -15 || speed.dec != 15 {
		t.Errorf("speed = (%d,%d), want (-15,15) after clamp", speed.ra, speed.dec)
	}
}

func TestGuideOutput_PID_ClampedAndResettable(t *testing.T) {
	g := NewGuideOutput(4, 50.0, 0, 0)
	speed := &fakeSpeed{}

	g.Apply(MethodPID, nil, speed, 10.0, 0, 10.0, 0.4, false)
	if speed.ra != -99 {
		t.Errorf("ra speed = %d, want clamped to -99", speed.ra)
	}

	g.ResetPID()
	g.Apply(MethodPID, nil, speed, 1.0, 0, 10.0, 0.4, false)
	if speed.ra != -50 {
		t.Errorf("ra speed after reset = %d, want -50 (Kp=50 * -err=-1)", speed.ra)
	}
}
