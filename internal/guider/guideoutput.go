package guider

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Axis identifies a mount axis a correction is applied to.
type Axis int

const (
	AxisRA Axis = iota
	AxisDec
)

// Method is the guide-output strategy, a tagged variant per the design
// note in §9 rather than a runtime string lookup.
type Method int

const (
	MethodPulse Method = iota
	MethodSpeed
	MethodPID
)

// ParseMethod maps the GuideConfig.guide_method string to its tagged
// variant, defaulting to MethodPulse for an unrecognized value.
func ParseMethod(s string) Method {
	switch s {
	case "SPEED":
		return MethodSpeed
	case "PID":
		return MethodPID
	default:
		return MethodPulse
	}
}

func (m Method) String() string {
	switch m {
	case MethodSpeed:
		return "SPEED"
	case MethodPID:
		return "PID"
	default:
		return "PULSE"
	}
}

// MarshalJSON renders Method as its string name, so the REST settings
// surface round-trips guide_method the same way it accepts it.
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts the string name produced by MarshalJSON.
func (m *Method) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("guider: invalid guide_method: %w", err)
	}
	*m = ParseMethod(s)
	return nil
}

// Mover issues the raw mount actions a PULSE-mode correction needs: start
// moving an axis in a direction, and stop it.
type Mover interface {
	Move(axis Axis, direction int) error
	Stop(axis Axis) error
}

// SpeedSetter issues the combined two-axis speed command SPEED and PID
// modes send each iteration.
type SpeedSetter interface {
	SetSpeed(raSpeed, decSpeed int) error
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pulsePool runs PULSE-mode move/stop pairs off the guide thread, bounded
// to a small number of in-flight tasks with at most one outstanding pulse
// per axis (§4.4, §4.6's pulse worker pool).
type pulsePool struct {
	sem        chan struct{}
	mu         sync.Mutex
	outstanding map[Axis]bool
}

func newPulsePool(size int) *pulsePool {
	return &pulsePool{
		sem:         make(chan struct{}, size),
		outstanding: make(map[Axis]bool),
	}
}

// Outstanding reports whether axis currently has a pulse in flight.
func (p *pulsePool) Outstanding(axis Axis) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding[axis]
}

// Submit starts a move on axis, sleeps dur, then stops it, on a pool
// goroutine. It is a caller error to call Submit while Outstanding(axis)
// is true; callers must check first.
func (p *pulsePool) Submit(mover Mover, axis Axis, direction int, dur time.Duration) {
	p.mu.Lock()
	p.outstanding[axis] = true
	p.mu.Unlock()

	p.sem <- struct{}{}
	go func() {
		defer func() {
			<-p.sem
			p.mu.Lock()
			p.outstanding[axis] = false
			p.mu.Unlock()
		}()
		if err := mover.Move(axis, direction); err != nil {
			return
		}
		time.Sleep(dur)
		mover.Stop(axis)
	}()
}

// GuideOutput dispatches a computed correction to the mount according to
// the selected Method (§4.4).
type GuideOutput struct {
	pool    *pulsePool
	pidRA   *PID
	pidDec  *PID
}

// NewGuideOutput builds a GuideOutput with a pulse worker pool of the
// given size (spec default 4) and fresh per-axis PID controllers.
func NewGuideOutput(poolSize int, kp, ki, kd float64) *GuideOutput {
	return &GuideOutput{
		pool:   newPulsePool(poolSize),
		pidRA:  NewPID(kp, ki, kd),
		pidDec: NewPID(kp, ki, kd),
	}
}

// ResetPID resets both axis PID controllers, called on the guiding
// off->on transition per §3's invariant.
func (g *GuideOutput) ResetPID() {
	g.pidRA.Reset()
	g.pidDec.Reset()
}

// PulseOutstanding reports whether a pulse is still in flight for either
// axis; per §4.4, a PULSE-mode iteration is skipped entirely while true.
func (g *GuideOutput) PulseOutstanding() bool {
	return g.pool.Outstanding(AxisRA) || g.pool.Outstanding(AxisDec)
}

// Apply dispatches raArcsec/decArcsec to the mount via method, and
// reports the direction chosen per axis for PULSE mode (0 for the other
// two modes, which move continuously rather than pulsing).
func (g *GuideOutput) Apply(method Method, mover Mover, speed SpeedSetter, raArcsec, decArcsec, maxDrift, guidePulseSeconds float64, decGuiding bool) (raDir, decDir int) {
	switch method {
	case MethodPulse:
		raDir = pulseDirection(raArcsec, maxDrift)
		if decGuiding {
			decDir = pulseDirection(decArcsec, maxDrift)
		}
		dur := time.Duration(guidePulseSeconds * float64(time.Second))
		if raDir != 0 && !g.pool.Outstanding(AxisRA) {
			g.pool.Submit(mover, AxisRA, raDir, dur)
		}
		if decDir != 0 && !g.pool.Outstanding(AxisDec) {
			g.pool.Submit(mover, AxisDec, decDir, dur)
		}
		return raDir, decDir

	case MethodSpeed:
		raSpeed := int(Clamp(-raArcsec, -15, 15))
		decSpeed := 0
		if decGuiding {
			decSpeed = int(Clamp(-decArcsec, -15, 15))
		}
		speed.SetSpeed(raSpeed, decSpeed)
		return 0, 0

	case MethodPID:
		raOut := Clamp(g.pidRA.Compute(-raArcsec), -99, 99)
		decOut := 0.0
		if decGuiding {
			decOut = Clamp(g.pidDec.Compute(-decArcsec), -99, 99)
		}
		speed.SetSpeed(int(raOut), int(decOut))
		return 0, 0
	}
	return 0, 0
}

// pulseDirection picks the move direction that cancels err: a positive
// error (star has drifted positive) is corrected by a negative-direction
// command, matching autoguider.py's sign convention.
func pulseDirection(err, maxDrift float64) int {
	if err > maxDrift {
		return -1
	}
	if err < -maxDrift {
		return 1
	}
	return 0
}
