// Package guider implements the Guider Core (§4.3), Guide Output (§4.4),
// and Calibration (§4.5): the tracked-star set, drift computation, PID
// controllers, the guiding policy switch, and the cadence loop tying
// capture -> detection -> correction together.
package guider

// PID implements the PIDState controller from §3/§4.4: output = Kp*e +
// Ki*I + Kd*(e-e_prev)/dt, with I_new = alpha*I_prev + e*dt.
//
// Grounded on autoguider.py's PIDController class; the integral-decay term
// alpha is retained verbatim per the design note in §9.
type PID struct {
	Kp, Ki, Kd float64
	Alpha      float64 // integral decay, default 0.9
	Dt         float64 // default 1.0

	integral float64
	prevErr  float64
}

// NewPID creates a PID with the given gains and the documented defaults for
// alpha (0.9) and dt (1.0).
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd, Alpha: 0.9, Dt: 1.0}
}

// Compute advances the controller by one error sample and returns the
// combined P+I+D output.
func (p *PID) Compute(err float64) float64 {
	proportional := p.Kp * err

	p.integral = p.Alpha*p.integral + err*p.Dt
	integralTerm := p.Ki * p.integral

	derivative := (err - p.prevErr) / p.Dt
	derivativeTerm := p.Kd * derivative

	p.prevErr = err

	return proportional + integralTerm + derivativeTerm
}

// Reset zeroes the integral accumulator and previous error. Per §3's
// invariant, this is called exactly when guiding transitions off->on, so
// the first iteration's derivative term is zero.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
}
