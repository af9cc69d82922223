package mount

import "github.com/pihlerm/pipitrek/internal/guider"

// GuiderAdapter exposes a Link through the three seams the guider
// package needs: pulse moves (guider.Mover), continuous speed commands
// (guider.SpeedSetter), and the calibration excursion verbs
// (guider.MountMover).
type GuiderAdapter struct {
	link *Link
}

// NewGuiderAdapter wraps link for consumption by internal/guider.
func NewGuiderAdapter(link *Link) *GuiderAdapter {
	return &GuiderAdapter{link: link}
}

var axisToLXPair = map[guider.Axis][2]MoveDir{
	guider.AxisRA:  {MoveWest, MoveEast},
	guider.AxisDec: {MoveSouth, MoveNorth},
}

// Move implements guider.Mover: direction -1/+1 maps to the axis's two
// LX200 move directions.
func (a *GuiderAdapter) Move(axis guider.Axis, direction int) error {
	dirs, ok := axisToLXPair[axis]
	if !ok || direction == 0 {
		return nil
	}
	dir := dirs[0]
	if direction > 0 {
		dir = dirs[1]
	}
	_, err := a.link.Exec(LXMove(dir))
	return err
}

// Stop implements guider.Mover.
func (a *GuiderAdapter) Stop(axis guider.Axis) error {
	dirs := axisToLXPair[axis]
	_, err := a.link.Exec(LXStop(dirs[0]))
	return err
}

// StopAll stops both axes with a single command; calibration's
// moveAndDetect calls it after each excursion. (Disabling guiding stops
// the axes through Stop, one axis at a time.)
func (a *GuiderAdapter) StopAll() error {
	_, err := a.link.Exec(LXStop())
	return err
}

// SetSpeed implements guider.SpeedSetter via the vendor start-movement
// command.
func (a *GuiderAdapter) SetSpeed(raSpeed, decSpeed int) error {
	_, err := a.link.Exec(PTCStartMove(raSpeed, decSpeed))
	return err
}

// --- guider.MountMover, for calibration (§4.5) ---

func (a *GuiderAdapter) MoveEast() error  { return a.Move(guider.AxisRA, 1) }
func (a *GuiderAdapter) MoveWest() error  { return a.Move(guider.AxisRA, -1) }
func (a *GuiderAdapter) MoveNorth() error { return a.Move(guider.AxisDec, 1) }
func (a *GuiderAdapter) MoveSouth() error { return a.Move(guider.AxisDec, -1) }

// SetQuiet toggles the bridge's telemetry polling off during
// calibration so it doesn't contend with the move/stop sequence.
func (a *GuiderAdapter) SetQuiet(q bool) error {
	a.link.SetQuiet(q)
	return nil
}

func (a *GuiderAdapter) SetSlowestSpeed() error {
	_, err := a.link.Exec(LXSpeed(RateGuide))
	return err
}

func (a *GuiderAdapter) ZeroBacklash() error {
	if _, err := a.link.Exec(PTCSetBacklashRA(0)); err != nil {
		return err
	}
	_, err := a.link.Exec(PTCSetBacklashDEC(0))
	return err
}
