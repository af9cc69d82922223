package camera

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

// Control describes one V4L2 control as reported by `v4l2-ctl --list-ctrls-menus`.
type Control struct {
	Name    string
	Type    string // "int" or "bool"
	Min     int
	Max     int
	Step    int
	Default int
	Value   int
}

var (
	intCtrlRe  = regexp.MustCompile(`^\s*(\w+)\s+0x[0-9a-f]+\s+\(int\)\s*:\s*min=(-?\d+)\s+max=(-?\d+)\s+step=(\d+)\s+default=(-?\d+)\s+value=(-?\d+)`)
	boolCtrlRe = regexp.MustCompile(`^\s*(\w+)\s+0x[0-9a-f]+\s+\(bool\)\s*:\s*default=(\d+)\s+value=(\d+)`)
)

// ListV4L2Controls shells out to `v4l2-ctl --list-ctrls-menus -d /dev/videoN`
// and parses the integer/boolean control lines. Grounded on v412_ctl.py's
// get_v4l2_controls, dropping the menu-control parsing (PipiTrek's guide
// cameras only need the numeric exposure/gain/brightness controls).
func ListV4L2Controls(deviceID int) (map[string]Control, error) {
	cmd := exec.Command("v4l2-ctl", "--list-ctrls-menus", "-d", fmt.Sprintf("/dev/video%d", deviceID))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing v4l2 controls: %w", err)
	}
	return parseV4L2Controls(string(out)), nil
}

func parseV4L2Controls(out string) map[string]Control {
	controls := map[string]Control{}
	for _, line := range splitLines(out) {
		if m := intCtrlRe.FindStringSubmatch(line); m != nil {
			controls[m[1]] = Control{
				Name:    m[1],
				Type:    "int",
				Min:     atoi(m[2]),
				Max:     atoi(m[3]),
				Step:    atoi(m[4]),
				Default: atoi(m[5]),
				Value:   atoi(m[6]),
			}
			continue
		}
		if m := boolCtrlRe.FindStringSubmatch(line); m != nil {
			controls[m[1]] = Control{
				Name:    m[1],
				Type:    "bool",
				Min:     0,
				Max:     1,
				Default: atoi(m[2]),
				Value:   atoi(m[3]),
			}
		}
	}
	return controls
}

// SetV4L2Control shells out to `v4l2-ctl --set-ctrl name=value`, the
// operation behind §4.1's `set_control(name,value)`. Grounded on
// v412_ctl.py's set_v4l2_control.
func SetV4L2Control(deviceID int, name string, value int) error {
	cmd := exec.Command("v4l2-ctl", "-d", fmt.Sprintf("/dev/video%d", deviceID),
		"--set-ctrl", fmt.Sprintf("%s=%d", name, value))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("setting v4l2 control %s=%d: %w (%s)", name, value, err, out)
	}
	return nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
