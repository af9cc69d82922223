package mount

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 2 * time.Second
	noTimeout      = 0
)

// --- response predicates (§4.6's three response shapes) ---

func endsWithHash(buf []byte) bool {
	return len(buf) > 0 && buf[len(buf)-1] == '#'
}

func bangNewline(buf []byte) bool {
	return bytes.HasSuffix(buf, []byte("!\n"))
}

func zeroOrOne(buf []byte) bool {
	return len(buf) >= 1 && (buf[0] == '0' || buf[0] == '1')
}

// --- LX200-compatible commands ---

// MoveDir is one of the four LX200 move directions.
type MoveDir byte

const (
	MoveNorth MoveDir = 'n'
	MoveSouth MoveDir = 's'
	MoveEast  MoveDir = 'e'
	MoveWest  MoveDir = 'w'
)

// LXMove starts a continuous move in dir; fire-and-forget.
func LXMove(dir MoveDir) Command {
	return Command{Bytes: []byte(fmt.Sprintf(":M%c#", dir)), Timeout: noTimeout}
}

// LXStop stops all motion (no dir) or motion on one axis.
func LXStop(dir ...MoveDir) Command {
	if len(dir) == 0 {
		return Command{Bytes: []byte(":Q#"), Timeout: noTimeout}
	}
	return Command{Bytes: []byte(fmt.Sprintf(":Q%c#", dir[0])), Timeout: noTimeout}
}

// SlewRate selects the named LX200 speed: Guide, Center, Find, Max.
type SlewRate byte

const (
	RateGuide  SlewRate = 'G'
	RateCenter SlewRate = 'C'
	RateFind   SlewRate = 'M'
	RateMax    SlewRate = 'S'
)

// LXSpeed sets the named slew rate; fire-and-forget.
func LXSpeed(rate SlewRate) Command {
	return Command{Bytes: []byte(fmt.Sprintf(":R%c#", rate)), Timeout: noTimeout}
}

// SetRA sets the target RA ("HH:MM:SS"); the mount replies "0" or "1".
func SetRA(hms string) Command {
	return Command{Bytes: []byte(fmt.Sprintf(":Sr%s#", hms)), Predicate: zeroOrOne, Timeout: defaultTimeout}
}

// SetDec sets the target DEC ("+DD*MM:SS" or "-DD*MM:SS").
func SetDec(dms string) Command {
	return Command{Bytes: []byte(fmt.Sprintf(":Sd%s#", dms)), Predicate: zeroOrOne, Timeout: defaultTimeout}
}

// GetRA requests the current RA; the mount replies "HH:MM:SS#".
func GetRA() Command {
	return Command{Bytes: []byte(":GR#"), Predicate: endsWithHash, Timeout: defaultTimeout}
}

// GetDec requests the current DEC; the mount replies "±DD*MM:SS#".
func GetDec() Command {
	return Command{Bytes: []byte(":GD#"), Predicate: endsWithHash, Timeout: defaultTimeout}
}

// SyncCmd synchronizes the mount's position to the previously-set
// RA/DEC target.
func SyncCmd() Command {
	return Command{Bytes: []byte(":CM#"), Predicate: endsWithHash, Timeout: defaultTimeout}
}

// Slew commands a goto to the previously-set target; "0" on success,
// "1<text>#" on refusal.
func Slew() Command {
	slewReply := func(buf []byte) bool {
		return (len(buf) > 0 && buf[0] == '0') || endsWithHash(buf)
	}
	return Command{Bytes: []byte(":MS#"), Predicate: slewReply, Timeout: 5 * time.Second}
}

// GetProduct / GetVersion request the LX200 product and firmware
// version strings.
func GetProduct() Command {
	return Command{Bytes: []byte(":GVP#"), Predicate: endsWithHash, Timeout: defaultTimeout}
}

func GetVersion() Command {
	return Command{Bytes: []byte(":GVN#"), Predicate: endsWithHash, Timeout: defaultTimeout}
}

// --- vendor PipiTelescopeCommand extensions (all replies end "!\n") ---

// PTCInfo requests the multi-line info dump (software, memory, uptime,
// looptime, tracktime, RA, DEC, pier, PEC, backlash, camera, tracking).
func PTCInfo() Command {
	return Command{Bytes: []byte("!IN#"), Predicate: bangNewline, Timeout: defaultTimeout}
}

// Pier is the mount's side-of-pier.
type Pier byte

const (
	PierEast Pier = 'E'
	PierWest Pier = 'W'
)

// PTCSetPier sets the mount's recorded pier side.
func PTCSetPier(p Pier) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!M%c#", p)), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCSetBacklashRA / PTCSetBacklashDEC set 3-digit arcsecond backlash
// compensation for the named axis.
func PTCSetBacklashRA(arcsec int) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!PA%03d#", clampInt(arcsec, 0, 999))), Predicate: bangNewline, Timeout: defaultTimeout}
}

func PTCSetBacklashDEC(arcsec int) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!PB%03d#", clampInt(arcsec, 0, 999))), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCStartMove starts continuous movement at the given 2-digit signed
// arcsec/10s speed on each axis (§4.4's SPEED/PID output).
func PTCStartMove(raSpeed, decSpeed int) Command {
	return Command{
		Bytes:     []byte(fmt.Sprintf("!S%+03d%+03d#", clampInt(raSpeed, -99, 99), clampInt(decSpeed, -99, 99))),
		Predicate: bangNewline,
		Timeout:   defaultTimeout,
	}
}

// PTCGetPEC requests the PEC table: "PEC <N> v1,...,v2N!\n".
func PTCGetPEC() Command {
	return Command{Bytes: []byte("!PO#"), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCSetPECHeader begins a PEC write; the mount expects the data line
// (built by PTCPECData) to follow on the same connection and does not
// itself reply to "!PI#" alone, so this is fire-and-forget (nil
// predicate) like a move/stop command.
func PTCSetPECHeader() Command {
	return Command{Bytes: []byte("!PI#"), Predicate: nil, Timeout: noTimeout}
}

// PTCPECData builds the "PEC <N> v1,...,v2N\n" data line for a PEC
// write, following PTCSetPECHeader.
func PTCPECData(values []int) Command {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	line := fmt.Sprintf("PEC %d %s\n", len(values)/2, strings.Join(parts, ","))
	return Command{Bytes: []byte(line), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCSetPECPos sets the PEC playback position (0..99).
func PTCSetPECPos(pos int) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!PS%02d#", clampInt(pos, 0, 99))), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCGetPECPos requests the current PEC playback position.
func PTCGetPECPos() Command {
	return Command{Bytes: []byte("!PG#"), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCSetTracking turns sidereal tracking on or off.
func PTCSetTracking(on bool) Command {
	c := "!TD#"
	if on {
		c = "!TE#"
	}
	return Command{Bytes: []byte(c), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCCameraStart / PTCCameraStop trigger the mount's camera-shutter relay.
func PTCCameraStart() Command {
	return Command{Bytes: []byte("!CO#"), Predicate: bangNewline, Timeout: defaultTimeout}
}

func PTCCameraStop() Command {
	return Command{Bytes: []byte("!CX#"), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCCameraSetExp sets the camera exposure time in a 3-digit unit the
// firmware interprets.
func PTCCameraSetExp(v int) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!CE%03d#", clampInt(v, 0, 999))), Predicate: bangNewline, Timeout: defaultTimeout}
}

// PTCCameraSetShots sets the remaining shot count.
func PTCCameraSetShots(v int) Command {
	return Command{Bytes: []byte(fmt.Sprintf("!CN%03d#", clampInt(v, 0, 999))), Predicate: bangNewline, Timeout: defaultTimeout}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
