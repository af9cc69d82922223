package mount

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatRA encodes hours/minutes/seconds as LX200 "HH:MM:SS".
func FormatRA(h, m, s int) string {
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseRA decodes an LX200 "HH:MM:SS#" (or without the trailing '#')
// reply into hours/minutes/seconds.
func ParseRA(reply string) (h, m, s int, err error) {
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "#")
	_, err = fmt.Sscanf(reply, "%d:%d:%d", &h, &m, &s)
	return
}

// FormatDec encodes a signed degrees/minutes/seconds declination as
// LX200 "+DD*MM:SS" / "-DD*MM:SS".
func FormatDec(negative bool, d, m, s int) string {
	sign := "+"
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d*%02d:%02d", sign, d, m, s)
}

// ParseDec decodes an LX200 "±DD*MM:SS#" reply.
func ParseDec(reply string) (negative bool, d, m, s int, err error) {
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "#")
	if reply == "" {
		err = fmt.Errorf("mount: empty dec reply")
		return
	}
	negative = reply[0] == '-'
	body := strings.TrimPrefix(strings.TrimPrefix(reply, "+"), "-")
	body = strings.ReplaceAll(body, "*", ":")
	_, err = fmt.Sscanf(body, "%d:%d:%d", &d, &m, &s)
	return
}

// DegreesToRAString converts a right-ascension angle in degrees to the
// LX200 "HH:MM:SS" encoding (whole seconds), for the Stellarium bridge.
func DegreesToRAString(deg float64) string {
	hours := deg / 15.0
	return hmsString(hours)
}

func hmsString(hours float64) string {
	if hours < 0 {
		hours += 24
	}
	totalSeconds := int(hours*3600 + 0.5)
	h := (totalSeconds / 3600) % 24
	m := (totalSeconds / 60) % 60
	s := totalSeconds % 60
	return FormatRA(h, m, s)
}

// DegreesToDecString converts a declination in degrees to the LX200
// "+DD*MM:SS" encoding.
func DegreesToDecString(deg float64) string {
	negative := deg < 0
	if negative {
		deg = -deg
	}
	totalSeconds := int(deg*3600 + 0.5)
	d := totalSeconds / 3600
	m := (totalSeconds / 60) % 60
	s := totalSeconds % 60
	return FormatDec(negative, d, m, s)
}

// ParsePEC parses a "PEC <N> v1,v2,...,v2N" body (with or without the
// "!\n" or "#!\n" sentinel already stripped) into its value slice.
func ParsePEC(body string) ([]int, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "!")
	body = strings.TrimSuffix(body, "\n")
	body = strings.TrimSuffix(body, "#")
	body = strings.TrimPrefix(body, "PEC")
	body = strings.TrimSpace(body)

	fields := strings.Fields(body)
	if len(fields) < 2 {
		return nil, fmt.Errorf("mount: malformed PEC reply %q", body)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("mount: malformed PEC count: %w", err)
	}
	values := strings.Split(fields[1], ",")
	if len(values) != 2*n {
		return nil, fmt.Errorf("mount: PEC declares %d pairs but has %d values", n, len(values))
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i], err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("mount: malformed PEC value %q: %w", v, err)
		}
	}
	return out, nil
}
