package mount

import (
	"io"
	"time"
)

// Port is the physical or virtual byte stream a Link drives: the real
// mount serial line, or a mock for tests. Modeled on go.bug.st/serial's
// io.ReadWriteCloser shape (grounded on banshee-data-velocity.report's
// radar/serial.go, the pack's serial-line example).
type Port interface {
	io.ReadWriter
	io.Closer
	SetReadTimeout(t time.Duration) error
}
