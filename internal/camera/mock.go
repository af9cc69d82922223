package camera

import "fmt"

// MockDevice is a synthetic Device for tests that don't want a real V4L2
// camera. It cycles through a fixed list of frames, or fails every call if
// configured to.
type MockDevice struct {
	Frames   [][]byte
	Width    int
	Height   int
	i        int
	FailNext int // number of upcoming reads that should fail
	opened   bool
}

func (d *MockDevice) Open(deviceID, width, height, fps int, mode string) error {
	d.opened = true
	return nil
}

func (d *MockDevice) Read(color bool) ([]byte, int, int, error) {
	if !d.opened {
		return nil, 0, 0, fmt.Errorf("device not opened")
	}
	if d.FailNext > 0 {
		d.FailNext--
		return nil, 0, 0, fmt.Errorf("simulated read failure")
	}
	if len(d.Frames) == 0 {
		return nil, 0, 0, fmt.Errorf("no frames queued")
	}
	f := d.Frames[d.i%len(d.Frames)]
	d.i++
	return f, d.Width, d.Height, nil
}

func (d *MockDevice) Close() error {
	d.opened = false
	return nil
}
