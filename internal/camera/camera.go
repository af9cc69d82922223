package camera

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pihlerm/pipitrek/internal/frame"
)

const (
	// maxConsecutiveFailures is F from §4.1: after this many consecutive
	// read failures, attempt device recovery.
	maxConsecutiveFailures = 5
	// maxRecoveryAttempts is R from §4.1: after this many failed recovery
	// attempts, the capture loop reports a fatal error.
	maxRecoveryAttempts = 3
)

// ErrFatal is returned (wrapped) from the capture loop when recovery is
// exhausted, per §7's "Fatal I/O" error kind.
var ErrFatal = fmt.Errorf("camera stopped responding")

// Device is the low-level capture source a Camera drives. Separated from
// Camera so tests can substitute a synthetic device (see MockDevice); the
// real implementation is GocvDevice in device.go.
type Device interface {
	Open(deviceID, width, height, fps int, mode string) error
	// Read captures one frame. pix is BGR if color, single-channel if not.
	Read(color bool) (pix []byte, width, height int, err error)
	Close() error
}

// Camera implements the Camera Source (§4.1). It owns a Device, the
// integration accumulator, the hot-pixel mask, and publishes integrated
// frames through a frame.Handle.
type Camera struct {
	logger *log.Logger
	device Device
	handle *frame.Handle

	// realloc guards geometry-dependent state: accumulator buffers, width,
	// height, channels. Separate from frame publication per §5.
	realloc sync.Mutex

	deviceID int
	width    int
	height   int
	fps      int
	mode     string
	color    bool

	integrateFrames int
	rGain, gGain, bGain float64

	accumulator []uint32 // width*height*channels, pixel-wise sum
	channels    int

	mask *HotPixelMask

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	lastErr error
}

// New creates an unstarted Camera. logger may be nil (defaults to log.Default()).
func New(device Device, handle *frame.Handle, logger *log.Logger) *Camera {
	if logger == nil {
		logger = log.Default()
	}
	return &Camera{
		logger:          logger,
		device:          device,
		handle:          handle,
		mode:            "MJPG",
		color:           true,
		integrateFrames: 10,
		rGain:           1.0,
		gGain:           1.0,
		bGain:           1.0,
	}
}

// Start opens the device at the given geometry and begins the background
// capture loop.
func (c *Camera) Start(deviceID, width, height, fps int) error {
	c.realloc.Lock()
	if err := c.device.Open(deviceID, width, height, fps, c.mode); err != nil {
		c.realloc.Unlock()
		return fmt.Errorf("opening camera: %w", err)
	}
	c.deviceID = deviceID
	c.width = width
	c.height = height
	c.fps = fps
	c.allocateLocked()
	c.realloc.Unlock()

	c.stopCh = make(chan struct{})
	c.running = true
	c.wg.Add(1)
	go c.loop()
	return nil
}

// Stop requests the capture loop to exit, joining within a bounded timeout,
// and releases the device.
func (c *Camera) Stop() error {
	if !c.running {
		return nil
	}
	close(c.stopCh)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.logger.Printf("camera: capture loop did not stop within 10s, proceeding with shutdown")
	}
	c.running = false
	return c.device.Close()
}

// CurrentFrame returns the last published integrated frame, or nil.
func (c *Camera) CurrentFrame() *frame.Frame {
	return c.handle.Current()
}

func (c *Camera) allocateLocked() {
	ch := 1
	if c.color {
		ch = 3
	}
	c.channels = ch
	c.accumulator = make([]uint32, c.width*c.height*ch)
}

// SetMode sets the pixel format (e.g. "MJPG"/"YUYV") used the next time
// the device is opened (Start or recovery). It does not reopen a running
// device and does not touch the accumulator buffers.
func (c *Camera) SetMode(mode string) {
	c.realloc.Lock()
	c.mode = mode
	c.realloc.Unlock()
}

// SetFrameSize reconfigures capture geometry, reallocating buffers.
func (c *Camera) SetFrameSize(width, height int) {
	c.realloc.Lock()
	c.width = width
	c.height = height
	c.allocateLocked()
	c.realloc.Unlock()
}

// SetFPS reconfigures the target frame rate.
func (c *Camera) SetFPS(fps int) {
	c.realloc.Lock()
	c.fps = fps
	c.realloc.Unlock()
}

// SetIntegration sets N, the number of raw frames summed per published frame.
func (c *Camera) SetIntegration(n int) {
	if n < 1 {
		n = 1
	}
	c.realloc.Lock()
	c.integrateFrames = n
	c.realloc.Unlock()
}

// SetChannelGains sets per-channel multipliers applied after integration.
func (c *Camera) SetChannelGains(r, g, b float64) {
	c.realloc.Lock()
	c.rGain, c.gGain, c.bGain = r, g, b
	c.realloc.Unlock()
}

// SetColor toggles color vs. grayscale capture, reallocating buffers.
func (c *Camera) SetColor(color bool) {
	c.realloc.Lock()
	c.color = color
	c.allocateLocked()
	c.realloc.Unlock()
}

// SetControl issues a direct driver control (brightness, exposure, gain, ...).
func (c *Camera) SetControl(name string, value int) error {
	return SetV4L2Control(c.deviceID, name, value)
}

func (c *Camera) loop() {
	defer c.wg.Done()

	failures := 0
	recoveries := 0

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.realloc.Lock()
		n := c.integrateFrames
		width, height, channels := c.width, c.height, c.channels
		color := c.color
		rGain, gGain, bGain := c.rGain, c.gGain, c.bGain
		for i := range c.accumulator {
			c.accumulator[i] = 0
		}
		count := 0
		for i := 0; i < n; i++ {
			pix, w, h, err := c.device.Read(color)
			if err != nil {
				failures++
				c.logger.Printf("camera: read failed (%d/%d consecutive): %v", failures, maxConsecutiveFailures, err)
				if failures >= maxConsecutiveFailures {
					if !c.attemptRecovery() {
						recoveries++
						c.logger.Printf("camera: recovery attempt %d/%d failed", recoveries, maxRecoveryAttempts)
						if recoveries >= maxRecoveryAttempts {
							c.lastErr = ErrFatal
							c.realloc.Unlock()
							return
						}
					} else {
						failures = 0
						recoveries = 0
					}
				}
				continue
			}
			failures = 0
			if w != width || h != height {
				continue
			}
			for j := 0; j < len(pix) && j < len(c.accumulator); j++ {
				c.accumulator[j] += uint32(pix[j])
			}
			count++
		}

		var out *frame.Frame
		if count > 0 {
			out = frame.New(width, height, channels)
			gains := [3]float64{rGain, gGain, bGain}
			for j := range out.Pix {
				avg := float64(c.accumulator[j]) / float64(count)
				if channels == 3 {
					avg *= gains[j%3]
				}
				out.Pix[j] = clip8(avg)
			}
			if c.mask != nil {
				c.mask.Apply(out)
			}
		}
		c.realloc.Unlock()

		if out != nil {
			c.handle.Publish(out)
		}
	}
}

func clip8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// attemptRecovery closes and reopens the device, matching autoguider's
// Camera.attempt_recovery (release, pause, reopen).
func (c *Camera) attemptRecovery() bool {
	c.device.Close()
	time.Sleep(1 * time.Second)
	if err := c.device.Open(c.deviceID, c.width, c.height, c.fps, c.mode); err != nil {
		c.logger.Printf("camera: recovery reopen failed: %v", err)
		return false
	}
	return true
}

// Err returns the fatal error that stopped the capture loop, if any.
func (c *Camera) Err() error {
	return c.lastErr
}

// SetHotPixelMask installs the mask applied after each integration.
func (c *Camera) SetHotPixelMask(m *HotPixelMask) {
	c.realloc.Lock()
	c.mask = m
	c.realloc.Unlock()
}

// ClearHotPixelMask removes any installed mask; subsequent frames are
// published uncorrected.
func (c *Camera) ClearHotPixelMask() {
	c.SetHotPixelMask(nil)
}

// CaptureHotPixelMask reads darkFrames frames straight from the device
// (bypassing the integration accumulator, since a dark-frame average
// wants raw successive reads) and installs the resulting mask.
func (c *Camera) CaptureHotPixelMask(darkFrames, threshold int) (*HotPixelMask, error) {
	m, err := DetectHotPixelMask(c.device, darkFrames, threshold)
	if err != nil {
		return nil, err
	}
	c.SetHotPixelMask(m)
	return m, nil
}
