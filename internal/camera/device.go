//go:build cgo
// +build cgo

// Package camera implements the Camera Source (§4.1): V4L2 capture,
// N-frame pixel-wise integration, hot-pixel mask correction, and direct
// driver control passthrough.
//
// Grounded on MiFaceDEV/miface's pkg/miface/camera_gocv.go: the device-open
// sequence (V4L2 backend, FOURCC, geometry, warm-up read) is kept almost
// verbatim. Everything downstream — mirroring/RGB conversion for MediaPipe —
// is replaced with grayscale/color capture feeding the integration buffer.
package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// fourcc maps the handful of pixel formats PipiTrek's guide cameras use to
// their FourCC codes.
var fourcc = map[string]uint32{
	"MJPG": 0x47504A4D,
	"YUYV": 0x56595559,
}

// GocvDevice is the real V4L2-backed Device.
type GocvDevice struct {
	webcam *gocv.VideoCapture
	opened bool
}

// NewGocvDevice creates an unopened device.
func NewGocvDevice() *GocvDevice {
	return &GocvDevice{}
}

// Open opens the V4L2 device and negotiates mode/geometry/fps.
func (d *GocvDevice) Open(deviceID, width, height, fps int, mode string) error {
	if d.opened {
		return fmt.Errorf("camera already opened")
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("opening camera device %d: %w", deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("camera device %d not found or unavailable", deviceID)
	}

	if code, ok := fourcc[mode]; ok {
		webcam.Set(gocv.VideoCaptureFOURCC, float64(code))
	}
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	d.webcam = webcam
	d.opened = true

	// Warm up: some UVC cameras need a discarded first read after mode changes.
	warm := gocv.NewMat()
	d.webcam.Read(&warm)
	warm.Close()

	return nil
}

// Read captures a single frame, converting to grayscale unless color is set.
func (d *GocvDevice) Read(color bool) ([]byte, int, int, error) {
	if !d.opened {
		return nil, 0, 0, fmt.Errorf("camera not opened")
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.webcam.Read(&mat); !ok {
		return nil, 0, 0, fmt.Errorf("reading frame from camera")
	}
	if mat.Empty() {
		return nil, 0, 0, fmt.Errorf("captured frame is empty")
	}

	out := mat
	var converted gocv.Mat
	if !color {
		converted = gocv.NewMat()
		defer converted.Close()
		gocv.CvtColor(mat, &converted, gocv.ColorBGRToGray)
		out = converted
	}

	width := out.Cols()
	height := out.Rows()
	return out.ToBytes(), width, height, nil
}

// Close releases the underlying webcam handle.
func (d *GocvDevice) Close() error {
	if !d.opened {
		return nil
	}
	err := d.webcam.Close()
	d.opened = false
	if err != nil {
		return fmt.Errorf("closing webcam: %w", err)
	}
	return nil
}

// ActualGeometry returns the negotiated resolution/fps after Open.
func (d *GocvDevice) ActualGeometry() (width, height, fps int) {
	if !d.opened {
		return 0, 0, 0
	}
	return int(d.webcam.Get(gocv.VideoCaptureFrameWidth)),
		int(d.webcam.Get(gocv.VideoCaptureFrameHeight)),
		int(d.webcam.Get(gocv.VideoCaptureFPS))
}
