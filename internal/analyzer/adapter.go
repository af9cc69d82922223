//go:build cgo
// +build cgo

package analyzer

import (
	"image"

	"github.com/pihlerm/pipitrek/internal/frame"
	"github.com/pihlerm/pipitrek/internal/guider"
)

// GuiderFinder adapts the package-level Detect function to
// guider.StarFinder, so the Guider Core can drive the real gocv-backed
// analyzer without importing it directly (guider stays buildable
// without cgo).
type GuiderFinder struct{}

// Detect implements guider.StarFinder.
func (GuiderFinder) Detect(f *frame.Frame, hints []guider.Point, grayThreshold int, starSize, maxDistance float64) []guider.DetectResult {
	imgHints := make([]image.Point, len(hints))
	for i, h := range hints {
		imgHints[i] = image.Point{X: int(h.X), Y: int(h.Y)}
	}

	results, thresh := Detect(f, imgHints, Options{
		GrayThreshold: grayThreshold,
		StarSize:      starSize,
		MaxDistance:   maxDistance,
	})
	thresh.Close()

	out := make([]guider.DetectResult, len(results))
	for i, r := range results {
		out[i] = guider.DetectResult{Found: r.Found, X: r.X, Y: r.Y, FocusMetric: r.FocusMetric}
	}
	return out
}
