//go:build cgo
// +build cgo

// Package analyzer implements the Star Analyzer (§4.2): pure image
// processing that turns a frame and a set of "search-near" hints into
// sub-pixel centroids, a threshold image, a profile preview, and a focus
// metric.
//
// Grounded on analyzer.py's Analyzer.detect_star, translated from a
// single-star function returning (centroid, preview, threshold, focus) into
// a Detect that accepts a slice of hints and returns one result per hint
// (or a single result when there are no hints), per spec §4.2's "[optional
// centroid] (same length as hints, or length 1 when no hints)". The gocv
// contour/moment calls mirror the gocv.Mat ownership discipline used throughout this codebase (camera/device.go,
// preview.go) even though contour detection itself has no precedent elsewhere in this codebase.
package analyzer

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/pihlerm/pipitrek/internal/frame"
)

// Result is one star's detection outcome. Found is false when no contour
// qualified (area at or below StarSize, or zero moment mass).
type Result struct {
	Found       bool
	X, Y        float64 // sub-pixel centroid, full-frame coordinates
	FocusMetric float64
}

// Options bundles the tunable inputs to Detect, mirroring GuideConfig's
// gray_threshold/star_size/max_distance fields (§3).
type Options struct {
	GrayThreshold int     // [0,255]
	StarSize      float64 // minimum contour area; strict inequality at boundary
	MaxDistance   float64 // px radius for hint matching; 0 = unbounded
}

// Detect binarizes f at opts.GrayThreshold, finds external contours, and
// for each hint (or once, if hints is empty) selects and centroids the
// matching contour. The threshold image is returned for diagnostics.
func Detect(f *frame.Frame, hints []image.Point, opts Options) ([]Result, gocv.Mat) {
	gray := toGrayMat(f)
	defer gray.Close()

	thresh := gocv.NewMat()
	gocv.Threshold(gray, &thresh, float32(opts.GrayThreshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		n := len(hints)
		if n == 0 {
			n = 1
		}
		return make([]Result, n), thresh
	}

	if len(hints) == 0 {
		return []Result{detectOne(gray, contours, nil, 0, opts)}, thresh
	}

	results := make([]Result, len(hints))
	for i, h := range hints {
		hint := h
		results[i] = detectOne(gray, contours, &hint, opts.MaxDistance, opts)
	}
	return results, thresh
}

func toGrayMat(f *frame.Frame) gocv.Mat {
	if f.Channels == 1 {
		mat, _ := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8U, f.Pix)
		return mat
	}
	mat, _ := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	defer mat.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	return gray
}

// detectOne picks the contour nearest to hint (or largest-area if hint is
// nil), rejects it if its area is <= starSize, and computes the
// intensity-weighted sub-pixel centroid.
func detectOne(gray gocv.Mat, contours gocv.PointsVector, hint *image.Point, maxDistance float64, opts Options) Result {
	best := -1
	bestArea := -1.0
	bestDist := math.MaxFloat64

	if hint != nil {
		for i := 0; i < contours.Size(); i++ {
			c := contours.At(i)
			mx, my := meanPoint(c)
			d := math.Hypot(mx-float64(hint.X), my-float64(hint.Y))
			area := gocv.ContourArea(c)
			if area <= opts.StarSize {
				continue
			}
			if maxDistance > 0 && d >= maxDistance {
				continue
			}
			if d < bestDist {
				bestDist = d
				best = i
				bestArea = area
			}
		}
		if best < 0 {
			return Result{Found: false}
		}
	} else {
		for i := 0; i < contours.Size(); i++ {
			area := gocv.ContourArea(contours.At(i))
			if area > bestArea {
				bestArea = area
				best = i
			}
		}
		if best < 0 || bestArea <= opts.StarSize {
			return Result{Found: false}
		}
	}

	contour := contours.At(best)
	m := gocv.Moments(contour, false)
	if m["m00"] == 0 {
		return Result{Found: false}
	}

	cx := int(m["m10"] / m["m00"])
	cy := int(m["m01"] / m["m00"])

	areaDiameter := math.Sqrt(m["m00"])
	xSpread := math.Sqrt(m["mu20"] / m["m00"])
	ySpread := math.Sqrt(m["mu02"] / m["m00"])
	maxSpread := math.Max(areaDiameter, math.Max(xSpread, ySpread))
	cropSize := int(maxSpread * 3)
	if cropSize < 20 {
		cropSize = 20
	}
	if cropSize > 50 {
		cropSize = 50
	}
	cropSize += cropSize % 2
	half := cropSize / 2

	x0 := max0(cx - half)
	y0 := max0(cy - half)
	x1 := min(gray.Cols(), cx+half)
	y1 := min(gray.Rows(), cy+half)

	region := gray.Region(image.Rect(x0, y0, x1, y1))
	defer region.Close()

	bg := median(region)
	sub := gocv.NewMat()
	defer sub.Close()
	gocv.Subtract(region, gocv.NewScalar(bg, 0, 0, 0), &sub)

	mw := gocv.Moments(sub, false)
	if mw["m00"] == 0 {
		return Result{
			Found:       true,
			X:           float64(cx),
			Y:           float64(cy),
			FocusMetric: stddev(sub),
		}
	}

	cxw := mw["m10"] / mw["m00"]
	cyw := mw["m01"] / mw["m00"]

	cxFull := round4(cxw + float64(x0))
	cyFull := round4(cyw + float64(y0))

	return Result{
		Found:       true,
		X:           cxFull,
		Y:           cyFull,
		FocusMetric: stddev(sub),
	}
}

func meanPoint(c gocv.PointVector) (float64, float64) {
	n := c.Size()
	if n == 0 {
		return 0, 0
	}
	var sx, sy float64
	for i := 0; i < n; i++ {
		p := c.At(i)
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	return sx / float64(n), sy / float64(n)
}

func median(m gocv.Mat) float64 {
	data, _ := m.DataPtrUint8()
	if len(data) == 0 {
		return 0
	}
	sorted := append([]byte(nil), data...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return float64(sorted[len(sorted)/2])
}

func stddev(m gocv.Mat) float64 {
	mean, std := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer std.Close()
	gocv.MeanStdDev(m, &mean, &std)
	v, _ := std.DataPtrFloat64()
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
