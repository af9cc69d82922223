//go:build cgo
// +build cgo

package analyzer

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// gammaPreview is gamma-corrected for the zoomed profile preview (§4.2
// step 6), grounded on analyzer.py's calculate_profile.
const gammaPreview = 3.5

// Profile renders region (already background-subtracted, grayscale) as a
// gamma-corrected BGR image overlaid with a yellow column-mean profile
// curve normalized to the region's height.
func Profile(region gocv.Mat) gocv.Mat {
	h := region.Rows()
	w := region.Cols()

	lut := gocv.NewMatWithSize(1, 256, gocv.MatTypeCV8U)
	defer lut.Close()
	invGamma := 1.0 / gammaPreview
	for i := 0; i < 256; i++ {
		v := math.Pow(float64(i)/255.0, invGamma) * 255.0
		lut.SetUCharAt(0, i, byte(v))
	}

	gammaCorrected := gocv.NewMat()
	defer gammaCorrected.Close()
	gocv.LUT(region, lut, &gammaCorrected)

	bgr := gocv.NewMat()
	gocv.CvtColor(gammaCorrected, &bgr, gocv.ColorGrayToBGR)

	profile := make([]float64, w)
	minV, maxV := math.MaxFloat64, -math.MaxFloat64
	for x := 0; x < w; x++ {
		sum := 0.0
		for y := 0; y < h; y++ {
			sum += float64(region.GetUCharAt(y, x))
		}
		v := sum / float64(h)
		profile[x] = v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	yellow := color.RGBA{R: 255, G: 255, B: 0, A: 0}
	normalized := make([]float64, w)
	if maxV > minV {
		for x, v := range profile {
			normalized[x] = (v - minV) / (maxV - minV) * float64(h-1)
		}
	}
	for x := 0; x < w-1; x++ {
		y1 := h - 1 - int(normalized[x])
		y2 := h - 1 - int(normalized[x+1])
		gocv.Line(&bgr, image.Pt(x, y1), image.Pt(x+1, y2), yellow, 1)
	}

	return bgr
}
