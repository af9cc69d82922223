package guider

import "math"

// Vector is a 2D pixel displacement.
type Vector struct {
	X, Y float64
}

// RobustMean implements §4.3 step 4: compute the mean of vectors and the
// distance of each from that mean, keep those whose distance is at most
// 2 sigma (sigma being the standard deviation of the distances), then
// recompute the mean over the kept set. If no vector is kept (all
// distances equal and non-zero, so sigma is 0), the untrimmed mean is
// returned.
//
// Grounded on autoguider.py's calculate_drift (numpy mean/std over the
// per-star displacement distances, masked by distance<=2*std).
func RobustMean(vectors []Vector) Vector {
	if len(vectors) == 0 {
		return Vector{}
	}

	mean := meanOf(vectors)

	distances := make([]float64, len(vectors))
	for i, v := range vectors {
		distances[i] = math.Hypot(v.X-mean.X, v.Y-mean.Y)
	}
	meanDist := meanFloat(distances)
	stdDist := stddevFloat(distances, meanDist)

	var kept []Vector
	for i, v := range vectors {
		if distances[i] <= 2*stdDist {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return mean
	}
	return meanOf(kept)
}

func meanOf(vs []Vector) Vector {
	var sx, sy float64
	for _, v := range vs {
		sx += v.X
		sy += v.Y
	}
	n := float64(len(vs))
	return Vector{X: round4(sx / n), Y: round4(sy / n)}
}

func meanFloat(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stddevFloat(xs []float64, mean float64) float64 {
	var s float64
	for _, x := range xs {
		d := x - mean
		s += d * d
	}
	return math.Sqrt(s / float64(len(xs)))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// RotateVector rotates (dx,dy) counter-clockwise by angleDeg, per §4.3
// step 5 and §4.5's calibration math. Grounded on autoguider.py's
// rotate_vector (rounds to 4 decimals).
func RotateVector(v Vector, angleDeg float64) Vector {
	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return Vector{
		X: round4(v.X*cos - v.Y*sin),
		Y: round4(v.X*sin + v.Y*cos),
	}
}

// minCosDec is the clamp applied near the pole so PixelsToArcseconds never
// divides by zero (§4.3 step 6, §8 boundary behavior).
const minCosDec = 1e-6

// PixelsToArcseconds converts a rotated-frame displacement to arcseconds,
// applying the cos(dec) correction to the RA axis only, per §4.3 step 6.
// Grounded on autoguider.py's pixels_to_arcseconds.
func PixelsToArcseconds(dx, dy, pixelScale, declinationDeg float64) (raArcsec, decArcsec float64) {
	decRad := declinationDeg * math.Pi / 180
	cosDec := math.Cos(decRad)
	if math.Abs(cosDec) < minCosDec {
		cosDec = minCosDec
	}
	raScale := pixelScale / cosDec
	ra := dx * raScale
	dec := dy * pixelScale
	return round2(ra), round2(dec)
}

// ArcsecondsToPixels is the inverse of PixelsToArcseconds, used for
// round-trip testing per §8.
func ArcsecondsToPixels(raArcsec, decArcsec, pixelScale, declinationDeg float64) (dx, dy float64) {
	decRad := declinationDeg * math.Pi / 180
	cosDec := math.Cos(decRad)
	if math.Abs(cosDec) < minCosDec {
		cosDec = minCosDec
	}
	raScale := pixelScale / cosDec
	return raArcsec / raScale, decArcsec / pixelScale
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
