package camera

import (
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/pihlerm/pipitrek/internal/frame"
)

// bayerKernel is the fixed 3x3 anti-debayer weight kernel used to correct
// hot pixels. It is a package-level value: it is not stored in the mask
// file, which holds only the hot pixel coordinates.
var bayerKernel = [3][3]float64{
	{0.15, 0.30, 0.15},
	{0.30, 1.00, 0.30},
	{0.15, 0.30, 0.15},
}

// Coord is a (y,x) hot pixel location. It is persisted as a JSON object
// with "y" and "x" fields, not as a [y,x] pair.
type Coord struct {
	Y int `json:"y"`
	X int `json:"x"`
}

// HotPixelMask is the sparse set of hot pixel coordinates detected from
// averaged dark frames, persisted as a JSON object whose "coords" field
// lists them (§3 HotPixelMask).
type HotPixelMask struct {
	Coords []Coord `json:"coords"`
}

// DetectHotPixelMask averages darkFrames successive grayscale reads from
// device and flags a pixel "hot" iff its averaged value exceeds
// median+threshold and it is the local maximum in its 3x3 neighborhood.
//
// Grounded on camera.py's capture_hot_pixel_mask.
func DetectHotPixelMask(device Device, darkFrames, threshold int) (*HotPixelMask, error) {
	if darkFrames < 1 {
		darkFrames = 1
	}

	var width, height int
	var sum []uint32

	count := 0
	for i := 0; i < darkFrames; i++ {
		pix, w, h, err := device.Read(false)
		if err != nil {
			continue
		}
		if sum == nil {
			width, height = w, h
			sum = make([]uint32, w*h)
		}
		if w != width || h != height {
			continue
		}
		for j, v := range pix {
			sum[j] += uint32(v)
		}
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("capturing dark frames: all reads failed")
	}

	avg := make([]float64, len(sum))
	for i, v := range sum {
		avg[i] = float64(v) / float64(count)
	}

	med := median(avg)
	cut := med + float64(threshold)

	var coords []Coord
	at := func(x, y int) float64 {
		if x < 0 || x >= width || y < 0 || y >= height {
			return -1
		}
		return avg[y*width+x]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := avg[y*width+x]
			if v <= cut {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if at(x+dx, y+dy) > v {
						isMax = false
						break
					}
				}
			}
			if isMax {
				coords = append(coords, Coord{Y: y, X: x})
			}
		}
	}

	return &HotPixelMask{Coords: coords}, nil
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Apply corrects each listed hot pixel in f in place: for each channel,
// subtract the central value weighted by bayerKernel from the 3x3
// neighborhood, clip to [0,255], then replace the center with the median
// of the corrected neighborhood.
func (m *HotPixelMask) Apply(f *frame.Frame) {
	for _, c := range m.Coords {
		if c.X < 0 || c.X >= f.Width || c.Y < 0 || c.Y >= f.Height {
			continue
		}
		for ch := 0; ch < f.Channels; ch++ {
			applyOne(f, c.X, c.Y, ch)
		}
	}
}

func applyOne(f *frame.Frame, cx, cy, ch int) {
	idx := func(x, y int) int {
		if x < 0 {
			x = 0
		}
		if x >= f.Width {
			x = f.Width - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= f.Height {
			y = f.Height - 1
		}
		return (y*f.Width+x)*f.Channels + ch
	}

	center := float64(f.Pix[idx(cx, cy)])
	var neighborhood [3][3]float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v := float64(f.Pix[idx(cx+dx, cy+dy)])
			correction := center * bayerKernel[dy+1][dx+1]
			corrected := v - correction
			if corrected < 0 {
				corrected = 0
			}
			if corrected > 255 {
				corrected = 255
			}
			neighborhood[dy+1][dx+1] = corrected
		}
	}

	flat := make([]float64, 0, 9)
	for dy := 0; dy < 3; dy++ {
		for dx := 0; dx < 3; dx++ {
			flat = append(flat, neighborhood[dy][dx])
			x, y := cx+dx-1, cy+dy-1
			if x == cx && y == cy {
				continue
			}
			f.Pix[idx(x, y)] = byte(neighborhood[dy][dx])
		}
	}
	f.Pix[idx(cx, cy)] = byte(median(flat))
}

// LoadHotPixelMask reads a persisted mask from a JSON file.
func LoadHotPixelMask(path string) (*HotPixelMask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hot pixel mask %s: %w", path, err)
	}
	var m HotPixelMask
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing hot pixel mask %s: %w", path, err)
	}
	return &m, nil
}

// Save persists the mask as JSON.
func (m *HotPixelMask) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling hot pixel mask: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
