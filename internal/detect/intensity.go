package detect

import (
	"math"

	"github.com/schreiberlab/gixi/internal/frame"
)

// IntensityForBox sums polarImg's pixels inside the rounded pixel footprint
// of a normalized box (x0,y0,x1,y1): x spans columns (q_size), y spans rows
// (angular_size), the lower corner is floored and the upper corner ceiled.
// Intensities are taken from the raw polar image rather than the
// contrast-corrected one, so they stay comparable across contrast settings.
func IntensityForBox(polarImg frame.Image32, box [4]float64) float64 {
	cols, rows := polarImg.Cols, polarImg.Rows
	if cols == 0 || rows == 0 {
		return 0
	}

	x0 := int(math.Floor(box[0] * float64(cols)))
	y0 := int(math.Floor(box[1] * float64(rows)))
	x1 := int(math.Ceil(box[2] * float64(cols)))
	y1 := int(math.Ceil(box[3] * float64(rows)))

	x0 = clampInt(x0, 0, cols)
	x1 = clampInt(x1, 0, cols)
	y0 = clampInt(y0, 0, rows)
	y1 = clampInt(y1, 0, rows)

	var sum float64
	for r := y0; r < y1; r++ {
		for c := x0; c < x1; c++ {
			sum += float64(polarImg.At(r, c))
		}
	}
	return sum
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
