// Package resample remaps an Image32 through a qspace or polar lookup grid
// using one of three interpolation kernels.
package resample

import (
	"math"

	"github.com/schreiberlab/gixi/internal/frame"
)

// Algorithm selects the interpolation kernel used when remapping.
type Algorithm string

const (
	Bilinear Algorithm = "bilinear"
	Bicubic  Algorithm = "bicubic"
	Lanczos4 Algorithm = "lanczos4"
)

// Grid is anything that exposes a per-output-pixel (row, col) -> source
// (Y, Z) lookup, satisfied by both qspace.Grid and polar.Grid.
type Grid struct {
	Rows, Cols int
	Y, Z       []float64
}

// Remap resamples src at every (Y[i], Z[i]) coordinate in g, producing an
// image of shape (g.Rows, g.Cols). Coordinates that are NaN, or fall
// outside src's bounds, produce a 0 pixel.
func Remap(src frame.Image32, g Grid, algo Algorithm) frame.Image32 {
	out := frame.NewImage32(g.Rows, g.Cols)

	var sample func(frame.Image32, float64, float64) float32
	switch algo {
	case Bicubic:
		sample = sampleBicubic
	case Lanczos4:
		sample = sampleLanczos4
	default:
		sample = sampleBilinear
	}

	for i := 0; i < g.Rows*g.Cols; i++ {
		y, z := g.Y[i], g.Z[i]
		if math.IsNaN(y) || math.IsNaN(z) {
			continue
		}
		out.Data[i] = sample(src, y, z)
	}
	return out
}

// inBounds reports whether the source row/col is a valid sample location.
func inBounds(img frame.Image32, row, col int) bool {
	return row >= 0 && row < img.Rows && col >= 0 && col < img.Cols
}

func at(img frame.Image32, row, col int) float32 {
	if !inBounds(img, row, col) {
		return 0
	}
	return img.At(row, col)
}

// sampleBilinear treats (y, z) as (col, row): y is the detector's horizontal
// pixel coordinate and z its vertical one, as stored in the qspace/polar
// grids' Y and Z buffers.
func sampleBilinear(img frame.Image32, y, z float64) float32 {
	col0 := int(math.Floor(y))
	row0 := int(math.Floor(z))
	fc := y - float64(col0)
	fr := z - float64(row0)

	if !inBounds(img, row0, col0) && !inBounds(img, row0+1, col0+1) {
		return 0
	}

	v00 := at(img, row0, col0)
	v01 := at(img, row0, col0+1)
	v10 := at(img, row0+1, col0)
	v11 := at(img, row0+1, col0+1)

	top := float64(v00)*(1-fc) + float64(v01)*fc
	bottom := float64(v10)*(1-fc) + float64(v11)*fc
	return float32(top*(1-fr) + bottom*fr)
}

// cubicKernel is the Catmull-Rom convolution kernel, a=-0.5.
func cubicKernel(x float64) float64 {
	const a = -0.5
	x = math.Abs(x)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	default:
		return 0
	}
}

func sampleBicubic(img frame.Image32, y, z float64) float32 {
	col0 := int(math.Floor(y))
	row0 := int(math.Floor(z))
	if !inBounds(img, row0, col0) {
		return 0
	}

	fc := y - float64(col0)
	fr := z - float64(row0)

	var sum float64
	for m := -1; m <= 2; m++ {
		wr := cubicKernel(float64(m) - fr)
		for n := -1; n <= 2; n++ {
			wc := cubicKernel(float64(n) - fc)
			sum += wr * wc * float64(at(img, row0+m, col0+n))
		}
	}
	return float32(sum)
}

func sincKernel(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// lanczosKernel is the windowed-sinc kernel with window size a=4.
func lanczosKernel(x float64) float64 {
	const a = 4.0
	if x == 0 {
		return 1
	}
	if math.Abs(x) >= a {
		return 0
	}
	return sincKernel(x) * sincKernel(x/a)
}

func sampleLanczos4(img frame.Image32, y, z float64) float32 {
	col0 := int(math.Floor(y))
	row0 := int(math.Floor(z))
	if !inBounds(img, row0, col0) {
		return 0
	}

	fc := y - float64(col0)
	fr := z - float64(row0)

	var sum, weightSum float64
	for m := -3; m <= 4; m++ {
		wr := lanczosKernel(float64(m) - fr)
		for n := -3; n <= 4; n++ {
			wc := lanczosKernel(float64(n) - fc)
			w := wr * wc
			sum += w * float64(at(img, row0+m, col0+n))
			weightSum += w
		}
	}
	if weightSum == 0 {
		return 0
	}
	return float32(sum / weightSum)
}
