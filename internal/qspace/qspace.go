// Package qspace builds the reciprocal-space remap lookup grid used by the
// preprocessor to resample a detector frame into (q_xy, q_z) coordinates.
package qspace

import (
	"math"

	"github.com/schreiberlab/gixi/internal/config"
)

// Grid holds, for every output pixel of shape (QzNum, QxyNum), the source
// detector coordinate (Y, Z) to resample from. NaN marks an output pixel
// with no valid source (negative radicand in the grid derivation).
type Grid struct {
	Rows, Cols int // QzNum, QxyNum
	Y, Z       []float64
}

// Build computes the (yy, zz) lookup grid once for the given geometry, per
// the reciprocal-space derivation: normalized q-components, sample-detector
// distance in pixels, incidence angle, then the yy/zz closed form.
func Build(cfg config.QSpaceConfig) Grid {
	rows, cols := cfg.QzNum, cfg.QxyNum
	g := Grid{
		Rows: rows,
		Cols: cols,
		Y:    make([]float64, rows*cols),
		Z:    make([]float64, rows*cols),
	}

	k := 2 * math.Pi / cfg.Wavelength
	d := cfg.Distance / cfg.PixelSize
	alpha := math.Pi * cfg.IncidenceAngle / 180
	sinA, cosA := math.Sin(alpha), math.Cos(alpha)

	for zi := 0; zi < rows; zi++ {
		qz := float64(zi) / float64(max(rows-1, 1)) * cfg.QzMax
		Qz := qz / k
		for xi := 0; xi < cols; xi++ {
			qxy := float64(xi) / float64(max(cols-1, 1)) * cfg.QxyMax
			Qxy := qxy / k

			norm := d / (1 - (Qxy*Qxy+Qz*Qz)/2)
			zz := (norm*(Qz-sinA) + d*sinA) / cosA
			yySq := norm*norm - zz*zz - d*d

			var yy float64
			if yySq < 0 {
				yy = math.NaN()
			} else {
				yy = math.Sqrt(yySq)
			}

			idx := zi*cols + xi
			g.Z[idx] = zz + cfg.Z0
			g.Y[idx] = yy + cfg.Y0
		}
	}

	return g
}
