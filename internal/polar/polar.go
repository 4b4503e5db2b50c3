// Package polar builds the polar-coordinate remap lookup grid used by the
// preprocessor to resample a detector frame into (phi, r) coordinates.
package polar

import (
	"math"

	"github.com/schreiberlab/gixi/internal/config"
)

// Grid holds, for every output pixel of shape (AngularSize, QSize), the
// source detector coordinate (Y, Z) to resample from.
type Grid struct {
	Rows, Cols int // AngularSize, QSize
	Y, Z       []float64
}

// Build computes the (yy, zz) lookup grid once, using the same closed form
// as qspace.Build but sampling the q-grid in polar coordinates:
// q_xy = r*cos(phi), q_z = r*sin(phi).
func Build(cfg config.QSpaceConfig, pcfg config.PolarConfig) Grid {
	rows, cols := pcfg.AngularSize, pcfg.QSize
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

	qMax := math.Hypot(cfg.QxyMax, cfg.QzMax)

	for ai := 0; ai < rows; ai++ {
		phi := float64(ai) / float64(max(rows-1, 1)) * (math.Pi / 2)
		for ri := 0; ri < cols; ri++ {
			r := float64(ri) / float64(max(cols-1, 1)) * qMax

			qxy := r * math.Cos(phi)
			qz := r * math.Sin(phi)
			Qxy := qxy / k
			Qz := qz / k

			norm := d / (1 - (Qxy*Qxy+Qz*Qz)/2)
			zz := (norm*(Qz-sinA) + d*sinA) / cosA
			yySq := norm*norm - zz*zz - d*d

			var yy float64
			if yySq < 0 {
				yy = math.NaN()
			} else {
				yy = math.Sqrt(yySq)
			}

			idx := ai*cols + ri
			g.Z[idx] = zz + cfg.Z0
			g.Y[idx] = yy + cfg.Y0
		}
	}

	return g
}
