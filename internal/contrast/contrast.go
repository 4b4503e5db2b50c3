// Package contrast implements the intensity correction applied to a
// remapped image before it is handed to the detector: an optional log
// compression (log10(norm(img)*coef + 1)), a clip-limited histogram
// equalization (CLAHE over a single global tile) of norm(img)*coef, and a
// final [0,1] normalization. disable short-circuits to the identity.
//
// The equalization operates on a single global tile rather than the
// locally-adaptive multi-tile variant; with a (1,1) tile grid the two are
// equivalent.
package contrast

import (
	"math"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/frame"
)

const histBins = 256

// Correct applies the contrast pipeline to img according to cfg and returns
// a new Image32. If cfg.Disable is set, img is returned unchanged.
func Correct(img frame.Image32, cfg config.ContrastConfig) frame.Image32 {
	if cfg.Disable {
		return img
	}

	working := img
	if cfg.Log {
		working = logStep(working, cfg.Coef)
	}

	scaled := scaleBy(normalize(working), cfg.Coef)
	equalized := claheEqualize(scaled, cfg.Limit)
	return normalize(equalized)
}

// normalize rescales img linearly so its min maps to 0 and its max to 1.
// A constant image maps to all zeros.
func normalize(img frame.Image32) frame.Image32 {
	out := frame.NewImage32(img.Rows, img.Cols)
	if len(img.Data) == 0 {
		return out
	}

	lo, hi := img.Data[0], img.Data[0]
	for _, v := range img.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range img.Data {
		out.Data[i] = (v - lo) / span
	}
	return out
}

// logStep computes log10(norm(img)*coef + 1). The result is not
// renormalized here; the caller's next norm(img)*coef step does that.
func logStep(img frame.Image32, coef float64) frame.Image32 {
	n := normalize(img)
	out := frame.NewImage32(img.Rows, img.Cols)
	for i, v := range n.Data {
		out.Data[i] = float32(math.Log10(float64(v)*coef + 1))
	}
	return out
}

// scaleBy multiplies every pixel by coef, spreading the normalized image
// over the histogram range the equalization operates on.
func scaleBy(img frame.Image32, coef float64) frame.Image32 {
	out := frame.NewImage32(img.Rows, img.Cols)
	for i, v := range img.Data {
		out.Data[i] = float32(float64(v) * coef)
	}
	return out
}

// claheEqualize performs clip-limited histogram equalization over the
// entire image (a single global tile). Bin edges are derived from img's own
// min/max rather than assuming a [0,1] input, since scaleBy's coef can push
// values well outside that range. limit is expressed as a multiple of the
// mean bin count; bins above it are clipped and the excess redistributed
// uniformly before computing the cumulative distribution, whose value at
// each pixel's bin is the equalized output.
func claheEqualize(img frame.Image32, limit float64) frame.Image32 {
	out := frame.NewImage32(img.Rows, img.Cols)
	n := len(img.Data)
	if n == 0 {
		return out
	}

	lo, hi := img.Data[0], img.Data[0]
	for _, v := range img.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}

	bin := func(v float32) int {
		b := int(float64(v-lo) / float64(span) * float64(histBins-1))
		if b < 0 {
			b = 0
		}
		if b >= histBins {
			b = histBins - 1
		}
		return b
	}

	var hist [histBins]int
	for _, v := range img.Data {
		hist[bin(v)]++
	}

	if limit > 0 {
		clip := int(limit * float64(n) / histBins)
		if clip < 1 {
			clip = 1
		}
		var excess int
		for i := range hist {
			if hist[i] > clip {
				excess += hist[i] - clip
				hist[i] = clip
			}
		}
		redistribute := excess / histBins
		for i := range hist {
			hist[i] += redistribute
		}
	}

	var cdf [histBins]float64
	var running int
	for i, c := range hist {
		running += c
		cdf[i] = float64(running) / float64(n)
	}

	for i, v := range img.Data {
		out.Data[i] = float32(cdf[bin(v)])
	}
	return out
}
