package contrast

import (
	"math"
	"testing"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/frame"
)

func rampImage() frame.Image32 {
	img := frame.NewImage32(1, 10)
	for i := 0; i < 10; i++ {
		img.Data[i] = float32(i)
	}
	return img
}

func TestCorrectDisabledIsIdentity(t *testing.T) {
	cfg := config.ContrastConfig{Disable: true}
	img := rampImage()
	out := Correct(img, cfg)
	for i := range img.Data {
		if out.Data[i] != img.Data[i] {
			t.Errorf("Data[%d] = %v, want %v (identity)", i, out.Data[i], img.Data[i])
		}
	}
}

func TestCorrectOutputInUnitRange(t *testing.T) {
	cfg := config.ContrastConfig{Limit: 2, Coef: 0.5, Log: true}
	out := Correct(rampImage(), cfg)
	for i, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("Data[%d] = %v, out of [0,1]", i, v)
		}
	}
}

// TestCorrectCoefZeroDegeneratesToZero: with coef=0 every pixel entering
// CLAHE is 0, so the equalization degenerates (constant input) and the
// final output is zero everywhere, regardless of the source ramp.
func TestCorrectCoefZeroDegeneratesToZero(t *testing.T) {
	cfg := config.ContrastConfig{Limit: 1, Coef: 0}
	out := Correct(rampImage(), cfg)
	for i, v := range out.Data {
		if v != 0 {
			t.Errorf("Data[%d] = %v, want 0", i, v)
		}
	}
}

// TestCorrectPreservesRampOrdering checks that CLAHE's cumulative-
// distribution mapping is monotonic in the source pixel value, matching
// histogram equalization's order-preserving property.
func TestCorrectPreservesRampOrdering(t *testing.T) {
	cfg := config.ContrastConfig{Limit: 0, Coef: 100}
	out := Correct(rampImage(), cfg)
	for i := 1; i < len(out.Data); i++ {
		if out.Data[i] < out.Data[i-1] {
			t.Fatalf("output not monotonic at %d: %v < %v", i, out.Data[i], out.Data[i-1])
		}
	}
}

func TestLogStepMatchesLog10Formula(t *testing.T) {
	img := rampImage()
	out := logStep(img, 2)
	normed := normalize(img)
	for i, v := range normed.Data {
		want := math.Log10(float64(v)*2 + 1)
		if math.Abs(float64(out.Data[i])-want) > 1e-6 {
			t.Errorf("logStep[%d] = %v, want %v", i, out.Data[i], want)
		}
	}
}

func TestNormalizeConstantImage(t *testing.T) {
	img := frame.NewImage32(2, 2)
	for i := range img.Data {
		img.Data[i] = 5
	}
	out := normalize(img)
	for i, v := range out.Data {
		if v != 0 {
			t.Errorf("Data[%d] = %v, want 0", i, v)
		}
	}
}
