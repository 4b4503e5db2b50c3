package detect

import (
	"context"
	"testing"

	"github.com/schreiberlab/gixi/internal/frame"
	"github.com/schreiberlab/gixi/internal/preprocess"
)

func TestStubDetectorReturnsFixtureForEveryRecord(t *testing.T) {
	d := &StubDetector{Fixed: []Detection{{Box: [4]float64{0, 0, 1, 1}, Score: 0.9}}}
	records := []preprocess.ProcessedRecord{
		{ProcessedImg: frame.NewImage32(2, 2)},
		{ProcessedImg: frame.NewImage32(2, 2)},
	}
	out, err := d.RunBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, dets := range out {
		if len(dets) != 1 || dets[0].Score != 0.9 {
			t.Errorf("dets = %v, want fixture", dets)
		}
	}
}

func TestStubDetectorMutationIsolated(t *testing.T) {
	d := &StubDetector{Fixed: []Detection{{Score: 0.5}}}
	out, _ := d.RunBatch(context.Background(), []preprocess.ProcessedRecord{{}})
	out[0][0].Score = 0.1
	if d.Fixed[0].Score != 0.5 {
		t.Error("mutating returned detections must not affect the fixture")
	}
}

func TestApplyNMSFiltersByScore(t *testing.T) {
	dets := []Detection{
		{Box: [4]float64{0, 0, 1, 1}, Score: 0.9},
		{Box: [4]float64{5, 5, 6, 6}, Score: 0.1},
	}
	out := ApplyNMS(dets, 0.5, 0.5)
	if len(out) != 1 || out[0].Score != 0.9 {
		t.Errorf("out = %v, want only the 0.9-score box", out)
	}
}

func TestApplyNMSSuppressesOverlap(t *testing.T) {
	dets := []Detection{
		{Box: [4]float64{0, 0, 2, 2}, Score: 0.9},
		{Box: [4]float64{0.1, 0.1, 2.1, 2.1}, Score: 0.8},
		{Box: [4]float64{10, 10, 12, 12}, Score: 0.7},
	}
	out := ApplyNMS(dets, 0.0, 0.3)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Score != 0.9 || out[1].Score != 0.7 {
		t.Errorf("out = %v, want [0.9, 0.7]", out)
	}
}

func TestApplyNMSKeepsNonOverlapping(t *testing.T) {
	dets := []Detection{
		{Box: [4]float64{0, 0, 1, 1}, Score: 0.6},
		{Box: [4]float64{2, 2, 3, 3}, Score: 0.5},
	}
	out := ApplyNMS(dets, 0.0, 0.5)
	if len(out) != 2 {
		t.Errorf("len(out) = %d, want 2 (non-overlapping boxes both kept)", len(out))
	}
}
