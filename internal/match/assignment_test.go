package match

import "testing"

func TestAssignPeaksExactMatches(t *testing.T) {
	exp := []float64{1.0, 2.0, 3.0}
	sim := []float64{3.0, 1.0, 2.0}

	results := AssignPeaks(exp, sim, 0.01)
	for i, r := range results {
		if !r.Matched {
			t.Fatalf("exp[%d]=%v not matched: %+v", i, exp[i], r)
		}
		if r.Distance > 0.01 {
			t.Errorf("exp[%d]: distance %v too large", i, r.Distance)
		}
	}
}

func TestAssignPeaksRejectsBeyondMaxDistance(t *testing.T) {
	exp := []float64{1.0}
	sim := []float64{5.0}

	results := AssignPeaks(exp, sim, 0.5)
	if results[0].Matched {
		t.Error("expected no match: distance exceeds maxDistance")
	}
}

func TestAssignPeaksEmptyInputs(t *testing.T) {
	if r := AssignPeaks(nil, []float64{1, 2}, 1); len(r) != 0 {
		t.Errorf("len(r) = %d, want 0", len(r))
	}
	r := AssignPeaks([]float64{1, 2}, nil, 1)
	if len(r) != 2 || r[0].Matched || r[1].Matched {
		t.Errorf("r = %+v, want two unmatched entries", r)
	}
}

func TestAssignPeaksUnevenCounts(t *testing.T) {
	exp := []float64{1.0, 2.0, 10.0}
	sim := []float64{1.1, 2.1}

	results := AssignPeaks(exp, sim, 0.5)
	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	if matched != 2 {
		t.Errorf("matched = %d, want 2", matched)
	}
}
