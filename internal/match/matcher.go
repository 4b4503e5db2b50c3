package match

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	gixierrors "github.com/schreiberlab/gixi/internal/errors"
)

// Result is the outcome of matching one image's detected boxes against one
// crystal's simulated peaks: the fraction of simulated intensity accounted
// for by matched peaks, plus the indices of the kept pairs.
type Result struct {
	Metric float64
	SimIdx []int
	ExpIdx []int
	Path   string
}

type simEntry struct {
	path  string
	peaks []Peak
}

// Matcher holds the simulated peak set for every CIF file in a configured
// folder, computed once at construction and reused across every image in
// the run.
type Matcher struct {
	qMax        float64
	maxDistance float64
	sims        map[string]simEntry
}

// NewMatcher parses every *.cif file under cifDir and simulates its
// diffraction peaks up to qMax at wavelength. A CIF file that fails to
// parse is skipped rather than aborting the whole matcher; matching is an
// optional, best-effort enrichment stage, never a fatal-at-init path.
func NewMatcher(cifDir string, qMax, wavelength, maxDistance float64) (*Matcher, error) {
	entries, err := os.ReadDir(cifDir)
	if err != nil {
		return nil, gixierrors.NewMatchingError(fmt.Sprintf("reading CIF directory %s", cifDir), err)
	}

	sims := make(map[string]simEntry)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".cif") {
			continue
		}
		path := filepath.Join(cifDir, e.Name())
		cell, err := ParseCIF(path)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		sims[name] = simEntry{path: path, peaks: SimulatePeaks(cell, qMax, wavelength)}
	}

	return &Matcher{qMax: qMax, maxDistance: maxDistance, sims: sims}, nil
}

// Match extracts experimental peak q-positions from the midpoints of each
// box's x-coordinates (mapped to [0, qMax]), assigns them against every
// loaded crystal's simulated peaks, and reports a Result per crystal.
func (m *Matcher) Match(boxes [][4]float64) map[string]Result {
	if len(m.sims) == 0 {
		return nil
	}

	expQ := make([]float64, len(boxes))
	for i, b := range boxes {
		mid := (b[0] + b[2]) / 2
		expQ[i] = mid * m.qMax
	}

	out := make(map[string]Result, len(m.sims))
	for name, entry := range m.sims {
		simQ := make([]float64, len(entry.peaks))
		var totalIntensity float64
		for i, p := range entry.peaks {
			simQ[i] = p.Q
			totalIntensity += p.Intensity
		}

		assigned := AssignPeaks(expQ, simQ, m.maxDistance)

		var keptIntensity float64
		var simIdx, expIdx []int
		for ei, r := range assigned {
			if !r.Matched {
				continue
			}
			si := nearestIndex(simQ, r.SimQ)
			if si < 0 {
				continue
			}
			keptIntensity += entry.peaks[si].Intensity
			simIdx = append(simIdx, si)
			expIdx = append(expIdx, ei)
		}

		metric := 0.0
		if totalIntensity > 0 {
			metric = keptIntensity / totalIntensity
		}
		out[name] = Result{Metric: metric, SimIdx: simIdx, ExpIdx: expIdx, Path: entry.path}
	}
	return out
}

// nearestIndex returns the index of the value in vals closest to target.
func nearestIndex(vals []float64, target float64) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, v := range vals {
		d := math.Abs(v - target)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
