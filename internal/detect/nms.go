package detect

// ApplyNMS filters detections below scoreThreshold, then greedily suppresses
// any lower-scoring box whose IoU with a kept higher-scoring box exceeds
// iouThreshold. Input order is not assumed to be sorted by score.
func ApplyNMS(dets []Detection, scoreThreshold, iouThreshold float64) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= scoreThreshold {
			kept = append(kept, d)
		}
	}
	sortByScoreDesc(kept)

	result := make([]Detection, 0, len(kept))
	suppressed := make([]bool, len(kept))
	for i := range kept {
		if suppressed[i] {
			continue
		}
		result = append(result, kept[i])
		for j := i + 1; j < len(kept); j++ {
			if suppressed[j] {
				continue
			}
			if iou(kept[i].Box, kept[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return result
}

func sortByScoreDesc(dets []Detection) {
	for i := 1; i < len(dets); i++ {
		for j := i; j > 0 && dets[j].Score > dets[j-1].Score; j-- {
			dets[j], dets[j-1] = dets[j-1], dets[j]
		}
	}
}

// iou computes intersection-over-union of two axis-aligned boxes given as
// (x0, y0, x1, y1).
func iou(a, b [4]float64) float64 {
	x0 := max(a[0], b[0])
	y0 := max(a[1], b[1])
	x1 := min(a[2], b[2])
	y1 := min(a[3], b[3])

	interW := x1 - x0
	interH := y1 - y0
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
