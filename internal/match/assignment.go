package match

import "math"

// MatchResult is the outcome of assigning one experimental peak to a
// simulated peak (or leaving it unmatched).
type MatchResult struct {
	ExpQ     float64
	SimQ     float64
	Matched  bool
	Distance float64
}

// AssignPeaks solves a minimum-cost bipartite matching between experimental
// peak positions (exp) and simulated peak positions (sim) using the
// Hungarian algorithm over the |q_sim - q_exp| cost matrix, then rejects
// any pairing whose distance exceeds maxDistance.
func AssignPeaks(exp, sim []float64, maxDistance float64) []MatchResult {
	results := make([]MatchResult, len(exp))
	for i, q := range exp {
		results[i] = MatchResult{ExpQ: q}
	}
	if len(exp) == 0 || len(sim) == 0 {
		return results
	}

	n := len(exp)
	m := len(sim)
	size := n
	if m > size {
		size = m
	}

	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
		for j := range cost[i] {
			switch {
			case i < n && j < m:
				cost[i][j] = math.Abs(exp[i] - sim[j])
			default:
				cost[i][j] = 0 // padding rows/cols for a non-square matrix
			}
		}
	}

	assignment := hungarian(cost)

	for i := 0; i < n; i++ {
		j := assignment[i]
		if j < 0 || j >= m {
			continue
		}
		d := math.Abs(exp[i] - sim[j])
		if d <= maxDistance {
			results[i] = MatchResult{ExpQ: exp[i], SimQ: sim[j], Matched: true, Distance: d}
		}
	}
	return results
}

// hungarian solves the square assignment problem on cost, returning, for
// each row, the assigned column index. Implementation follows the standard
// Kuhn-Munkres formulation with row/column potentials, O(n^3) for an n x n
// matrix.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row assigned to column j (1-indexed), 0 = none
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minV := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := 0; j <= n; j++ {
			minV[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minV[j] {
					minV[j] = cur
					way[j] = j0
				}
				if minV[j] < delta {
					delta = minV[j]
					j1 = j
				}
			}

			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minV[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowToCol := make([]int, n)
	for i := range rowToCol {
		rowToCol[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			rowToCol[p[j]-1] = j - 1
		}
	}
	return rowToCol
}
