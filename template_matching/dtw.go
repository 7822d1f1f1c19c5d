// Package template_matching aligns feature sequences with dynamic time
// warping.
package template_matching

import (
	"math"

	"voice-recliner/feature_extraction"
)

// MatchScore is a length-normalised alignment cost. Lower is more similar;
// zero means identical sequences.
type MatchScore float64

// Distance aligns query onto reference. Local cost is the Euclidean distance
// between feature vectors; steps are (1,1), (1,0) and (0,1) with unit weight.
// The accumulated cost of the optimal path is divided by the number of cells
// on that path, so sequences of different lengths compare on the same scale.
// Empty input scores +Inf.
func Distance(query, reference feature_extraction.Sequence) MatchScore {
	n, m := len(query), len(reference)
	if n == 0 || m == 0 {
		return MatchScore(math.Inf(1))
	}

	prevCost := make([]float64, m)
	prevLen := make([]int, m)
	curCost := make([]float64, m)
	curLen := make([]int, m)

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			local := euclidean(query[i], reference[j])

			switch {
			case i == 0 && j == 0:
				curCost[j], curLen[j] = local, 1
			case i == 0:
				curCost[j], curLen[j] = curCost[j-1]+local, curLen[j-1]+1
			case j == 0:
				curCost[j], curLen[j] = prevCost[j]+local, prevLen[j]+1
			default:
				// ties prefer the diagonal, then the shorter path
				cost, length := prevCost[j-1], prevLen[j-1]
				if prevCost[j] < cost || (prevCost[j] == cost && prevLen[j] < length) {
					cost, length = prevCost[j], prevLen[j]
				}
				if curCost[j-1] < cost || (curCost[j-1] == cost && curLen[j-1] < length) {
					cost, length = curCost[j-1], curLen[j-1]
				}
				curCost[j], curLen[j] = cost+local, length+1
			}
		}

		prevCost, curCost = curCost, prevCost
		prevLen, curLen = curLen, prevLen
	}

	return MatchScore(prevCost[m-1] / float64(prevLen[m-1]))
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum float64
	for k := 0; k < n; k++ {
		d := a[k] - b[k]
		sum += d * d
	}

	// a missing dimension counts as zero
	for k := n; k < len(a); k++ {
		sum += a[k] * a[k]
	}
	for k := n; k < len(b); k++ {
		sum += b[k] * b[k]
	}

	return math.Sqrt(sum)
}
