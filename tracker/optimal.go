package tracker

import "github.com/trackwatch/railwatch/internal/scipy"

// OptimalMatcher is an alternate, non-default Matcher that solves the
// assignment problem optimally instead of greedily, using the
// teacher's internal/scipy Hungarian-algorithm port
// (github.com/arthurkushman/go-hungarian underneath). spec.md §9 Design
// Notes flags greedy-vs-Hungorian as an open algorithmic upgrade; this
// type makes that upgrade available without changing the spec-mandated
// default (GreedyMatcher) that the §8 testable properties are written
// against.
type OptimalMatcher struct{}

// NewOptimalMatcher returns the Hungarian-assignment Matcher.
func NewOptimalMatcher() *OptimalMatcher {
	return &OptimalMatcher{}
}

// Match implements Matcher by converting the IoU matrix to a cost
// matrix (cost = 1 - iou) and solving linear sum assignment, rejecting
// assignments whose cost exceeds 1-threshold (equivalently, whose IoU
// is below threshold).
func (OptimalMatcher) Match(iou [][]float64, threshold float64) (detIdx, trackIdx []int) {
	rows := len(iou)
	if rows == 0 || len(iou[0]) == 0 {
		return nil, nil
	}

	cost := make([][]float64, rows)
	for i, row := range iou {
		cost[i] = make([]float64, len(row))
		for j, v := range row {
			cost[i][j] = 1 - v
		}
	}

	maxCost := 1 - threshold
	assignments, _, _ := scipy.LinearSumAssignment(cost, maxCost)
	for _, a := range assignments {
		detIdx = append(detIdx, a.RowIdx)
		trackIdx = append(trackIdx, a.ColIdx)
	}
	return detIdx, trackIdx
}
