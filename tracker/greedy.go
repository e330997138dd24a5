package tracker

// GreedyMatcher implements the spec-mandated association strategy of
// spec.md §4.2 step 3: repeatedly pick the highest-IoU pair in the
// whole matrix; stop once the best remaining pair is below threshold;
// otherwise assign it (if neither side is already used) and zero that
// cell before continuing. This is grounded directly on the teacher's
// MatchDetectionsAndObjects (matching.go), which performs the same
// loop over a minimum-distance matrix; here the loop runs over IoU
// (maximize) instead of distance (minimize).
//
// Tie-breaking is the natural row-major order of an argmax over the
// flattened matrix, making the result deterministic for identical
// input — spec.md §8 "greedy tie-break determinism".
type GreedyMatcher struct{}

// NewGreedyMatcher returns the default Matcher.
func NewGreedyMatcher() *GreedyMatcher {
	return &GreedyMatcher{}
}

// Match implements Matcher.
func (GreedyMatcher) Match(iou [][]float64, threshold float64) (detIdx, trackIdx []int) {
	rows := len(iou)
	if rows == 0 {
		return nil, nil
	}
	cols := len(iou[0])
	if cols == 0 {
		return nil, nil
	}

	// Work on a copy: the caller's matrix must not be mutated.
	m := make([][]float64, rows)
	for i := range iou {
		m[i] = append([]float64(nil), iou[i]...)
	}

	usedDet := make([]bool, rows)
	usedTrack := make([]bool, cols)

	// Repeatedly take the single maximum cell in row-major order,
	// matching the semantics of unraveling argmax(flattened) in the
	// reference implementation.
	for {
		bi, bj, bv := rowMajorArgmax(m)
		if bv < threshold {
			break
		}
		if !usedDet[bi] && !usedTrack[bj] {
			detIdx = append(detIdx, bi)
			trackIdx = append(trackIdx, bj)
			usedDet[bi] = true
			usedTrack[bj] = true
		}
		m[bi][bj] = 0
	}

	return detIdx, trackIdx
}

// rowMajorArgmax returns the row, column, and value of the maximum
// cell in m, preferring the first occurrence in row-major order on
// ties (matching a flattened-array argmax).
func rowMajorArgmax(m [][]float64) (row, col int, val float64) {
	val = m[0][0]
	for i := range m {
		for j := range m[i] {
			if m[i][j] > val {
				val = m[i][j]
				row, col = i, j
			}
		}
	}
	return row, col, val
}
