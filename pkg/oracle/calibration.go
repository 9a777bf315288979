package oracle

import "sort"

// FitIsotonic pools-adjacent-violators over (x, y) observation pairs and
// returns the monotone step curve, used by MTS calibration training
// (§4.7) for each outcome and for draw-calibration. x is the raw
// predicted probability, y is the observed frequency (0 or 1, or a
// binned average).
//
// Grounded on the standard PAV algorithm; gonum does not ship an isotonic
// regression routine directly, so this is implemented directly against
// the pack's pattern of hand-rolled fits backed by gonum's summary stats
// (see DESIGN.md).
func FitIsotonic(x, y []float64) IsotonicCurve {
	n := len(x)
	if n == 0 {
		return IsotonicCurve{}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return x[order[i]] < x[order[j]] })

	sortedX := make([]float64, n)
	for i, idx := range order {
		sortedX[i] = x[idx]
	}

	// Pool-adjacent-violators: maintain a stack of blocks, each the
	// weighted mean of a contiguous run; merge the top two whenever the
	// later block's mean would violate monotonicity against the earlier.
	type block struct {
		value, weight float64
		startIdx, endIdx int // indices into sortedX/order
	}
	stack := make([]block, 0, n)
	for i, idx := range order {
		stack = append(stack, block{value: y[idx], weight: 1, startIdx: i, endIdx: i})
		for len(stack) > 1 && stack[len(stack)-2].value > stack[len(stack)-1].value {
			b := stack[len(stack)-1]
			a := stack[len(stack)-2]
			merged := block{
				value:    (a.value*a.weight + b.value*b.weight) / (a.weight + b.weight),
				weight:   a.weight + b.weight,
				startIdx: a.startIdx,
				endIdx:   b.endIdx,
			}
			stack = append(stack[:len(stack)-2], merged)
		}
	}

	curveX := make([]float64, len(stack))
	curveY := make([]float64, len(stack))
	for i, b := range stack {
		curveX[i] = sortedX[b.endIdx] // right edge of the block as the knot
		curveY[i] = b.value
	}
	return IsotonicCurve{X: curveX, Y: curveY}
}
