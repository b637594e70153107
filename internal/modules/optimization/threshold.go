package optimization

import "math"

const thresholdTol = 1e-9

// ApplyThreshold drops long-only weights below threshold and redistributes in one
// deterministic pass: survivors are scaled proportionally to sum to one, then any
// survivor pushed past its upper bound is capped and the excess is water-filled
// across the uncapped survivors. The second result is false when thresholding was
// not applied because the filtered vector would leave the feasible set; the input
// weights are returned unchanged in that case.
func ApplyThreshold(w []float64, threshold float64, fs *feasibleSet) ([]float64, bool) {
	if threshold <= 0 {
		return w, false
	}

	out := make([]float64, len(w))
	var survivors []int
	var mass float64
	dropped := false
	for i, v := range w {
		if v < 0 {
			return w, false
		}
		if v >= threshold || fs.lo[i] > 0 {
			out[i] = v
			survivors = append(survivors, i)
			mass += v
		} else if v > 0 {
			dropped = true
		}
	}
	if !dropped {
		return w, false
	}
	if len(survivors) == 0 || mass <= 0 {
		return w, false
	}

	for _, i := range survivors {
		out[i] /= mass
	}

	capped := make(map[int]bool)
	for round := 0; round < len(survivors); round++ {
		var excess float64
		for _, i := range survivors {
			if !capped[i] && out[i] > fs.hi[i]+thresholdTol {
				excess += out[i] - fs.hi[i]
				out[i] = fs.hi[i]
				capped[i] = true
			}
		}
		if excess <= thresholdTol {
			break
		}
		var free float64
		for _, i := range survivors {
			if !capped[i] {
				free += out[i]
			}
		}
		if free <= 0 {
			return w, false
		}
		for _, i := range survivors {
			if !capped[i] {
				out[i] += excess * out[i] / free
			}
		}
	}

	if !fs.contains(out, 1e-8) {
		return w, false
	}

	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum-1) > thresholdTol {
		return w, false
	}
	return out, true
}
