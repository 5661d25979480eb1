package montecarlo

import "sort"

// Result holds the output of one Simulate call. It is ephemeral: built fresh
// per call, never shared or mutated afterwards.
type Result struct {
	// ST are the simulated terminal prices, one per trajectory.
	ST []float64
	// S0 is the starting price the trajectories grew from.
	S0 float64
	// Periods is the simulated horizon in bar periods.
	Periods int
	// Paths holds per-step prices when KeepPaths was set, else nil.
	Paths [][]float64
	// ReplacementFallback reports that the bounded-reuse pool was too small
	// for the horizon and sampling fell back to full replacement.
	ReplacementFallback bool
}

// ProbabilityAbove returns the fraction of terminal prices at or above target.
func (r *Result) ProbabilityAbove(target float64) float64 {
	if len(r.ST) == 0 {
		return 0
	}
	count := 0
	for _, s := range r.ST {
		if s >= target {
			count++
		}
	}
	return float64(count) / float64(len(r.ST))
}

// ProbabilityBelow returns the fraction of terminal prices at or below target.
func (r *Result) ProbabilityBelow(target float64) float64 {
	if len(r.ST) == 0 {
		return 0
	}
	count := 0
	for _, s := range r.ST {
		if s <= target {
			count++
		}
	}
	return float64(count) / float64(len(r.ST))
}

// ProbabilityTouch returns the fraction of paths whose running maximum ever
// reaches target. Without retained paths it degrades to ProbabilityAbove.
func (r *Result) ProbabilityTouch(target float64) float64 {
	if r.Paths == nil {
		return r.ProbabilityAbove(target)
	}
	count := 0
	for _, path := range r.Paths {
		for _, p := range path {
			if p >= target {
				count++
				break
			}
		}
	}
	return float64(count) / float64(len(r.Paths))
}

// Percentiles returns the requested percentiles (0-100) of the terminal
// price distribution, linearly interpolated.
func (r *Result) Percentiles(percentiles []float64) map[float64]float64 {
	out := make(map[float64]float64, len(percentiles))
	if len(r.ST) == 0 {
		return out
	}

	sorted := make([]float64, len(r.ST))
	copy(sorted, r.ST)
	sort.Float64s(sorted)

	for _, p := range percentiles {
		out[p] = percentile(sorted, p)
	}
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
