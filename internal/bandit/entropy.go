package bandit

import "math"

// meanEntropy returns the Shannon entropy (natural log) of the arm means
// alpha/(alpha+beta), normalised to sum to one over arms with positive mean.
// It is 0 when fewer than two arms carry mass.
func meanEntropy(arms map[string]*ArmState) float64 {
	means := make([]float64, 0, len(arms))
	total := 0.0
	for _, s := range arms {
		m := s.Mean()
		if m > 0 {
			means = append(means, m)
			total += m
		}
	}
	if total <= 0 {
		return 0
	}

	h := 0.0
	for _, m := range means {
		p := m / total
		h -= p * math.Log(p)
	}
	return h
}
