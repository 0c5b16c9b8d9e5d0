package strategy

import "math/rand"

// WeightSource supplies the inputs strategy.Weighted needs: a process-wide
// request counter to increment on every pick, and a snapshot of the current
// per-backend selection probabilities. *loadmodel.Model satisfies this
// interface; strategy does not import loadmodel, which keeps the selection
// side independent of the telemetry-ingest side.
type WeightSource interface {
	IncRequests() uint64
	Probabilities() map[string]float64
}

// Weighted implements the telemetry-driven weighted strategy of spec §4.2:
// a weighted random draw over the probability map maintained by a
// WeightSource, restricted to the caller's candidate set. Selection is
// stateless between calls apart from the shared WeightSource.
type Weighted struct {
	weights WeightSource
}

func NewWeighted(weights WeightSource) *Weighted {
	return &Weighted{weights: weights}
}

func (w *Weighted) Pick(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	w.weights.IncRequests()
	probs := w.weights.Probabilities()

	if len(probs) == 0 {
		// No samples ingested yet — degrade to uniform over the candidates.
		uniform := 1.0 / float64(len(candidates))
		probs = make(map[string]float64, len(candidates))
		for _, c := range candidates {
			probs[c] = uniform
		}
	}

	weightVec := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		wt := probs[c] // 0 if c is unknown to the map
		if wt < 0 {
			wt = 0
		}
		weightVec[i] = wt
		total += wt
	}

	if total <= 0 {
		return candidates[rand.Intn(len(candidates))], true
	}

	u := rand.Float64() * total
	cumulative := 0.0
	for i, wt := range weightVec {
		cumulative += wt
		if u < cumulative {
			return candidates[i], true
		}
	}
	// Floating-point drift: the scan completed without crossing u. Fall back
	// to the last candidate rather than returning nothing.
	return candidates[len(candidates)-1], true
}

func (w *Weighted) DebugSnapshot() string {
	probs := w.weights.Probabilities()
	if len(probs) == 0 {
		return "probabilities: <empty>"
	}
	return formatProbabilities(probs)
}
