// Package strategy implements pluggable backend-selection algorithms.
// All pickers are safe for concurrent use and must never block on I/O —
// Pick is called on the request hot path.
package strategy

import "fmt"

// Picker selects a backend from a non-empty candidate set. Pick returns
// ("", false) when candidates is empty. DebugSnapshot returns a short
// human-readable summary of internal weighting state, or "" when the
// strategy has none to report.
type Picker interface {
	Pick(candidates []string) (string, bool)
	DebugSnapshot() string
}

// New constructs the Picker named by name. Valid names: "round_robin" (also
// the empty string), "random", "weighted". The weighted strategy draws from
// a WeightSource; callers of any other name may pass nil.
func New(name string, weights WeightSource) (Picker, error) {
	switch name {
	case "round_robin", "":
		return NewRoundRobin(), nil
	case "random":
		return NewRandom(), nil
	case "weighted":
		if weights == nil {
			return nil, fmt.Errorf("strategy: weighted strategy requires a WeightSource")
		}
		return NewWeighted(weights), nil
	default:
		return nil, fmt.Errorf("strategy: unknown algorithm %q", name)
	}
}
