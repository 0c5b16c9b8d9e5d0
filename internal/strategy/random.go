package strategy

import "math/rand"

// Random draws a uniformly random candidate on every Pick. It carries no
// state of its own — math/rand's top-level functions are already safe for
// concurrent use.
type Random struct{}

func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Pick(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

func (r *Random) DebugSnapshot() string { return "" }
