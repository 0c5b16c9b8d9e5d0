package strategy

import "sync/atomic"

// RoundRobin distributes picks evenly across the candidate set using a
// lock-free atomic counter. The counter monotonically increases (and may
// overflow; modulo arithmetic masks that) — modulo the candidate count
// selects the backend. The returned index is monotone modulo len(candidates)
// only when the candidate list is stable across calls; callers that pass a
// varying candidate set (the L7 forwarder, across retries) lose that
// property by design.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Pick(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	idx := r.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))], true
}

func (r *RoundRobin) DebugSnapshot() string { return "" }
