// Package loadmodel aggregates per-backend telemetry samples into a
// continuously recomputed probability distribution over backends.
//
// A Model holds three backend-keyed maps (raw samples, load scores L, and
// selection probabilities P) behind a single reader-writer lock, plus a
// process-wide atomic request counter R. Writers are the telemetry ingest
// task only (see internal/telemetry); readers are every strategy.Weighted
// Pick call. Readers take the lock just long enough to copy what they need
// and never hold it across the weighted draw — the model is tolerant of a
// slightly stale probability map by design.
package loadmodel

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one telemetry message describing one backend's current resource
// utilization, already reduced to the fields the aggregation needs.
type Sample struct {
	ServerSocket string
	MemoryBytes  uint64  // absolute.memory_bytes — logging only
	DiskBytesSec float64 // absolute.disk_read_bytes_per_sec — logging only
	LM           float64 // normalized.memory, nominal [0,1]
	LD           float64 // normalized.disk, nominal [0,1]
	T            int64   // timestamp_unix, publisher-assigned
}

type record struct {
	lm, ld float64
	t      int64
}

// Model maintains the per-backend records and the derived load/probability
// maps described in spec §3 and §4.2.
type Model struct {
	mu      sync.RWMutex
	samples map[string]record
	loads   map[string]float64
	probs   map[string]float64

	requests atomic.Uint64

	// now is overridable for deterministic tests; defaults to wall-clock time.
	now func() int64
}

// NewModel returns an empty Model. No backend has a record until its first
// sample arrives.
func NewModel() *Model {
	return &Model{
		samples: make(map[string]record),
		loads:   make(map[string]float64),
		probs:   make(map[string]float64),
		now:     func() int64 { return time.Now().Unix() },
	}
}

// IncRequests atomically increments the process-wide request counter R and
// returns the new value. Called once per strategy.Weighted.Pick invocation.
func (m *Model) IncRequests() uint64 {
	return m.requests.Add(1)
}

// Requests returns the current value of R. Relaxed: a reader may observe
// any value less than or equal to the true count.
func (m *Model) Requests() uint64 {
	return m.requests.Load()
}

// Update records a new sample for sample.ServerSocket, discarding the
// previous LM/LD/T for that backend, then recomputes the aggregation and
// probability maps per spec §4.2. A backend's record is created on first
// sample receipt and persists for the model's lifetime — there is no
// eviction; stale records are dampened via the staleness term below, not
// removed.
func (m *Model) Update(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[s.ServerSocket] = record{lm: s.LM, ld: s.LD, t: s.T}
	m.recomputeLocked()
}

// Probabilities returns a snapshot copy of the current probability map. An
// empty map means no samples have been ingested yet; callers (currently only
// strategy.Weighted) fall back to a uniform distribution over their own
// candidate set in that case.
func (m *Model) Probabilities() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make(map[string]float64, len(m.probs))
	for k, v := range m.probs {
		cp[k] = v
	}
	return cp
}

// recomputeLocked implements the aggregation and probability-update formulas
// of spec §4.2. Must be called with mu held for writing.
func (m *Model) recomputeLocked() {
	n := len(m.samples)
	if n == 0 {
		return
	}

	var sumLM, sumLD float64
	for _, r := range m.samples {
		sumLM += r.lm
		sumLD += r.ld
	}
	tM := sumLM / float64(n)
	tD := sumLD / float64(n)

	cM, cD := 0.5, 0.5
	if denom := tM + tD; denom != 0 {
		cM = tM / denom
		cD = tD / denom
	}

	loads := make(map[string]float64, n)
	var lTot float64
	now := m.now()
	var sumStaleness float64
	for key, r := range m.samples {
		l := cM*r.lm + cD*r.ld
		loads[key] = l
		lTot += l

		staleness := float64(now - r.t)
		if staleness < 0 {
			staleness = 0
		}
		sumStaleness += staleness
	}
	tBar := sumStaleness / float64(n)

	m.loads = loads

	r := float64(m.requests.Load())
	arriveT := r / (tBar * lTot)

	if arriveT <= 0 || math.IsNaN(arriveT) || math.IsInf(arriveT, 0) {
		uniform := 1.0 / float64(n)
		probs := make(map[string]float64, n)
		for key := range m.samples {
			probs[key] = uniform
		}
		m.probs = probs
		return
	}

	probs := make(map[string]float64, n)
	for key, l := range loads {
		p := ((lTot+arriveT)/float64(n) - l) / arriveT
		if math.IsNaN(p) || math.IsInf(p, 0) {
			p = 0
		}
		probs[key] = p
	}
	m.probs = probs
}
