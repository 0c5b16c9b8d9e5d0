package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// formatProbabilities renders a probability map as a deterministic,
// human-readable summary, sorted by backend key so repeated calls diff
// cleanly in logs.
func formatProbabilities(probs map[string]float64) string {
	keys := make([]string, 0, len(probs))
	for k := range probs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, probs[k]))
	}
	return "probabilities: [" + strings.Join(parts, ", ") + "]"
}
