package analysis

import (
	"sort"
	"sync"
)

// warningSet collects convergence warnings from concurrently running
// metric workers.
type warningSet struct {
	mu       sync.Mutex
	warnings []Warning
}

func newWarningSet() *warningSet {
	return &warningSet{}
}

func (s *warningSet) add(w *Warning) {
	if w == nil {
		return
	}
	s.mu.Lock()
	s.warnings = append(s.warnings, *w)
	s.mu.Unlock()
}

// all returns the collected warnings sorted by metric name so result
// contents do not depend on goroutine scheduling.
func (s *warningSet) all() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]Warning, len(s.warnings))
	copy(sorted, s.warnings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Metric < sorted[j].Metric })
	return sorted
}
