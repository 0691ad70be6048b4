package analysis

import "pulsegraph/graph"

// degreeTriple holds the three degree variants of one node.
type degreeTriple struct {
	in    float64
	out   float64
	total float64
}

// computeDegrees produces in/out/total degree per node. In count mode a
// degree is the number of incident directed edges; in weighted mode it is
// the sum of their weights. The total is always in + out over the
// directed edge set.
func (e *Engine) computeDegrees(snap *graph.Snapshot) map[string]degreeTriple {
	degrees := make(map[string]degreeTriple, snap.NodeCount())

	for _, id := range snap.NodeIDs {
		var d degreeTriple
		switch e.degreeMode {
		case DegreeWeighted:
			for _, n := range snap.In[id] {
				d.in += n.Weight
			}
			for _, n := range snap.Out[id] {
				d.out += n.Weight
			}
		default:
			d.in = float64(len(snap.In[id]))
			d.out = float64(len(snap.Out[id]))
		}
		d.total = d.in + d.out
		degrees[id] = d
	}
	return degrees
}
