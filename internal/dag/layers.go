package dag

// Layers partitions the graph into execution layers by repeated Kahn peeling.
// Layer 0 holds all zero-in-degree steps; layer k+1 holds steps whose parents
// all sit in layers <= k. Steps within one layer share no dependency relation
// and may run concurrently; cross-layer order must be respected.
//
// The graph must already have passed Validate.
func Layers(g *Graph) [][]string {
	in := g.inDegrees()

	current := make([]string, 0, len(in))
	for _, id := range g.order {
		if in[id] == 0 {
			current = append(current, id)
		}
	}

	var layers [][]string
	for len(current) > 0 {
		layers = append(layers, current)
		var next []string
		for _, id := range current {
			for _, child := range g.children[id] {
				in[child]--
				if in[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return layers
}
