package fusion

// RetrieverResult groups the passages returned by a single back-end for a
// given query.
type RetrieverResult struct {
	// Retriever is the logical back-end name (e.g. "keyword", "semantic").
	Retriever string
	// Passages are in the back-end's own ranking order.
	Passages []string
	// Err is set when the call failed; Passages is then empty.
	Err error
}

// Lists returns the passage lists in input order.
func Lists(inputs []RetrieverResult) [][]string {
	out := make([][]string, len(inputs))
	for i, in := range inputs {
		out[i] = in.Passages
	}
	return out
}
