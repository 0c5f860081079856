package fusion

// Interleave merges ranked lists round-robin: rank 0 of every list in order,
// then rank 1, and so on. A passage already merged (exact match) is skipped,
// so the result is a deterministic function of the input order.
func Interleave(lists [][]string) []string {
	maxItems, total := 0, 0
	for _, l := range lists {
		if len(l) > maxItems {
			maxItems = len(l)
		}
		total += len(l)
	}

	out := make([]string, 0, total)
	seen := make(map[string]struct{}, total)
	for i := 0; i < maxItems; i++ {
		for _, l := range lists {
			if i >= len(l) {
				continue
			}
			if _, dup := seen[l[i]]; dup {
				continue
			}
			seen[l[i]] = struct{}{}
			out = append(out, l[i])
		}
	}
	return out
}
