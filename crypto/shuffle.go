package crypto

// Shuffle performs a deterministic Fisher-Yates shuffle of [0, n) seeded by
// seed, using the LCG for randomness. It produces n-1 swaps in descending
// index order and returns the resulting permutation.
func Shuffle(seed uint64, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	if n < 2 {
		return out
	}
	g := NewLCG(seed)
	for i := n - 1; i > 0; i-- {
		j := int(g.Next() % uint64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
