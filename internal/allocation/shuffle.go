package allocation

import "math/rand/v2"

// Source yields uniform integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// availableNumbers returns [1,total] minus taken, ascending.
func availableNumbers(total int, taken []int) []int {
	used := make(map[int]struct{}, len(taken))
	for _, n := range taken {
		used[n] = struct{}{}
	}
	out := make([]int, 0, total-len(used))
	for n := 1; n <= total; n++ {
		if _, ok := used[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// pickUniform draws k values from pool without replacement using a partial
// Fisher-Yates shuffle. Every k-subset is equally likely. pool is reordered.
func pickUniform(src Source, pool []int, k int) []int {
	n := len(pool)
	if k > n {
		k = n
	}
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([]int, k)
	copy(out, pool[:k])
	return out
}
