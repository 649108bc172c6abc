package param

import "math/bits"

// rollCall is bitset of received parameter indices.
type rollCall []uint64

func (r *rollCall) set(i int) {
	w := i / 64
	for len(*r) <= w {
		*r = append(*r, 0)
	}
	(*r)[w] |= 1 << uint(i%64)
}

func (r rollCall) get(i int) bool {
	w := i / 64
	if w >= len(r) {
		return false
	}
	return r[w]&(1<<uint(i%64)) != 0
}

func (r rollCall) count() int {
	n := 0
	for _, w := range r {
		n += bits.OnesCount64(w)
	}
	return n
}

func (r *rollCall) reset() { *r = (*r)[:0] }

// missing returns indices in [0,n) not set.
func (r rollCall) missing(n int) []int {
	var ms []int
	for i := 0; i < n; i++ {
		if !r.get(i) {
			ms = append(ms, i)
		}
	}
	return ms
}
