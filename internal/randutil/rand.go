// Package randutil centralises deterministic seeding. Rooms, rounds and
// bot strategies all take a single int64 seed; this is the one place
// that expands it into the two words rand/v2 wants, so reproducing a
// round from its logged seed always works.
package randutil

import rand "math/rand/v2"

// New returns a generator seeded from one int64. The seed is run
// through SplitMix64 so that adjacent seeds (round 1, round 2, ...)
// still yield uncorrelated streams.
func New(seed int64) *rand.Rand {
	s := splitmix(uint64(seed))
	return rand.New(rand.NewPCG(s, splitmix(s)))
}

// Perm4 returns a random permutation of the four table seats.
func Perm4(r *rand.Rand) [4]int {
	p := [4]int{0, 1, 2, 3}
	for i := 3; i > 0; i-- {
		j := r.IntN(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
