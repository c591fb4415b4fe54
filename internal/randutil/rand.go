package randutil

import (
	rand "math/rand/v2"

	"github.com/coder/quartz"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// All call sites derive their two PCG seeds through this helper so that a
// given seed always reproduces the same sequence.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Derive returns an independent stream for the given stream index under a
// base seed. Stream 0 is not the same sequence as New(seed).
func Derive(seed int64, stream uint64) *rand.Rand {
	u := mix(uint64(seed) ^ mix(stream+1))
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Seed returns the explicit seed when set, otherwise one taken from the clock.
func Seed(explicit *int64, clock quartz.Clock) int64 {
	if explicit != nil {
		return *explicit
	}
	return clock.Now().UnixNano()
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
