// Package nprand reproduces the Numpy random number generator, which itself is based on the C
// library RandomKit, which is based on the original Mersenne Twister code. Federated simulations
// lean on it so that client sampling and synthetic data are reproducible across runs and across
// checkpoint restores, and so that the generator state can be serialized alongside server state.
package nprand

import (
	"fmt"
	"math"
)

const (
	stateLen  int    = 624
	maxUint32 uint32 = 0xffffffff
	// Magic Mersenne Twister constants
	mtN       int    = 624
	mtM       int    = 397
	matrixA   uint32 = 0x9908b0df
	upperMask uint32 = 0x80000000
	lowerMask uint32 = 0x7fffffff
)

// State is the state of the random number generator. All fields are exported so a State can be
// serialized into checkpoints and restored exactly.
type State struct {
	Key [stateLen]uint32 `json:"key"`
	Pos int              `json:"pos"`

	// Gauss caches the second variate of the Box-Muller transform.
	Gauss    float64 `json:"gauss"`
	HasGauss bool    `json:"has_gauss"`
}

// New creates a new seeded RNG state.
func New(seed uint32) *State {
	state := State{}
	state.Seed(seed)
	return &state
}

// Seed initializes the RNG state.
func (state *State) Seed(seed uint32) {
	for pos := 0; pos < stateLen; pos++ {
		state.Key[pos] = seed
		seed = (uint32(1812433253)*(seed^(seed>>uint32(30))) + uint32(pos) + 1)
	}
	state.Pos = stateLen
	state.Gauss = 0
	state.HasGauss = false
}

// Bits32 generates 32 bits of randomness.
func (state *State) Bits32() uint32 {
	var y uint32
	if state.Pos == stateLen {
		i := 0
		for ; i < mtN-mtM; i++ {
			y = (state.Key[i] & upperMask) | (state.Key[i+1] & lowerMask)
			state.Key[i] = state.Key[i+mtM] ^ (y >> 1) ^ (-(y & 1) & matrixA)
		}
		for ; i < mtN-1; i++ {
			y = (state.Key[i] & upperMask) | (state.Key[i+1] & lowerMask)
			state.Key[i] = state.Key[i+(mtM-mtN)] ^ (y >> 1) ^ (-(y & 1) & matrixA)
		}
		y = (state.Key[mtN-1] & upperMask) | (state.Key[0] & lowerMask)
		state.Key[mtN-1] = state.Key[mtM-1] ^ (y >> 1) ^ (-(y & 1) & matrixA)

		state.Pos = 0
	}
	y = state.Key[state.Pos]
	state.Pos++

	// Tempering
	y ^= y >> 11
	y ^= (y << 7) & uint32(0x9d2c5680)
	y ^= (y << 15) & uint32(0xefc60000)
	y ^= y >> 18

	return y
}

// Bits64 generates 64 bits of randomness.
func (state *State) Bits64() uint64 {
	upper := uint64(state.Bits32()) << 32
	lower := uint64(state.Bits32())
	return upper | lower
}

// bitsLimit is an internal utility function to generate bits of randomness in [0, limit].
func (state *State) bitsLimit(limit uint64) uint64 {
	if limit == 0 {
		return 0
	}

	// Generate random bits, zero out bits above the limit using a mask, and repeat until the
	// result is at or below the limit.
	mask := limit
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	mask |= mask >> 32

	if limit <= uint64(maxUint32) {
		for {
			if val := uint64(state.Bits32()) & mask; val <= limit {
				return val
			}
		}
	}
	for {
		if val := state.Bits64() & mask; val <= limit {
			return val
		}
	}
}

// Intn generates a random int in [0, n). It panics if n < 0.
func (state *State) Intn(n int) int {
	if n < 0 {
		panic(fmt.Sprintf("nprand Intn: n %v < 0", n))
	}
	return int(state.bitsLimit(uint64(n) - 1))
}

// Int64n generates a random int64 in [0, n). It panics if n < 0.
func (state *State) Int64n(n int64) int64 {
	if n < 0 {
		panic(fmt.Sprintf("nprand Int64n: n %v < 0", n))
	}
	return int64(state.bitsLimit(uint64(n) - 1))
}

// UnitInterval generates a random float64 in [0,1).
func (state *State) UnitInterval() float64 {
	a := float64(state.Bits32() >> 5)
	b := float64(state.Bits32() >> 6)
	return (a*(1<<26) + b) / (1 << 53)
}

// Uniform generates a random float64 uniformly distributed in [low, high). It panics if
// high <= low.
func (state *State) Uniform(low, high float64) float64 {
	if high <= low {
		panic(fmt.Sprintf("nprand Uniform: high %v <= low %v", high, low))
	}
	return low + (high-low)*state.UnitInterval()
}

// Gaussian generates a standard normal variate via the polar Box-Muller method, matching the
// RandomKit gauss implementation including its caching of the second variate.
func (state *State) Gaussian() float64 {
	if state.HasGauss {
		state.HasGauss = false
		g := state.Gauss
		state.Gauss = 0
		return g
	}
	var f, x1, x2, r2 float64
	for {
		x1 = 2.0*state.UnitInterval() - 1.0
		x2 = 2.0*state.UnitInterval() - 1.0
		r2 = x1*x1 + x2*x2
		if r2 < 1.0 && r2 != 0.0 {
			break
		}
	}
	f = math.Sqrt(-2.0 * math.Log(r2) / r2)
	state.Gauss = f * x1
	state.HasGauss = true
	return f * x2
}

// Perm returns a random permutation of [0, n), in the style of rand.Perm.
func (state *State) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		j := state.Intn(i + 1)
		p[i] = p[j]
		p[j] = i
	}
	return p
}

// Shuffle pseudo-randomizes the order of n elements using the provided swap function.
func (state *State) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := state.Intn(i + 1)
		swap(i, j)
	}
}
