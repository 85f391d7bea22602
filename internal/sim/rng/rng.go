// Package rng is the single source of stochasticity for a simulation run.
//
// All draws come from one seeded stream so that two runs with identical seed,
// program and population are bit-identical. Substreams for parallel workers
// are derived from the seed and worker id, never from time or addresses.
package rng

import (
	"math"
	"math/rand"
)

type RNG struct {
	seed int64
	r    *rand.Rand
}

func New(seed int64) *RNG {
	return &RNG{seed: seed, r: rand.New(rand.NewSource(seed))}
}

// Substream derives an independent deterministic stream for a worker id.
func (g *RNG) Substream(id int64) *RNG {
	return New(splitmix(uint64(g.seed) ^ uint64(id)*0x9e3779b97f4a7c15))
}

func splitmix(x uint64) int64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return int64(x ^ (x >> 31))
}

// Uniform draws from [0, 1).
func (g *RNG) Uniform() float64 { return g.r.Float64() }

// UniformRange draws from [low, high).
func (g *RNG) UniformRange(low, high float64) float64 {
	return low + (high-low)*g.r.Float64()
}

// Int draws a uniform integer in [low, high] inclusive.
func (g *RNG) Int(low, high int) int {
	if high <= low {
		return low
	}
	return low + g.r.Intn(high-low+1)
}

// Normal draws from N(mean, stddev).
func (g *RNG) Normal(mean, stddev float64) float64 {
	return mean + stddev*g.r.NormFloat64()
}

// Exponential draws from Exp(1/mean); a non-positive mean returns 0.
func (g *RNG) Exponential(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return mean * g.r.ExpFloat64()
}

// Poisson draws a Poisson variate with the given mean (Knuth's method for
// small means, normal approximation above 30).
func (g *RNG) Poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	if mean > 30 {
		n := int(math.Round(g.Normal(mean, math.Sqrt(mean))))
		if n < 0 {
			return 0
		}
		return n
	}
	l := math.Exp(-mean)
	k := 0
	p := 1.0
	for {
		p *= g.r.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// RoundStochastic rounds x to an integer, rounding the fractional part up
// with probability equal to that fraction.
func (g *RNG) RoundStochastic(x float64) int {
	n := int(x)
	if frac := x - float64(n); frac > 0 && g.r.Float64() < frac {
		n++
	}
	return n
}

// Shuffle permutes n elements via the provided swap function.
func (g *RNG) Shuffle(n int, swap func(i, j int)) {
	g.r.Shuffle(n, swap)
}
