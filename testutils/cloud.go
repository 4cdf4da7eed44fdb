// Package testutils provides synthetic point clouds and file helpers shared by tests.
package testutils

import (
	"math/rand"

	"github.com/golang/geo/r3"
)

// RandomPoints returns n points uniformly distributed in a cube of side scale centered on the
// origin.
func RandomPoints(rng *rand.Rand, n int, scale float64) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{
			X: scale * (rng.Float64() - 0.5),
			Y: scale * (rng.Float64() - 0.5),
			Z: scale * (rng.Float64() - 0.5),
		}
	}
	return pts
}

// NoisyCloud returns n normally distributed points around the origin, numOutliers random slots
// of which are overwritten by points spread uniformly over a cube of side span. The same seed
// always yields the same cloud.
func NoisyCloud(seed int64, n, numOutliers int, span float64) []r3.Vector {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	}
	for i := 0; i < numOutliers; i++ {
		pts[rng.Intn(n)] = r3.Vector{X: span * (rng.Float64() - 0.5), Y: span * (rng.Float64() - 0.5), Z: span * (rng.Float64() - 0.5)}
	}
	return pts
}
