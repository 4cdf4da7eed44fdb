package testutils

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestRandomPoints(t *testing.T) {
	pts := RandomPoints(rand.New(rand.NewSource(1)), 500, 4)
	test.That(t, len(pts), test.ShouldEqual, 500)
	for _, p := range pts {
		test.That(t, math.Abs(p.X), test.ShouldBeLessThanOrEqualTo, 2)
		test.That(t, math.Abs(p.Y), test.ShouldBeLessThanOrEqualTo, 2)
		test.That(t, math.Abs(p.Z), test.ShouldBeLessThanOrEqualTo, 2)
	}
}

func TestNoisyCloud(t *testing.T) {
	a := NoisyCloud(3, 1000, 50, 40)
	test.That(t, len(a), test.ShouldEqual, 1000)
	test.That(t, NoisyCloud(3, 1000, 50, 40), test.ShouldResemble, a)
	test.That(t, NoisyCloud(4, 1000, 50, 40), test.ShouldNotResemble, a)

	for _, p := range NoisyCloud(5, 100, 100, 2) {
		test.That(t, math.Abs(p.X), test.ShouldBeLessThanOrEqualTo, 1)
	}
}
