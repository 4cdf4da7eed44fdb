package octree

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"golang.org/x/exp/slices"

	"go.viam.com/pcfilter/testutils"
)

// bruteForceKNearest is the reference the index is checked against.
func bruteForceKNearest(pts []r3.Vector, query r3.Vector, k int, radius float64) []Neighbor {
	if k <= 0 || math.IsNaN(radius) || radius <= 0 {
		return nil
	}
	sqrRadius := radius * radius
	var all []Neighbor
	for i, p := range pts {
		if d := sqrDist(query, p); d > 0 && d < sqrRadius {
			all = append(all, Neighbor{ID: int64(i), Point: p, SqrDist: d})
		}
	}
	slices.SortFunc(all, compareNeighbors)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func neighborIDs(ns []Neighbor) []int64 {
	ids := make([]int64, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestKNearestExhaustive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, n := range []int{2, 3, 40, 150} {
		pts := testutils.RandomPoints(rng, n, 20)
		idx := buildIndex(t, pts)
		for i, q := range pts {
			got := idx.KNearest(q, n-1, math.Inf(1))
			test.That(t, len(got), test.ShouldEqual, n-1)
			for j := 1; j < len(got); j++ {
				test.That(t, got[j].SqrDist, test.ShouldBeGreaterThanOrEqualTo, got[j-1].SqrDist)
			}
			for _, nb := range got {
				test.That(t, nb.ID, test.ShouldNotEqual, int64(i))
				test.That(t, nb.Point, test.ShouldResemble, pts[nb.ID])
			}
			test.That(t, got, test.ShouldResemble, bruteForceKNearest(pts, q, n-1, math.Inf(1)))
		}
	}
}

func TestKNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pts := testutils.RandomPoints(rng, 3000, 100)
	idx := buildIndex(t, pts)

	for i := 0; i < 500; i++ {
		var q r3.Vector
		if i%2 == 0 {
			q = pts[rng.Intn(len(pts))]
		} else {
			q = testutils.RandomPoints(rng, 1, 120)[0]
		}
		k := 1 + rng.Intn(40)
		radius := math.Inf(1)
		if i%3 != 0 {
			radius = 1 + 20*rng.Float64()
		}

		got := idx.KNearest(q, k, radius)
		want := bruteForceKNearest(pts, q, k, radius)
		test.That(t, neighborIDs(got), test.ShouldResemble, neighborIDs(want))
		for _, nb := range got {
			test.That(t, nb.SqrDist, test.ShouldBeLessThan, radius*radius)
		}
	}
}

func TestKNearestGrid(t *testing.T) {
	// A unit grid has many equidistant neighbors. The counts within a radius are exact.
	var pts []r3.Vector
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			for z := 0; z < 10; z++ {
				pts = append(pts, r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}
	idx := buildIndex(t, pts)
	center := r3.Vector{X: 5, Y: 5, Z: 5}

	test.That(t, len(idx.KNearest(center, 100, 1.01)), test.ShouldEqual, 6)
	test.That(t, len(idx.KNearest(center, 100, 1.5)), test.ShouldEqual, 18)
	test.That(t, len(idx.KNearest(center, 100, 1.8)), test.ShouldEqual, 26)
	// The radius bound is strict.
	test.That(t, len(idx.KNearest(center, 100, 1)), test.ShouldEqual, 0)

	got := idx.KNearest(center, 6, math.Inf(1))
	test.That(t, len(got), test.ShouldEqual, 6)
	for _, nb := range got {
		test.That(t, nb.SqrDist, test.ShouldEqual, 1.)
	}
	// Equal distances come back in ID order.
	test.That(t, neighborIDs(got), test.ShouldResemble, []int64{455, 545, 554, 556, 565, 655})

	corner := idx.KNearest(r3.Vector{}, 3, math.Inf(1))
	test.That(t, neighborIDs(corner), test.ShouldResemble, []int64{1, 10, 100})
}

func TestKNearestBoundedInsert(t *testing.T) {
	s := knnSearch{k: 3, sqrRadius: math.Inf(1), result: make([]Neighbor, 0, 3)}
	for _, n := range []Neighbor{
		{ID: 7, SqrDist: 4},
		{ID: 2, SqrDist: 1},
		{ID: 9, SqrDist: 2},
	} {
		s.insert(n)
	}
	test.That(t, neighborIDs(s.result), test.ShouldResemble, []int64{2, 9, 7})
	test.That(t, s.sqrRadius, test.ShouldEqual, 4.)

	// A full buffer drops its farthest entry and tightens the radius.
	s.insert(Neighbor{ID: 5, SqrDist: 2})
	test.That(t, neighborIDs(s.result), test.ShouldResemble, []int64{2, 5, 9})
	test.That(t, s.sqrRadius, test.ShouldEqual, 2.)

	s.insert(Neighbor{ID: 1, SqrDist: 2})
	test.That(t, neighborIDs(s.result), test.ShouldResemble, []int64{2, 1, 5})
	test.That(t, cap(s.result), test.ShouldEqual, 3)
}

func TestKNearestInvalidArguments(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pts := testutils.RandomPoints(rng, 100, 1)
	idx := buildIndex(t, pts)

	test.That(t, idx.KNearest(pts[0], 0, 1), test.ShouldBeEmpty)
	test.That(t, idx.KNearest(pts[0], -3, 1), test.ShouldBeEmpty)
	test.That(t, idx.KNearest(pts[0], 5, 0), test.ShouldBeEmpty)
	test.That(t, idx.KNearest(pts[0], 5, -1), test.ShouldBeEmpty)
	test.That(t, idx.KNearest(pts[0], 5, math.NaN()), test.ShouldBeEmpty)

	// k larger than the cloud returns every other point.
	test.That(t, len(idx.KNearest(pts[0], 1000, math.Inf(1))), test.ShouldEqual, 99)
}

func TestKNearestConcurrent(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	pts := testutils.RandomPoints(rng, 2000, 10)
	idx := buildIndex(t, pts)

	want := make([][]Neighbor, 64)
	for i := range want {
		want[i] = idx.KNearest(pts[i], 8, math.Inf(1))
	}

	var wg sync.WaitGroup
	got := make([][]Neighbor, len(want))
	for i := range want {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = idx.KNearest(pts[i], 8, math.Inf(1))
		}(i)
	}
	wg.Wait()
	test.That(t, got, test.ShouldResemble, want)
}

func TestIntersects(t *testing.T) {
	o := &Octant{Center: r3.Vector{}, Extent: 1}

	// Inside the cube.
	test.That(t, intersects(o, r3.Vector{X: 0.5}, 0.01), test.ShouldBeTrue)
	// Projects inside on two axes, close along the third.
	test.That(t, intersects(o, r3.Vector{X: 1.5}, 0.36), test.ShouldBeTrue)
	// Too far along one axis.
	test.That(t, intersects(o, r3.Vector{X: 3}, 1), test.ShouldBeFalse)
	// Near a corner but outside the ball.
	test.That(t, intersects(o, r3.Vector{X: 1.5, Y: 1.5, Z: 1.5}, 0.5), test.ShouldBeFalse)
	test.That(t, intersects(o, r3.Vector{X: 1.5, Y: 1.5, Z: 1.5}, 0.76), test.ShouldBeTrue)
	// Touching exactly is not an intersection.
	test.That(t, intersects(o, r3.Vector{X: 1.5, Y: 1.5}, 0.5), test.ShouldBeFalse)
	// Unbounded always intersects.
	test.That(t, intersects(o, r3.Vector{X: 1e9, Y: -1e9, Z: 1e9}, math.Inf(1)), test.ShouldBeTrue)
}
