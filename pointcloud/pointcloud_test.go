package pointcloud

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointSetBasic(t *testing.T) {
	pts := []r3.Vector{
		NewVector(0, 0, 0),
		NewVector(1, 0, 1),
		NewVector(-1, -2, 1),
		NewVector(1, 0, 1),
	}
	ps := NewPointSet(pts)
	test.That(t, ps.Size(), test.ShouldEqual, int64(4))
	test.That(t, ps.At(2), test.ShouldResemble, NewVector(-1, -2, 1))

	// Duplicates are kept and keep their own IDs.
	test.That(t, ps.At(1), test.ShouldResemble, ps.At(3))

	// The set owns its points.
	pts[0] = NewVector(9, 9, 9)
	test.That(t, ps.At(0), test.ShouldResemble, NewVector(0, 0, 0))

	clone := ps.Clone()
	test.That(t, clone.Points(), test.ShouldResemble, ps.Points())
	test.That(t, &clone.Points()[0] != &ps.Points()[0], test.ShouldBeTrue)

	count := 0
	ps.Iterate(0, 0, func(id int64, p r3.Vector) bool {
		test.That(t, p, test.ShouldResemble, ps.At(id))
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 4)

	count = 0
	ps.Iterate(0, 0, func(id int64, p r3.Vector) bool {
		count++
		return id < 1
	})
	test.That(t, count, test.ShouldEqual, 2)

	var nilSet *PointSet
	test.That(t, nilSet.Size(), test.ShouldEqual, int64(0))
	test.That(t, nilSet.Points(), test.ShouldBeNil)
}

func TestPointSetIterateBatches(t *testing.T) {
	pts := make([]r3.Vector, 10)
	for i := range pts {
		pts[i] = NewVector(float64(i), 0, 0)
	}
	ps := NewPointSet(pts)

	var seen []int64
	for batch := 0; batch < 3; batch++ {
		ps.Iterate(3, batch, func(id int64, p r3.Vector) bool {
			test.That(t, p.X, test.ShouldEqual, float64(id))
			seen = append(seen, id)
			return true
		})
	}
	test.That(t, seen, test.ShouldResemble, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

func TestPointSetSubset(t *testing.T) {
	ps := NewPointSet([]r3.Vector{
		NewVector(0, 0, 0),
		NewVector(1, 0, 0),
		NewVector(2, 0, 0),
		NewVector(100, 100, 100),
	})
	sub, err := ps.Subset([]int64{0, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sub.Points(), test.ShouldResemble, []r3.Vector{NewVector(0, 0, 0), NewVector(2, 0, 0)})
	test.That(t, sub.MetaData().MaxX, test.ShouldEqual, 2.)

	empty, err := ps.Subset(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Size(), test.ShouldEqual, int64(0))

	_, err = ps.Subset([]int64{4})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")
	_, err = ps.Subset([]int64{-1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMetaDataBoundingCube(t *testing.T) {
	meta := NewMetaData()
	test.That(t, meta.Empty(), test.ShouldBeTrue)
	center, extent := meta.BoundingCube()
	test.That(t, center, test.ShouldResemble, r3.Vector{})
	test.That(t, extent, test.ShouldEqual, 0.)

	ps := NewPointSet([]r3.Vector{
		NewVector(-1, 0, 2),
		NewVector(3, 1, 2),
		NewVector(0, -1, 4),
	})
	meta = ps.MetaData()
	test.That(t, meta.Empty(), test.ShouldBeFalse)
	test.That(t, meta.MinX, test.ShouldEqual, -1.)
	test.That(t, meta.MaxX, test.ShouldEqual, 3.)
	test.That(t, meta.MinY, test.ShouldEqual, -1.)
	test.That(t, meta.MaxZ, test.ShouldEqual, 4.)

	center, extent = meta.BoundingCube()
	test.That(t, center, test.ShouldResemble, NewVector(1, 0, 3))
	test.That(t, extent, test.ShouldEqual, 2.)

	// Every point lies inside the cube.
	for _, p := range ps.Points() {
		test.That(t, math.Abs(p.X-center.X), test.ShouldBeLessThanOrEqualTo, extent)
		test.That(t, math.Abs(p.Y-center.Y), test.ShouldBeLessThanOrEqualTo, extent)
		test.That(t, math.Abs(p.Z-center.Z), test.ShouldBeLessThanOrEqualTo, extent)
	}

	single := NewPointSet([]r3.Vector{NewVector(5, 5, 5)})
	center, extent = single.MetaData().BoundingCube()
	test.That(t, center, test.ShouldResemble, NewVector(5, 5, 5))
	test.That(t, extent, test.ShouldEqual, 0.)
}

func TestCheckPoint(t *testing.T) {
	test.That(t, CheckPoint(NewVector(1, 2, 3)), test.ShouldBeNil)

	err := CheckPoint(NewVector(math.NaN(), 0, 0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "x component")

	err = CheckPoint(NewVector(0, math.Inf(1), 0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "y component")

	err = CheckPoint(NewVector(0, 0, math.Inf(-1)))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "z component")

	test.That(t, isPrecise(NewVector(minPreciseFloat64, maxPreciseFloat64, 0)), test.ShouldBeTrue)
	test.That(t, isPrecise(NewVector(2*maxPreciseFloat64, 0, 0)), test.ShouldBeFalse)
}
