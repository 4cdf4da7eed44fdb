// Package pointcloud defines the ordered, immutable point set that outlier filtering runs over,
// along with readers and writers for the file formats it is loaded from and saved to.
//
// A point's identity is its index in the set. Nothing in this package ever reorders or
// deduplicates points, so IDs handed out by a loader stay valid for the lifetime of a run.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Bounds for coordinates that survive a float64 round trip through integer backed formats.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// CheckPoint returns an error if a coordinate of p is not finite. Octree construction relies on
// every coordinate taking part in ordinary comparisons.
func CheckPoint(p r3.Vector) error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return errors.Errorf("%s component (%f) is not finite", c.name, c.v)
		}
	}
	return nil
}

func isPrecise(p r3.Vector) bool {
	return p.X >= minPreciseFloat64 && p.X <= maxPreciseFloat64 &&
		p.Y >= minPreciseFloat64 && p.Y <= maxPreciseFloat64 &&
		p.Z >= minPreciseFloat64 && p.Z <= maxPreciseFloat64
}

// PointSet is an ordered sequence of points where a point's ID is its 0-based index.
// A PointSet is never mutated after construction and may be shared between goroutines.
type PointSet struct {
	points []r3.Vector
	meta   MetaData
}

// NewPointSet returns a PointSet holding a copy of pts.
func NewPointSet(pts []r3.Vector) *PointSet {
	cp := make([]r3.Vector, len(pts))
	copy(cp, pts)
	return newPointSetNoCopy(cp)
}

func newPointSetNoCopy(pts []r3.Vector) *PointSet {
	meta := NewMetaData()
	for _, p := range pts {
		meta.Merge(p)
	}
	return &PointSet{points: pts, meta: meta}
}

// Size returns the number of points in the set.
func (ps *PointSet) Size() int64 {
	if ps == nil {
		return 0
	}
	return int64(len(ps.points))
}

// At returns the point with the given ID. It panics if id is out of range.
func (ps *PointSet) At(id int64) r3.Vector {
	return ps.points[id]
}

// Points returns the backing slice. Callers must not modify it.
func (ps *PointSet) Points() []r3.Vector {
	if ps == nil {
		return nil
	}
	return ps.points
}

// MetaData returns the bounds of the set.
func (ps *PointSet) MetaData() MetaData {
	if ps == nil {
		return NewMetaData()
	}
	return ps.meta
}

// Clone returns a deep copy of the set.
func (ps *PointSet) Clone() *PointSet {
	return NewPointSet(ps.Points())
}

// Subset materializes the points with the given IDs, in the order given.
func (ps *PointSet) Subset(ids []int64) (*PointSet, error) {
	out := make([]r3.Vector, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= ps.Size() {
			return nil, errors.Errorf("point id %d out of range [0,%d)", id, ps.Size())
		}
		out = append(out, ps.points[id])
	}
	return newPointSetNoCopy(out), nil
}

// Iterate calls fn for every point in ID order. If fn returns false, iteration stops.
// numBatches lets you divide up the work. 0 means don't divide.
// myBatch is used iff numBatches > 0 and is which batch you want.
func (ps *PointSet) Iterate(numBatches, myBatch int, fn func(id int64, p r3.Vector) bool) {
	begin, end := int64(0), ps.Size()
	if numBatches > 0 {
		batchSize := (end + int64(numBatches) - 1) / int64(numBatches)
		begin = int64(myBatch) * batchSize
		end = begin + batchSize
		if end > ps.Size() {
			end = ps.Size()
		}
	}
	for id := begin; id < end; id++ {
		if !fn(id, ps.points[id]) {
			return
		}
	}
}
