// Package octree implements a static octree index over a point set. The tree is built once by
// threading point IDs through a successor chain, so partitioning rewrites links between IDs and
// never moves point data. After Build returns the index is read only and safe for concurrent
// queries.
package octree

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/pcfilter/logging"
	"go.viam.com/pcfilter/pointcloud"
)

// BucketSize is the number of points at or below which an octant stops subdividing.
const BucketSize = 32

// NoChild marks an absent child slot.
const NoChild = int32(-1)

// ErrEmptyPointSet is returned when building over a set with no points.
var ErrEmptyPointSet = errors.New("cannot build an octree over an empty point set")

// Octant is a cube of the index. Children are keyed by a 3 bit code where bit 0 is set for
// x > Center.X, bit 1 for y > Center.Y and bit 2 for z > Center.Z.
type Octant struct {
	Center r3.Vector
	// Extent is half the side length of the cube.
	Extent float64
	Leaf   bool
	Size   int64
	// Begin and End are the first and last IDs of this octant's run of the successor chain.
	Begin, End int64
	Children   [8]int32
}

// Index is an octree over a point set.
type Index struct {
	points  *pointcloud.PointSet
	succ    []int64
	octants []Octant

	depth     int
	numLeaves int
}

var noChildren = [8]int32{NoChild, NoChild, NoChild, NoChild, NoChild, NoChild, NoChild, NoChild}

// Build creates an index over every point in points. The index holds a reference to points,
// which must not change while the index is in use.
func Build(ctx context.Context, points *pointcloud.PointSet, logger logging.Logger) (*Index, error) {
	ctx, span := trace.StartSpan(ctx, "octree::Build")
	defer span.End()

	n := points.Size()
	if n == 0 {
		return nil, ErrEmptyPointSet
	}

	center, extent := points.MetaData().BoundingCube()
	idx := &Index{
		points:  points,
		succ:    make([]int64, n),
		octants: make([]Octant, 0, 1+2*n/BucketSize),
	}
	for i := range idx.succ {
		idx.succ[i] = int64(i) + 1
	}

	if _, err := idx.createOctant(ctx, n, center, extent, 0, n-1, 0); err != nil {
		return nil, errors.Wrap(err, "error building octree")
	}
	span.AddAttributes(
		trace.Int64Attribute("points", n),
		trace.Int64Attribute("octants", int64(len(idx.octants))),
	)
	logger.Debugw("built octree", "points", n, "octants", len(idx.octants), "leaves", idx.numLeaves, "depth", idx.depth)
	return idx, nil
}

func (idx *Index) createOctant(
	ctx context.Context,
	size int64,
	center r3.Vector,
	extent float64,
	begin, end int64,
	depth int,
) (int32, error) {
	if len(idx.octants) >= math.MaxInt32 {
		return NoChild, errors.New("too many octants")
	}
	slot := int32(len(idx.octants))
	idx.octants = append(idx.octants, Octant{
		Center:   center,
		Extent:   extent,
		Leaf:     true,
		Size:     size,
		Begin:    begin,
		End:      end,
		Children: noChildren,
	})
	if depth > idx.depth {
		idx.depth = depth
	}

	if size <= BucketSize || extent == 0 {
		idx.numLeaves++
		return slot, nil
	}
	if err := ctx.Err(); err != nil {
		return NoChild, err
	}

	var childBegins, childEnds, childSizes [8]int64
	pts := idx.points.Points()
	id := begin
	for i := int64(0); i < size; i++ {
		code := childCode(pts[id], center)
		if childSizes[code] == 0 {
			childBegins[code] = id
		} else {
			idx.succ[childEnds[code]] = id
		}
		childSizes[code]++
		childEnds[code] = id
		id = idx.succ[id]
	}

	children := noChildren
	last := -1
	for code := 0; code < 8; code++ {
		if childSizes[code] == 0 {
			continue
		}
		child, err := idx.createOctant(
			ctx,
			childSizes[code],
			childCenter(center, extent, code),
			0.5*extent,
			childBegins[code],
			childEnds[code],
			depth+1,
		)
		if err != nil {
			return NoChild, err
		}
		children[code] = child

		// Stitch the children's runs back into one run for this octant.
		c := idx.octants[child]
		if last < 0 {
			begin = c.Begin
		} else {
			idx.succ[idx.octants[children[last]].End] = c.Begin
		}
		last = code
		end = c.End
	}

	o := &idx.octants[slot]
	o.Leaf = false
	o.Begin = begin
	o.End = end
	o.Children = children
	return slot, nil
}

func childCode(p, center r3.Vector) int {
	code := 0
	if p.X > center.X {
		code |= 1
	}
	if p.Y > center.Y {
		code |= 2
	}
	if p.Z > center.Z {
		code |= 4
	}
	return code
}

func childCenter(center r3.Vector, extent float64, code int) r3.Vector {
	offset := func(bit int) float64 {
		if code&bit != 0 {
			return 0.5 * extent
		}
		return -0.5 * extent
	}
	return r3.Vector{X: center.X + offset(1), Y: center.Y + offset(2), Z: center.Z + offset(4)}
}

// Points returns the point set the index was built over.
func (idx *Index) Points() *pointcloud.PointSet {
	return idx.points
}

// Size returns the number of indexed points.
func (idx *Index) Size() int64 {
	return idx.points.Size()
}

// Root returns the arena slot of the root octant.
func (idx *Index) Root() int32 {
	return 0
}

// Octant returns a copy of the octant stored in slot i.
func (idx *Index) Octant(i int32) Octant {
	return idx.octants[i]
}

// NumOctants returns the number of octants in the arena.
func (idx *Index) NumOctants() int {
	return len(idx.octants)
}

// NumLeaves returns the number of leaf octants.
func (idx *Index) NumLeaves() int {
	return idx.numLeaves
}

// Depth returns the depth of the deepest octant. A tree with only a root has depth 0.
func (idx *Index) Depth() int {
	return idx.depth
}

// Walk calls fn with each point ID owned by the octant in slot i. A leaf yields its IDs in
// ascending order; an internal octant yields its children's runs in child code order. If fn
// returns false, the walk stops.
func (idx *Index) Walk(i int32, fn func(id int64) bool) {
	o := &idx.octants[i]
	id := o.Begin
	for n := int64(0); n < o.Size; n++ {
		if !fn(id) {
			return
		}
		id = idx.succ[id]
	}
}
