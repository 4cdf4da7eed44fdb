package octree

import (
	"cmp"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/exp/slices"
)

// Neighbor is a result of a nearest neighbor query.
type Neighbor struct {
	ID      int64
	Point   r3.Vector
	SqrDist float64
}

// compareNeighbors orders by distance, then ID.
func compareNeighbors(a, b Neighbor) int {
	if c := cmp.Compare(a.SqrDist, b.SqrDist); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// KNearest returns up to k points nearest to query that lie strictly within radius of it,
// nearest first with equal distances ordered by ID. Points at distance zero, including query
// itself when it is a member of the set, are never returned. Pass math.Inf(1) as radius for an
// unbounded search. A non-positive k or radius yields no neighbors.
func (idx *Index) KNearest(query r3.Vector, k int, radius float64) []Neighbor {
	if k <= 0 || math.IsNaN(radius) || radius <= 0 {
		return nil
	}
	s := knnSearch{
		idx:       idx,
		pts:       idx.points.Points(),
		query:     query,
		k:         k,
		sqrRadius: radius * radius,
		result:    make([]Neighbor, 0, min(int64(k), idx.Size())),
	}
	s.search(idx.Root())
	return s.result
}

type knnSearch struct {
	idx   *Index
	pts   []r3.Vector
	query r3.Vector
	k     int
	// sqrRadius shrinks to the k-th best distance once k candidates are held.
	sqrRadius float64
	result    []Neighbor
}

func (s *knnSearch) search(slot int32) {
	o := &s.idx.octants[slot]
	if o.Leaf {
		id := o.Begin
		for i := int64(0); i < o.Size; i++ {
			p := s.pts[id]
			if d := sqrDist(s.query, p); d > 0 && d < s.sqrRadius {
				s.insert(Neighbor{ID: id, Point: p, SqrDist: d})
			}
			id = s.idx.succ[id]
		}
		return
	}

	var buf [8]childDist
	children := buf[:0]
	for _, c := range o.Children {
		if c != NoChild {
			children = append(children, childDist{slot: c, sqrDist: sqrDist(s.query, s.idx.octants[c].Center)})
		}
	}
	// Nearest first so the radius tightens early.
	slices.SortStableFunc(children, func(a, b childDist) int {
		return cmp.Compare(a.sqrDist, b.sqrDist)
	})

	for _, c := range children {
		if intersects(&s.idx.octants[c.slot], s.query, s.sqrRadius) {
			s.search(c.slot)
		}
	}
}

type childDist struct {
	slot    int32
	sqrDist float64
}

func (s *knnSearch) insert(n Neighbor) {
	if len(s.result) == s.k {
		s.result = s.result[:s.k-1]
	}
	pos, _ := slices.BinarySearchFunc(s.result, n, compareNeighbors)
	s.result = slices.Insert(s.result, pos, n)

	if len(s.result) == s.k {
		s.sqrRadius = s.result[s.k-1].SqrDist
	}
}

// intersects reports whether the ball of squared radius sqrRadius around query reaches the
// octant's cube.
func intersects(o *Octant, query r3.Vector, sqrRadius float64) bool {
	dx := math.Abs(query.X - o.Center.X)
	dy := math.Abs(query.Y - o.Center.Y)
	dz := math.Abs(query.Z - o.Center.Z)

	maxDist := math.Sqrt(sqrRadius) + o.Extent
	if dx > maxDist || dy > maxDist || dz > maxDist {
		return false
	}

	inside := 0
	for _, d := range []float64{dx, dy, dz} {
		if d < o.Extent {
			inside++
		}
	}
	if inside > 1 {
		return true
	}

	dx = math.Max(dx-o.Extent, 0)
	dy = math.Max(dy-o.Extent, 0)
	dz = math.Max(dz-o.Extent, 0)
	return dx*dx+dy*dy+dz*dz < sqrRadius
}

func sqrDist(a, b r3.Vector) float64 {
	return a.Sub(b).Norm2()
}
