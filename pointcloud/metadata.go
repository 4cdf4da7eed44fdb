package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is the axis aligned bounding box of a point set.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns an empty bounding box that any merged point will replace.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Empty reports whether no point has been merged.
func (meta MetaData) Empty() bool {
	return meta.MinX > meta.MaxX
}

// Merge grows the bounds to include v.
func (meta *MetaData) Merge(v r3.Vector) {
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// BoundingCube returns the center and half side length of a cube enclosing the bounds. The
// center is the box minimum plus half the range on each axis and the extent is the largest
// half range.
func (meta MetaData) BoundingCube() (r3.Vector, float64) {
	if meta.Empty() {
		return r3.Vector{}, 0
	}
	half := r3.Vector{
		X: 0.5 * (meta.MaxX - meta.MinX),
		Y: 0.5 * (meta.MaxY - meta.MinY),
		Z: 0.5 * (meta.MaxZ - meta.MinZ),
	}
	center := r3.Vector{X: meta.MinX + half.X, Y: meta.MinY + half.Y, Z: meta.MinZ + half.Z}
	return center, math.Max(half.X, math.Max(half.Y, half.Z))
}
