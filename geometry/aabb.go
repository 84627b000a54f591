package geometry

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// InvertedAABB returns a box that any point expands.
func InvertedAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Overlaps checks if two AABBs overlap.
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// ContainsPoint checks if a point is inside the AABB.
func (a AABB) ContainsPoint(point mgl32.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Union returns the smallest box containing both a and other.
func (a AABB) Union(other AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{
			math32.Min(a.Min.X(), other.Min.X()),
			math32.Min(a.Min.Y(), other.Min.Y()),
			math32.Min(a.Min.Z(), other.Min.Z()),
		},
		Max: mgl32.Vec3{
			math32.Max(a.Max.X(), other.Max.X()),
			math32.Max(a.Max.Y(), other.Max.Y()),
			math32.Max(a.Max.Z(), other.Max.Z()),
		},
	}
}

// Expand grows the box to contain point.
func (a AABB) Expand(point mgl32.Vec3) AABB {
	return a.Union(AABB{Min: point, Max: point})
}

// Centroid returns the box center.
func (a AABB) Centroid() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}
