package boulder

import (
	"github.com/akmonengine/boulder/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// PrimitiveType ranks collision primitives. The rank values
// canonicalize pair ordering in the narrowphase: the pair is sorted so
// the lower rank comes first, and the bitwise OR of both ranks is the
// dispatch key.
type PrimitiveType uint32

const (
	PrimitiveSphere PrimitiveType = 1
	PrimitiveHull   PrimitiveType = 2
	PrimitivePlane  PrimitiveType = 4
)

// SpherePrimitive is a sphere centered on the body origin.
type SpherePrimitive struct {
	Radius float32
}

// HullPrimitive is a convex hull described by a shared half-edge mesh.
type HullPrimitive struct {
	Mesh *geometry.HalfEdgeMesh
}

// CollisionPrimitive is the tagged union of supported collision
// shapes. Planes carry no data: a plane's geometry is its body's
// rotation applied to the +Z normal.
type CollisionPrimitive struct {
	Type   PrimitiveType
	Sphere SpherePrimitive
	Hull   HullPrimitive
}

// RigidBodyMetadata holds a body's mass distribution and material
// response. A zero InvMass makes the body static.
type RigidBodyMetadata struct {
	InvMass          float32
	InvInertiaTensor mgl32.Vec3
	MuS              float32
	MuD              float32
	Restitution      float32
}

// ObjectManager is the shared read-only catalogue of object-space
// AABBs, collision primitives and rigid-body metadata, indexed by
// ObjectID. Built once before simulation and safe to share across
// worlds.
type ObjectManager struct {
	AABBs      []geometry.AABB
	Primitives []CollisionPrimitive
	Metadata   []RigidBodyMetadata
}

// AddObject appends an object definition and returns its id.
func (m *ObjectManager) AddObject(aabb geometry.AABB, prim CollisionPrimitive, metadata RigidBodyMetadata) uint32 {
	m.AABBs = append(m.AABBs, aabb)
	m.Primitives = append(m.Primitives, prim)
	m.Metadata = append(m.Metadata, metadata)
	return uint32(len(m.Primitives) - 1)
}

// SphereInertiaTensor returns the diagonal inertia tensor of a solid
// sphere.
func SphereInertiaTensor(mass, radius float32) mgl32.Vec3 {
	i := (2.0 / 5.0) * mass * radius * radius
	return mgl32.Vec3{i, i, i}
}

// BoxInertiaTensor returns the diagonal inertia tensor of a solid box
// with the given half-extents.
func BoxInertiaTensor(mass float32, halfExtents mgl32.Vec3) mgl32.Vec3 {
	x := halfExtents.X() * 2
	y := halfExtents.Y() * 2
	z := halfExtents.Z() * 2

	factor := mass / 12.0
	return mgl32.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	}
}

// InverseInertia converts a diagonal inertia tensor to its inverse,
// mapping locked axes (zero inertia) to zero.
func InverseInertia(inertia mgl32.Vec3) mgl32.Vec3 {
	inv := mgl32.Vec3{}
	for i := 0; i < 3; i++ {
		if inertia[i] != 0 {
			inv[i] = 1 / inertia[i]
		}
	}
	return inv
}
