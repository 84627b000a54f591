package boulder

import (
	"fmt"

	"github.com/akmonengine/boulder/ecs"
	"github.com/akmonengine/boulder/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// narrowphaseTest is the dispatch key for a canonicalized primitive
// pair: the bitwise OR of the two primitive ranks after sorting the
// pair by ascending rank.
type narrowphaseTest uint32

const (
	testSphereSphere narrowphaseTest = 1
	testHullHull     narrowphaseTest = 2
	testSphereHull   narrowphaseTest = 3
	testPlanePlane   narrowphaseTest = 4
	testSpherePlane  narrowphaseTest = 5
	testHullPlane    narrowphaseTest = 6
)

var baseNormal = mgl32.Vec3{0, 0, 1}

// transformedHull instances a hull into world space, with scale
// applied to object-space vertices before rotation. Scratch comes from
// the per-world arena and is released at the substep's scratch reset.
func transformedHull(w *ecs.World, e ecs.Entity, mesh *geometry.HalfEdgeMesh) *geometry.CollisionMesh {
	pos := ecs.Get[Position](w, e).Vec3
	rot := ecs.Get[Rotation](w, e).Quat
	scale := ecs.Get[Scale](w, e).Vec3

	vertices := w.Arena.AllocVec3(mesh.VertexCount())
	for v := 0; v < mesh.VertexCount(); v++ {
		obj := mesh.Vertex(v)
		scaled := mgl32.Vec3{scale.X() * obj.X(), scale.Y() * obj.Y(), scale.Z() * obj.Z()}
		vertices[v] = pos.Add(rot.Rotate(scaled))
	}

	return &geometry.CollisionMesh{Mesh: mesh, Vertices: vertices, Center: pos}
}

// runNarrowphase resolves one candidate pair into contacts. The pair
// is sorted by primitive rank so each combination is tested exactly
// one way; for plane contacts the plane is always the reference body.
func runNarrowphase(w *ecs.World, candidate CandidateCollision) {
	solver := ecs.GetSingleton[SolverData](w)
	objMgr := ecs.GetSingleton[ObjectData](w).Mgr

	aEntity := candidate.A
	bEntity := candidate.B

	aPrim := &objMgr.Primitives[ecs.Get[ObjectID](w, aEntity).Idx]
	bPrim := &objMgr.Primitives[ecs.Get[ObjectID](w, bEntity).Idx]

	if aPrim.Type > bPrim.Type {
		aEntity, bEntity = bEntity, aEntity
		aPrim, bPrim = bPrim, aPrim
	}

	aPos := ecs.Get[Position](w, aEntity).Vec3
	bPos := ecs.Get[Position](w, bEntity).Vec3

	switch narrowphaseTest(uint32(aPrim.Type) | uint32(bPrim.Type)) {
	case testSphereSphere:
		aRadius := aPrim.Sphere.Radius
		bRadius := bPrim.Sphere.Radius

		toB := bPos.Sub(aPos)
		dist := toB.Len()

		if dist > 0 && dist < aRadius+bRadius {
			mid := aPos.Add(toB.Mul(0.5))
			normal := toB.Mul(1 / dist)

			solver.AddContacts(Contact{
				Ref:       aEntity,
				Alt:       bEntity,
				Points:    [4]mgl32.Vec4{{mid.X(), mid.Y(), mid.Z(), dist / 2}},
				NumPoints: 1,
				Normal:    normal,
			})

			events := ecs.GetSingleton[ecs.Temporary[CollisionEvent]](w)
			events.Append(CollisionEvent{A: candidate.A, B: candidate.B})
		}

	case testPlanePlane:
		// Planes are static; nothing to resolve.

	case testSpherePlane:
		radius := aPrim.Sphere.Radius
		bRot := ecs.Get[Rotation](w, bEntity).Quat

		planeNormal := bRot.Rotate(baseNormal)

		d := planeNormal.Dot(bPos)
		t := planeNormal.Dot(aPos) - d

		if t < radius {
			depth := radius - t
			onPlane := aPos.Sub(planeNormal.Mul(t))

			// The plane is the reference body, so the normal pushes
			// the sphere out along it.
			solver.AddContacts(Contact{
				Ref:       bEntity,
				Alt:       aEntity,
				Points:    [4]mgl32.Vec4{{onPlane.X(), onPlane.Y(), onPlane.Z(), depth}},
				NumPoints: 1,
				Normal:    planeNormal,
			})
		}

	case testHullHull:
		meshA := transformedHull(w, aEntity, aPrim.Hull.Mesh)
		meshB := transformedHull(w, bEntity, bPrim.Hull.Mesh)

		manifold := geometry.SAT(meshA, meshB)
		if manifold.NumPoints > 0 {
			ref, alt := aEntity, bEntity
			if !manifold.AIsReference {
				ref, alt = bEntity, aEntity
			}
			solver.AddContacts(Contact{
				Ref:       ref,
				Alt:       alt,
				Points:    manifold.Points,
				NumPoints: manifold.NumPoints,
				Normal:    manifold.Normal,
			})
		}

	case testSphereHull:
		radius := aPrim.Sphere.Radius
		hull := transformedHull(w, bEntity, bPrim.Hull.Mesh)

		point, normal, ok := geometry.SphereHull(aPos, radius, hull)
		if ok {
			solver.AddContacts(Contact{
				Ref:       bEntity,
				Alt:       aEntity,
				Points:    [4]mgl32.Vec4{point},
				NumPoints: 1,
				Normal:    normal,
			})
		}

	case testHullPlane:
		hull := transformedHull(w, aEntity, aPrim.Hull.Mesh)

		bRot := ecs.Get[Rotation](w, bEntity).Quat
		planeNormal := bRot.Rotate(baseNormal)

		manifold := geometry.SATPlane(geometry.Plane{Point: bPos, Normal: planeNormal}, hull)
		if manifold.NumPoints > 0 {
			solver.AddContacts(Contact{
				Ref:       bEntity, // plane is always reference
				Alt:       aEntity,
				Points:    manifold.Points,
				NumPoints: manifold.NumPoints,
				Normal:    manifold.Normal,
			})
		}

	default:
		panic(fmt.Sprintf("boulder: unsupported primitive pair %d|%d", aPrim.Type, bPrim.Type))
	}
}
