// Package boulder is a batched rigid-body physics core. Each world
// advances a set of dynamic and static bodies under gravity with an
// XPBD substepping scheme: a broadphase BVH produces candidate pairs,
// the narrowphase builds contact manifolds, and the solver applies
// positional corrections with static friction before restoring
// velocities and applying dynamic friction and restitution impulses.
package boulder

import (
	"sync/atomic"

	"github.com/akmonengine/boulder/ecs"
	"github.com/akmonengine/boulder/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// Position is a body's world-space centroid.
type Position struct {
	mgl32.Vec3
}

// Rotation is a body's orientation; unit-norm after every substep
// update and positional correction.
type Rotation struct {
	mgl32.Quat
}

// Scale is applied per-axis to primitive vertices before rotation.
type Scale struct {
	mgl32.Vec3
}

// Velocity holds a body's current linear and angular velocity.
type Velocity struct {
	Linear  mgl32.Vec3
	Angular mgl32.Vec3
}

// ObjectID indexes a body's collision and mass data in the shared
// ObjectManager.
type ObjectID struct {
	Idx uint32
}

// CollisionAABB is the world-space swept box bounding the body's
// motion for the current step.
type CollisionAABB struct {
	geometry.AABB
}

// SubstepPrevState is the body state at the start of the current
// substep, before integration.
type SubstepPrevState struct {
	PrevPosition mgl32.Vec3
	PrevRotation mgl32.Quat
}

// SubstepStartState is the body state immediately after integration;
// contact local offsets are expressed in this frame.
type SubstepStartState struct {
	StartPosition mgl32.Vec3
	StartRotation mgl32.Quat
}

// SubstepVelocityState is the body's velocities at the start of the
// substep, the reference for restitution.
type SubstepVelocityState struct {
	PrevLinear  mgl32.Vec3
	PrevAngular mgl32.Vec3
}

// CandidateCollision is a broadphase overlap pair consumed by the
// narrowphase.
type CandidateCollision struct {
	A ecs.Entity
	B ecs.Entity
}

// CollisionEvent records that contact occurred between two entities,
// for user observation. Cleared by the cleanup task.
type CollisionEvent struct {
	A ecs.Entity
	B ecs.Entity
}

// Contact is one solver constraint: up to 4 world-space points on the
// reference body, each with its penetration depth in W, sharing a
// normal that points from Ref toward Alt.
type Contact struct {
	Ref       ecs.Entity
	Alt       ecs.Entity
	Points    [4]mgl32.Vec4
	NumPoints uint32
	Normal    mgl32.Vec3
	LambdaN   float32
}

// SolverData is the per-world contact buffer and substep timing.
type SolverData struct {
	Contacts    []Contact
	NumContacts atomic.Int32

	DeltaT               float32
	H                    float32
	Gravity              mgl32.Vec3
	GMagnitude           float32
	RestitutionThreshold float32
}

// AddContacts appends contacts with a relaxed fetch-add; the task
// graph edge between narrowphase and solver orders the writes.
// Overflowing the buffer is a sizing bug and panics.
func (s *SolverData) AddContacts(contacts ...Contact) {
	idx := s.NumContacts.Add(int32(len(contacts))) - int32(len(contacts))
	if int(idx)+len(contacts) > len(s.Contacts) {
		panic("boulder: contact buffer capacity exceeded")
	}
	copy(s.Contacts[idx:], contacts)
}

// ObjectData points at the shared read-only object catalogue.
type ObjectData struct {
	Mgr *ObjectManager
}
