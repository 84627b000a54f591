package boulder

import (
	"fmt"

	"github.com/akmonengine/boulder/ecs"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// RegisterTypes registers every component, singleton and temporary
// archetype the physics core touches. Call once per world before
// Init.
func RegisterTypes(w *ecs.World) {
	ecs.RegisterComponent[Position](w)
	ecs.RegisterComponent[Rotation](w)
	ecs.RegisterComponent[Scale](w)
	ecs.RegisterComponent[Velocity](w)
	ecs.RegisterComponent[ObjectID](w)
	ecs.RegisterComponent[CollisionAABB](w)
	ecs.RegisterComponent[SubstepPrevState](w)
	ecs.RegisterComponent[SubstepStartState](w)
	ecs.RegisterComponent[SubstepVelocityState](w)
	ecs.RegisterComponent[LeafID](w)

	ecs.RegisterSingleton[SolverData](w)
	ecs.RegisterSingleton[ObjectData](w)
	ecs.RegisterSingleton[BVH](w)

	ecs.RegisterSingleton[ecs.Temporary[CandidateCollision]](w)
	ecs.RegisterSingleton[ecs.Temporary[CollisionEvent]](w)
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Init constructs the world's solver state, object catalogue binding
// and broadphase index. Configuration errors are rejected here; after
// a successful Init the runtime invariants are enforced by sizing.
func Init(w *ecs.World, objMgr *ObjectManager, deltaT float32, numSubsteps int, gravity mgl32.Vec3, maxDynamicObjects, maxContactsPerWorld int) error {
	if objMgr == nil {
		return fmt.Errorf("boulder: nil object manager")
	}
	if numSubsteps < 1 {
		return fmt.Errorf("boulder: substep count %d, want >= 1", numSubsteps)
	}
	if !(deltaT > 0) || !finite(deltaT) {
		return fmt.Errorf("boulder: invalid delta-t %v", deltaT)
	}
	if !finite(gravity.X()) || !finite(gravity.Y()) || !finite(gravity.Z()) {
		return fmt.Errorf("boulder: non-finite gravity %v", gravity)
	}
	if maxDynamicObjects < 1 || maxContactsPerWorld < 1 {
		return fmt.Errorf("boulder: capacities must be positive, got %d objects / %d contacts",
			maxDynamicObjects, maxContactsPerWorld)
	}

	bvh := ecs.GetSingleton[BVH](w)
	bvh.Init(maxDynamicObjects)

	h := deltaT / float32(numSubsteps)

	solver := ecs.GetSingleton[SolverData](w)
	solver.Contacts = make([]Contact, maxContactsPerWorld)
	solver.NumContacts.Store(0)
	solver.DeltaT = deltaT
	solver.H = h
	solver.Gravity = gravity
	solver.GMagnitude = gravity.Len()
	solver.RestitutionThreshold = 2 * solver.GMagnitude * h

	ecs.GetSingleton[ObjectData](w).Mgr = objMgr

	ecs.GetSingleton[ecs.Temporary[CandidateCollision]](w).Grow(maxContactsPerWorld)
	ecs.GetSingleton[ecs.Temporary[CollisionEvent]](w).Grow(maxContactsPerWorld)

	return nil
}

// Reset re-seeds the broadphase for a world reset: all leaf state is
// dropped and the next tree update rebuilds from scratch.
func Reset(w *ecs.World) {
	bvh := ecs.GetSingleton[BVH](w)
	bvh.RebuildOnUpdate()
	bvh.ClearLeaves()
}

// RegisterEntity reserves a broadphase leaf for e and stores the
// handle on the entity.
func RegisterEntity(w *ecs.World, e ecs.Entity) LeafID {
	leaf := ecs.GetSingleton[BVH](w).ReserveLeaf(e)
	*ecs.Get[LeafID](w, e) = leaf
	return leaf
}

// SetupTasks wires the per-step pipeline into the host task graph:
// swept AABB update, leaf refresh, tree update and overlap search once
// per step, then the substep subgraph unrolled numSubsteps times, and
// finally the candidate clear. Returns the terminal node.
func SetupTasks(w *ecs.World, b *ecs.Builder, deps []ecs.NodeID, numSubsteps int) ecs.NodeID {
	bvh := ecs.GetSingleton[BVH](w)
	candidates := ecs.GetSingleton[ecs.Temporary[CandidateCollision]](w)

	updateAABBs := b.AddParallelFor("updateCollisionAABB", deps, w.EntityCount, func(i int) {
		updateCollisionAABB(w, w.EntityAt(i))
	})

	preprocessLeaves := b.AddParallelFor("preprocessLeaves", []ecs.NodeID{updateAABBs}, w.EntityCount, func(i int) {
		e := w.EntityAt(i)
		bvh.UpdateLeaf(*ecs.Get[LeafID](w, e), ecs.Get[CollisionAABB](w, e).AABB)
	})

	bvhUpdate := b.AddTask("bvhUpdate", []ecs.NodeID{preprocessLeaves}, func() {
		bvh.UpdateTree()
	})

	findOverlaps := b.AddParallelFor("findOverlaps", []ecs.NodeID{bvhUpdate}, w.EntityCount, func(i int) {
		e := w.EntityAt(i)
		leaf := *ecs.Get[LeafID](w, e)
		aabb := ecs.Get[CollisionAABB](w, e).AABB
		bvh.FindOverlaps(leaf, aabb, func(other ecs.Entity) {
			candidates.Append(CandidateCollision{A: e, B: other})
		})
	})

	cur := findOverlaps
	for s := 0; s < numSubsteps; s++ {
		integrate := b.AddParallelFor("substepIntegrate", []ecs.NodeID{cur}, w.EntityCount, func(i int) {
			substepRigidBodies(w, w.EntityAt(i))
		})

		narrow := b.AddParallelFor("narrowphase", []ecs.NodeID{integrate}, candidates.Len, func(i int) {
			runNarrowphase(w, candidates.At(i))
		})

		// Contacts can share entities: both solves walk the contact
		// buffer serially so per-entity writes never race.
		solvePos := b.AddTask("solvePositions", []ecs.NodeID{narrow}, func() {
			solvePositions(w)
		})

		velSet := b.AddParallelFor("setVelocities", []ecs.NodeID{solvePos}, w.EntityCount, func(i int) {
			setVelocities(w, w.EntityAt(i))
		})

		solveVel := b.AddTask("solveVelocities", []ecs.NodeID{velSet}, func() {
			solveVelocities(w)
		})

		cur = b.AddTask("resetScratch", []ecs.NodeID{solveVel}, func() {
			w.Arena.Reset()
		})
	}

	return b.AddTask("clearCandidateOverlaps", []ecs.NodeID{cur}, func() {
		candidates.Clear()
	})
}

// SetupCleanupTasks emits the terminal stage clearing collision
// events, after the host has had a chance to observe them.
func SetupCleanupTasks(w *ecs.World, b *ecs.Builder, deps []ecs.NodeID) ecs.NodeID {
	events := ecs.GetSingleton[ecs.Temporary[CollisionEvent]](w)
	return b.AddTask("clearCollisionEvents", deps, func() {
		events.Clear()
	})
}

// DrainCollisionEvents copies out the step's collision events and
// clears them. An alternative to SetupCleanupTasks for hosts that
// poll between steps.
func DrainCollisionEvents(w *ecs.World) []CollisionEvent {
	events := ecs.GetSingleton[ecs.Temporary[CollisionEvent]](w)
	n := events.Len()
	if n == 0 {
		return nil
	}
	out := make([]CollisionEvent, n)
	for i := 0; i < n; i++ {
		out[i] = events.At(i)
	}
	events.Clear()
	return out
}
