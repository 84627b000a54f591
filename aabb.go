package boulder

import (
	"github.com/akmonengine/boulder/ecs"
	"github.com/akmonengine/boulder/geometry"
)

const (
	// aabbExpansionFactor scales the velocity term of the swept AABB so
	// overlap pairs found once per step stay valid across substeps.
	aabbExpansionFactor = 2.0
	// aabbMaxAccel bounds unmodeled acceleration when padding the box.
	aabbMaxAccel = 100.0
)

// updateCollisionAABB rotates the object-space AABB into world space
// (RTCD 4.2.6) and expands it by the step's expected motion.
func updateCollisionAABB(w *ecs.World, e ecs.Entity) {
	objMgr := ecs.GetSingleton[ObjectData](w).Mgr

	pos := ecs.Get[Position](w, e)
	rot := ecs.Get[Rotation](w, e)
	objID := ecs.Get[ObjectID](w, e)
	vel := ecs.Get[Velocity](w, e)
	out := ecs.Get[CollisionAABB](w, e)

	rotMat := rot.Quat.Mat4().Mat3()
	objAABB := objMgr.AABBs[objID.Idx]

	var worldAABB geometry.AABB

	for i := 0; i < 3; i++ {
		worldAABB.Min[i] = pos.Vec3[i]
		worldAABB.Max[i] = pos.Vec3[i]

		for j := 0; j < 3; j++ {
			lo := rotMat.At(i, j) * objAABB.Min[j]
			hi := rotMat.At(i, j) * objAABB.Max[j]

			if lo < hi {
				worldAABB.Min[i] += lo
				worldAABB.Max[i] += hi
			} else {
				worldAABB.Min[i] += hi
				worldAABB.Max[i] += lo
			}
		}
	}

	deltaT := ecs.GetSingleton[SolverData](w).DeltaT
	minPosChange := aabbMaxAccel * deltaT * deltaT

	for i := 0; i < 3; i++ {
		posDelta := aabbExpansionFactor * vel.Linear[i] * deltaT

		minDelta := posDelta - minPosChange
		maxDelta := posDelta + minPosChange

		if minDelta < 0 {
			worldAABB.Min[i] += minDelta
		}
		if maxDelta > 0 {
			worldAABB.Max[i] += maxDelta
		}
	}

	out.AABB = worldAABB
}
