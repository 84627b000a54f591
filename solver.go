package boulder

import (
	"github.com/akmonengine/boulder/ecs"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func multDiag(diag, v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		diag.X() * v.X(),
		diag.Y() * v.Y(),
		diag.Z() * v.Z(),
	}
}

func quatFromAngular(v mgl32.Vec3) mgl32.Quat {
	return mgl32.Quat{W: 0, V: v}
}

// substepRigidBodies advances one body by the substep h: gravity on
// the linear velocity, the gyroscopic term on the angular velocity,
// and the quaternion derivative on the orientation. The states before
// and after integration are captured for the solver.
func substepRigidBodies(w *ecs.World, e ecs.Entity) {
	solver := ecs.GetSingleton[SolverData](w)
	objMgr := ecs.GetSingleton[ObjectData](w).Mgr

	pos := ecs.Get[Position](w, e)
	rot := ecs.Get[Rotation](w, e)
	vel := ecs.Get[Velocity](w, e)
	objID := ecs.Get[ObjectID](w, e)
	prevState := ecs.Get[SubstepPrevState](w, e)
	startState := ecs.Get[SubstepStartState](w, e)
	velState := ecs.Get[SubstepVelocityState](w, e)

	metadata := objMgr.Metadata[objID.Idx]
	invI := metadata.InvInertiaTensor
	invM := metadata.InvMass

	h := solver.H

	curPosition := pos.Vec3
	curRotation := rot.Quat

	prevState.PrevPosition = curPosition
	prevState.PrevRotation = curRotation

	linearVelocity := vel.Linear
	angularVelocity := vel.Angular

	velState.PrevLinear = linearVelocity
	velState.PrevAngular = angularVelocity

	if invM > 0 {
		linearVelocity = linearVelocity.Add(solver.Gravity.Mul(h))
	}

	curPosition = curPosition.Add(linearVelocity.Mul(h))

	// World inertia as the reciprocal of the inverse tensor, with
	// locked axes (zero inverse) staying zero.
	inertia := mgl32.Vec3{}
	for i := 0; i < 3; i++ {
		if invI[i] != 0 {
			inertia[i] = 1 / invI[i]
		}
	}

	// Gyroscopic term only; no external torque.
	iAngular := multDiag(inertia, angularVelocity)
	angularVelocity = angularVelocity.Add(
		multDiag(invI, angularVelocity.Cross(iAngular).Mul(-1)).Mul(h))
	vel.Angular = angularVelocity

	angularQuat := quatFromAngular(angularVelocity.Mul(0.5 * h))
	curRotation = curRotation.Add(angularQuat.Mul(curRotation))
	curRotation = curRotation.Normalize()

	pos.Vec3 = curPosition
	rot.Quat = curRotation

	startState.StartPosition = curPosition
	startState.StartRotation = curRotation
}

// generalizedInverseMass is the effective inverse mass of an impulse
// applied at local offset r along local direction n.
func generalizedInverseMass(local mgl32.Vec3, invM float32, invI mgl32.Vec3, n mgl32.Vec3) float32 {
	lxn := local.Cross(n)
	return invM + multDiag(invI, lxn).Dot(lxn)
}

// applyPositionalUpdate performs one XPBD positional correction of
// magnitude c along nWorld. lambdaCheck sees the accumulated
// multiplier before the correction is applied and can veto it.
func applyPositionalUpdate(
	x1, x2 *mgl32.Vec3,
	q1, q2 *mgl32.Quat,
	r1, r2 mgl32.Vec3,
	invM1, invM2 float32,
	invI1, invI2 mgl32.Vec3,
	nWorld, n1, n2 mgl32.Vec3,
	c float32,
	alphaTilde float32,
	lambda *float32,
	lambdaCheck func(float32) bool,
) {
	w1 := generalizedInverseMass(r1, invM1, invI1, n1)
	w2 := generalizedInverseMass(r2, invM2, invI2, n2)

	denom := w1 + w2 + alphaTilde
	if denom == 0 {
		return
	}

	deltaLambda := (-c - alphaTilde*(*lambda)) / denom
	*lambda += deltaLambda

	if lambdaCheck(*lambda) {
		return
	}

	p := nWorld.Mul(deltaLambda)
	pLocal1 := n1.Mul(deltaLambda)
	pLocal2 := n2.Mul(deltaLambda)

	*x1 = x1.Add(p.Mul(invM1))
	*x2 = x2.Sub(p.Mul(invM2))

	r1xp := r1.Cross(pLocal1)
	r2xp := r2.Cross(pLocal2)

	*q1 = q1.Add(quatFromAngular(multDiag(invI1, r1xp).Mul(0.5)).Mul(*q1)).Normalize()
	*q2 = q2.Sub(quatFromAngular(multDiag(invI2, r2xp).Mul(0.5)).Mul(*q2)).Normalize()
}

// handleContactConstraint resolves one contact point: a rigid
// (zero-compliance) update along the normal, then a static friction
// update along the tangent clamped by the Coulomb cone.
func handleContactConstraint(
	x1, x2 *mgl32.Vec3,
	q1, q2 *mgl32.Quat,
	prev1, prev2 SubstepPrevState,
	invM1, invM2 float32,
	invI1, invI2 mgl32.Vec3,
	muS1, muS2 float32,
	r1, r2 mgl32.Vec3,
	nWorld mgl32.Vec3,
	lambdaN, lambdaT *float32,
) {
	p1 := q1.Rotate(r1).Add(*x1)
	p2 := q2.Rotate(r2).Add(*x2)

	d := p1.Sub(p2).Dot(nWorld)
	if d <= 0 {
		return
	}

	p1Hat := prev1.PrevRotation.Rotate(r1).Add(prev1.PrevPosition)
	p2Hat := prev2.PrevRotation.Rotate(r2).Add(prev2.PrevPosition)

	nLocal1 := q1.Inverse().Rotate(nWorld)
	nLocal2 := q2.Inverse().Rotate(nWorld)

	applyPositionalUpdate(x1, x2, q1, q2, r1, r2,
		invM1, invM2, invI1, invI2,
		nWorld, nLocal1, nLocal2,
		d, 0,
		lambdaN, func(float32) bool { return false })

	deltaP := p1.Sub(p1Hat).Sub(p2.Sub(p2Hat))
	deltaPT := deltaP.Sub(nWorld.Mul(deltaP.Dot(nWorld)))

	tangentialMagnitude := deltaPT.Len()
	if tangentialMagnitude > 0 {
		tangentDir := deltaPT.Mul(1 / tangentialMagnitude)
		tangentLocal1 := q1.Inverse().Rotate(tangentDir)
		tangentLocal2 := q2.Inverse().Rotate(tangentDir)

		// Coulomb cone: both multipliers accumulate negative, so the
		// static friction update holds only while lambdaT stays above
		// muS * lambdaN.
		muS := 0.5 * (muS1 + muS2)
		lambdaThreshold := *lambdaN * muS

		applyPositionalUpdate(x1, x2, q1, q2, r1, r2,
			invM1, invM2, invI1, invI2,
			tangentDir, tangentLocal1, tangentLocal2,
			tangentialMagnitude, 0,
			lambdaT, func(lambda float32) bool {
				return lambda < lambdaThreshold
			})
	}
}

// getLocalSpaceContacts expresses contact point i in both bodies'
// post-integration frames. The point on the incident body is derived
// by pushing the stored point back along the normal by its depth.
func getLocalSpaceContacts(start1, start2 SubstepStartState, contact *Contact, pointIdx int) (mgl32.Vec3, mgl32.Vec3) {
	contact1 := contact.Points[pointIdx].Vec3()
	penetrationDepth := contact.Points[pointIdx].W()

	contact2 := contact1.Sub(contact.Normal.Mul(penetrationDepth))

	r1 := start1.StartRotation.Inverse().Rotate(contact1.Sub(start1.StartPosition))
	r2 := start2.StartRotation.Inverse().Rotate(contact2.Sub(start2.StartPosition))

	return r1, r2
}

func handleContact(w *ecs.World, objMgr *ObjectManager, contact *Contact) {
	p1 := ecs.Get[Position](w, contact.Ref)
	q1 := ecs.Get[Rotation](w, contact.Ref)
	prev1 := *ecs.Get[SubstepPrevState](w, contact.Ref)
	start1 := *ecs.Get[SubstepStartState](w, contact.Ref)
	metadata1 := objMgr.Metadata[ecs.Get[ObjectID](w, contact.Ref).Idx]

	p2 := ecs.Get[Position](w, contact.Alt)
	q2 := ecs.Get[Rotation](w, contact.Alt)
	prev2 := *ecs.Get[SubstepPrevState](w, contact.Alt)
	start2 := *ecs.Get[SubstepStartState](w, contact.Alt)
	metadata2 := objMgr.Metadata[ecs.Get[ObjectID](w, contact.Alt).Idx]

	var lambdaN, lambdaT float32

	x1 := p1.Vec3
	x2 := p2.Vec3
	rot1 := q1.Quat
	rot2 := q2.Quat

	for i := 0; i < int(contact.NumPoints); i++ {
		r1, r2 := getLocalSpaceContacts(start1, start2, contact, i)

		handleContactConstraint(&x1, &x2, &rot1, &rot2,
			prev1, prev2,
			metadata1.InvMass, metadata2.InvMass,
			metadata1.InvInertiaTensor, metadata2.InvInertiaTensor,
			metadata1.MuS, metadata2.MuS,
			r1, r2,
			contact.Normal,
			&lambdaN, &lambdaT)
	}

	p1.Vec3 = x1
	p2.Vec3 = x2
	q1.Quat = rot1
	q2.Quat = rot2

	contact.LambdaN = lambdaN
}

// solvePositions iterates the substep's contacts serially: contacts
// can share endpoints, so writes to Position and Rotation must be
// linearized.
func solvePositions(w *ecs.World) {
	solver := ecs.GetSingleton[SolverData](w)
	objMgr := ecs.GetSingleton[ObjectData](w).Mgr

	numContacts := int(solver.NumContacts.Load())
	for i := 0; i < numContacts; i++ {
		handleContact(w, objMgr, &solver.Contacts[i])
	}
}

// setVelocities recovers a body's velocities from the positional
// state by finite differences over the substep.
func setVelocities(w *ecs.World, e ecs.Entity) {
	solver := ecs.GetSingleton[SolverData](w)
	h := solver.H

	pos := ecs.Get[Position](w, e)
	rot := ecs.Get[Rotation](w, e)
	prevState := ecs.Get[SubstepPrevState](w, e)
	vel := ecs.Get[Velocity](w, e)

	vel.Linear = pos.Vec3.Sub(prevState.PrevPosition).Mul(1 / h)

	deltaQ := rot.Quat.Mul(prevState.PrevRotation.Inverse())

	newAngular := deltaQ.V.Mul(2 / h)
	if deltaQ.W > 0 {
		vel.Angular = newAngular
	} else {
		vel.Angular = newAngular.Mul(-1)
	}
}

// applyVelocityUpdate applies an impulse of the given magnitude along
// deltaWorld at both contact offsets. A zero total generalized inverse
// mass (two static bodies) applies nothing.
func applyVelocityUpdate(
	v1, v2 *mgl32.Vec3,
	omega1, omega2 *mgl32.Vec3,
	r1, r2 mgl32.Vec3,
	invM1, invM2 float32,
	invI1, invI2 mgl32.Vec3,
	deltaWorld, deltaLocal1, deltaLocal2 mgl32.Vec3,
	magnitude float32,
) {
	w1 := generalizedInverseMass(r1, invM1, invI1, deltaLocal1)
	w2 := generalizedInverseMass(r2, invM2, invI2, deltaLocal2)

	wSum := w1 + w2
	if wSum == 0 {
		return
	}
	magnitude /= wSum

	*v1 = v1.Add(deltaWorld.Mul(magnitude * invM1))
	*v2 = v2.Sub(deltaWorld.Mul(magnitude * invM2))

	*omega1 = omega1.Add(multDiag(invI1, r1.Cross(deltaLocal1.Mul(magnitude))))
	*omega2 = omega2.Sub(multDiag(invI2, r2.Cross(deltaLocal2.Mul(magnitude))))
}

// updateVelocityFromContact applies dynamic friction against the
// tangential relative velocity, then restitution against the
// pre-substep normal velocity. Restitution is the pair's averaged
// material coefficient, zeroed below the resting threshold.
func updateVelocityFromContact(w *ecs.World, objMgr *ObjectManager, contact *Contact, h, restitutionThreshold float32) {
	vel1 := ecs.Get[Velocity](w, contact.Ref)
	q1 := ecs.Get[Rotation](w, contact.Ref).Quat
	start1 := *ecs.Get[SubstepStartState](w, contact.Ref)
	prevVel1 := *ecs.Get[SubstepVelocityState](w, contact.Ref)
	metadata1 := objMgr.Metadata[ecs.Get[ObjectID](w, contact.Ref).Idx]

	vel2 := ecs.Get[Velocity](w, contact.Alt)
	q2 := ecs.Get[Rotation](w, contact.Alt).Quat
	start2 := *ecs.Get[SubstepStartState](w, contact.Alt)
	prevVel2 := *ecs.Get[SubstepVelocityState](w, contact.Alt)
	metadata2 := objMgr.Metadata[ecs.Get[ObjectID](w, contact.Alt).Idx]

	v1, omega1 := vel1.Linear, vel1.Angular
	v2, omega2 := vel2.Linear, vel2.Angular

	muD := 0.5 * (metadata1.MuD + metadata2.MuD)
	restitution := 0.5 * (metadata1.Restitution + metadata2.Restitution)

	dynamicFrictionMagnitude := muD * math32.Abs(contact.LambdaN) / h

	for i := 0; i < int(contact.NumPoints); i++ {
		r1, r2 := getLocalSpaceContacts(start1, start2, contact, i)
		n := contact.Normal

		v := v1.Add(omega1.Cross(r1)).Sub(v2.Add(omega2.Cross(r2)))

		vn := n.Dot(v)
		vt := v.Sub(n.Mul(vn))
		vtLen := vt.Len()

		if vtLen != 0 && dynamicFrictionMagnitude != 0 {
			correctedMagnitude := -math32.Min(dynamicFrictionMagnitude, vtLen)

			deltaWorld := vt.Mul(1 / vtLen)
			deltaLocal1 := q1.Inverse().Rotate(deltaWorld)
			deltaLocal2 := q2.Inverse().Rotate(deltaWorld)

			applyVelocityUpdate(&v1, &v2, &omega1, &omega2, r1, r2,
				metadata1.InvMass, metadata2.InvMass,
				metadata1.InvInertiaTensor, metadata2.InvInertiaTensor,
				deltaWorld, deltaLocal1, deltaLocal2, correctedMagnitude)
		}

		vBar := prevVel1.PrevLinear.Add(prevVel1.PrevAngular.Cross(r1)).
			Sub(prevVel2.PrevLinear.Add(prevVel2.PrevAngular.Cross(r2)))
		vnBar := n.Dot(vBar)

		e := restitution
		if math32.Abs(vnBar) <= restitutionThreshold {
			e = 0
		}
		restitutionMagnitude := math32.Min(-e*vnBar, 0) - vn

		nLocal1 := q1.Inverse().Rotate(n)
		nLocal2 := q2.Inverse().Rotate(n)

		applyVelocityUpdate(&v1, &v2, &omega1, &omega2, r1, r2,
			metadata1.InvMass, metadata2.InvMass,
			metadata1.InvInertiaTensor, metadata2.InvInertiaTensor,
			n, nLocal1, nLocal2, restitutionMagnitude)
	}

	vel1.Linear, vel1.Angular = v1, omega1
	vel2.Linear, vel2.Angular = v2, omega2
}

// solveVelocities iterates the contact buffer serially and resets it,
// ending the substep's contact lifecycle.
func solveVelocities(w *ecs.World) {
	solver := ecs.GetSingleton[SolverData](w)
	objMgr := ecs.GetSingleton[ObjectData](w).Mgr

	numContacts := int(solver.NumContacts.Load())
	for i := 0; i < numContacts; i++ {
		updateVelocityFromContact(w, objMgr, &solver.Contacts[i],
			solver.H, solver.RestitutionThreshold)
	}

	solver.NumContacts.Store(0)
}
