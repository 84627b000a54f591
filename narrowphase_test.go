package boulder

import (
	"testing"

	"github.com/akmonengine/boulder/ecs"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainContacts snapshots and resets the solver's contact buffer.
func drainContacts(w *ecs.World) []Contact {
	solver := ecs.GetSingleton[SolverData](w)
	n := int(solver.NumContacts.Load())
	out := make([]Contact, n)
	copy(out, solver.Contacts[:n])
	solver.NumContacts.Store(0)
	return out
}

// checkContactInvariants asserts what the solver relies on at entry.
func checkContactInvariants(t *testing.T, contacts []Contact) {
	t.Helper()
	for i, c := range contacts {
		if c.NumPoints < 1 || c.NumPoints > 4 {
			t.Errorf("contact %d: NumPoints = %d, want 1..4", i, c.NumPoints)
		}
		if math32.Abs(c.Normal.Len()-1) > 1e-4 {
			t.Errorf("contact %d: |normal| = %v, want 1", i, c.Normal.Len())
		}
		for p := 0; p < int(c.NumPoints); p++ {
			if c.Points[p].W() < 0 {
				t.Errorf("contact %d point %d: depth = %v, want >= 0", i, p, c.Points[p].W())
			}
		}
		if c.Ref == c.Alt {
			t.Errorf("contact %d: ref == alt", i)
		}
	}
}

func TestNarrowphaseSphereSphere(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	sphere := f.addSphereObject(1, 1, 0, 0, 0)

	a := f.spawn(sphere, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})
	b := f.spawn(sphere, mgl32.Vec3{1.5, 0, 0}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: a, B: b})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	checkContactInvariants(t, contacts)

	c := contacts[0]
	assert.Equal(t, a, c.Ref)
	assert.Equal(t, b, c.Alt)
	assert.EqualValues(t, 1, c.NumPoints)
	assert.InDelta(t, 1, c.Normal.X(), 1e-6)
	assert.InDelta(t, 0.75, c.Points[0].X(), 1e-6, "midpoint")
	assert.InDelta(t, 0.75, c.Points[0].W(), 1e-6, "half the center distance")

	events := DrainCollisionEvents(f.world)
	assert.Len(t, events, 1)
}

func TestNarrowphaseSphereSphereSeparated(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	sphere := f.addSphereObject(1, 1, 0, 0, 0)

	a := f.spawn(sphere, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})
	b := f.spawn(sphere, mgl32.Vec3{2.5, 0, 0}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: a, B: b})

	assert.Empty(t, drainContacts(f.world))
	assert.Empty(t, DrainCollisionEvents(f.world))
}

func TestNarrowphaseSpherePlane(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	sphere := f.addSphereObject(1, 1, 0, 0, 0)
	plane := f.addPlaneObject(0, 0)

	ball := f.spawn(sphere, mgl32.Vec3{3, 4, 0.5}, mgl32.Vec3{})
	ground := f.spawn(plane, mgl32.Vec3{}, mgl32.Vec3{})

	// The pair is canonicalized by primitive rank, so candidate order
	// must not matter.
	for _, candidate := range []CandidateCollision{
		{A: ball, B: ground},
		{A: ground, B: ball},
	} {
		runNarrowphase(f.world, candidate)

		contacts := drainContacts(f.world)
		require.Len(t, contacts, 1)
		checkContactInvariants(t, contacts)

		c := contacts[0]
		assert.Equal(t, ground, c.Ref, "plane is always reference")
		assert.Equal(t, ball, c.Alt)
		assert.InDelta(t, 1, c.Normal.Z(), 1e-6)
		assert.InDelta(t, 0.5, c.Points[0].W(), 1e-6, "radius minus center height")
		assert.InDelta(t, 3, c.Points[0].X(), 1e-6)
		assert.InDelta(t, 4, c.Points[0].Y(), 1e-6)
		assert.InDelta(t, 0, c.Points[0].Z(), 1e-6, "contact point lies on the plane")
	}
}

func TestNarrowphaseSpherePlaneTilted(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	sphere := f.addSphereObject(1, 1, 0, 0, 0)
	plane := f.addPlaneObject(0, 0)

	// Plane rotated to face +x: its normal is the rotated +z.
	ball := f.spawn(sphere, mgl32.Vec3{0.25, 0, 0}, mgl32.Vec3{})
	ground := f.spawn(plane, mgl32.Vec3{}, mgl32.Vec3{})
	ecs.Get[Rotation](f.world, ground).Quat = mgl32.QuatRotate(math32.Pi/2, mgl32.Vec3{0, 1, 0})

	runNarrowphase(f.world, CandidateCollision{A: ball, B: ground})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	c := contacts[0]
	assert.InDelta(t, 1, c.Normal.X(), 1e-5)
	assert.InDelta(t, 0.75, c.Points[0].W(), 1e-5)
}

func TestNarrowphasePlanePlane(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	plane := f.addPlaneObject(0, 0)

	a := f.spawn(plane, mgl32.Vec3{}, mgl32.Vec3{})
	b := f.spawn(plane, mgl32.Vec3{0, 0, 0.5}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: a, B: b})

	assert.Empty(t, drainContacts(f.world))
}

func TestNarrowphaseHullPlane(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	box := f.addBoxObject(mgl32.Vec3{0.5, 0.5, 0.5}, 1, 0, 0, 0)
	plane := f.addPlaneObject(0, 0)

	cube := f.spawn(box, mgl32.Vec3{0, 0, 0.4}, mgl32.Vec3{})
	ground := f.spawn(plane, mgl32.Vec3{}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: cube, B: ground})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	checkContactInvariants(t, contacts)

	c := contacts[0]
	assert.Equal(t, ground, c.Ref, "plane is always reference")
	assert.EqualValues(t, 4, c.NumPoints)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0.1, c.Points[i].W(), 1e-5)
	}
}

func TestNarrowphaseHullHull(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	box := f.addBoxObject(mgl32.Vec3{0.5, 0.5, 0.5}, 1, 0, 0, 0)

	a := f.spawn(box, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})
	b := f.spawn(box, mgl32.Vec3{0.8, 0, 0}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: a, B: b})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	checkContactInvariants(t, contacts)

	c := contacts[0]
	assert.EqualValues(t, 4, c.NumPoints)
	assert.InDelta(t, 1, math32.Abs(c.Normal.X()), 1e-5)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0.2, c.Points[i].W(), 1e-5)
	}
}

func TestNarrowphaseHullHullScaled(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	box := f.addBoxObject(mgl32.Vec3{0.5, 0.5, 0.5}, 1, 0, 0, 0)

	// Scaled to double size the hulls span [-1, 1], so centers 1.8
	// apart overlap by 0.2.
	a := f.spawn(box, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})
	b := f.spawn(box, mgl32.Vec3{1.8, 0, 0}, mgl32.Vec3{})
	ecs.Get[Scale](f.world, a).Vec3 = mgl32.Vec3{2, 2, 2}
	ecs.Get[Scale](f.world, b).Vec3 = mgl32.Vec3{2, 2, 2}

	runNarrowphase(f.world, CandidateCollision{A: a, B: b})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	for i := 0; i < int(contacts[0].NumPoints); i++ {
		assert.InDelta(t, 0.2, contacts[0].Points[i].W(), 1e-5)
	}
}

func TestNarrowphaseSphereHull(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	sphere := f.addSphereObject(0.5, 1, 0, 0, 0)
	box := f.addBoxObject(mgl32.Vec3{0.5, 0.5, 0.5}, 1, 0, 0, 0)

	ball := f.spawn(sphere, mgl32.Vec3{0, 0, 0.9}, mgl32.Vec3{})
	cube := f.spawn(box, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})

	runNarrowphase(f.world, CandidateCollision{A: ball, B: cube})

	contacts := drainContacts(f.world)
	require.Len(t, contacts, 1)
	checkContactInvariants(t, contacts)

	c := contacts[0]
	assert.Equal(t, cube, c.Ref, "hull owns the contact frame")
	assert.Equal(t, ball, c.Alt)
	assert.InDelta(t, 1, c.Normal.Z(), 1e-5)
	assert.InDelta(t, 0.1, c.Points[0].W(), 1e-5)
	assert.InDelta(t, 0.5, c.Points[0].Z(), 1e-5, "contact point on the hull surface")
}

func TestNarrowphaseScratchArenaReset(t *testing.T) {
	f := newFixture(t, 0.01, 1, mgl32.Vec3{})
	box := f.addBoxObject(mgl32.Vec3{0.5, 0.5, 0.5}, 1, 0, 0, 0)

	a := f.spawn(box, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{})
	b := f.spawn(box, mgl32.Vec3{0.8, 0, 0}, mgl32.Vec3{})

	// Repeated hull tests with a reset in between must not grow the
	// arena past its initial block.
	for i := 0; i < 100; i++ {
		runNarrowphase(f.world, CandidateCollision{A: a, B: b})
		drainContacts(f.world)
		f.world.Arena.Reset()
	}
}
