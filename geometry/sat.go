package geometry

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CollisionMesh is a hull instanced into world space for one
// narrowphase test. Vertices is scratch memory from the per-world
// arena.
type CollisionMesh struct {
	Mesh     *HalfEdgeMesh
	Vertices []mgl32.Vec3
	Center   mgl32.Vec3
}

// Manifold is a set of up to 4 contact points sharing a normal. Each
// point's W component is the penetration depth along Normal; the XYZ
// components lie on the reference body. The normal points outward from
// the reference body toward the incident one.
type Manifold struct {
	Points       [4]mgl32.Vec4
	NumPoints    uint32
	Normal       mgl32.Vec3
	AIsReference bool
}

// Plane is an infinite plane through Point with unit Normal.
type Plane struct {
	Point  mgl32.Vec3
	Normal mgl32.Vec3
}

const (
	// faceBias prefers face axes over edge axes when separations are
	// close, trading exactness for manifold stability.
	faceBias = 1e-3

	parallelEdgeEps = 1e-8
)

func (cm *CollisionMesh) facePlane(f int) (normal mgl32.Vec3, d float32) {
	loop := cm.Mesh.FaceVertexIndices(f)
	v0 := cm.Vertices[loop[0]]
	v1 := cm.Vertices[loop[1]]
	v2 := cm.Vertices[loop[2]]
	normal = v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
	d = normal.Dot(v0)
	return normal, d
}

// faceQuery returns the face axis of ref with the largest separation
// against other. Positive separation means the faces' axis separates
// the hulls.
func faceQuery(ref, other *CollisionMesh) (bestSep float32, bestFace int) {
	bestSep = math32.Inf(-1)
	bestFace = -1

	for f := 0; f < ref.Mesh.FaceCount(); f++ {
		n, d := ref.facePlane(f)

		sep := math32.Inf(1)
		for _, v := range other.Vertices {
			if s := n.Dot(v) - d; s < sep {
				sep = s
			}
		}
		if sep > bestSep {
			bestSep = sep
			bestFace = f
		}
	}
	return bestSep, bestFace
}

// edgeQuery scans the cross products of all edge direction pairs and
// returns the axis with the largest separation, oriented from a
// toward b.
func edgeQuery(a, b *CollisionMesh) (bestSep float32, bestAxis mgl32.Vec3, bestEdgeA, bestEdgeB [2]int32) {
	bestSep = math32.Inf(-1)
	centerDelta := b.Center.Sub(a.Center)

	for _, ea := range a.Mesh.Edges() {
		da := a.Vertices[ea[1]].Sub(a.Vertices[ea[0]])
		for _, eb := range b.Mesh.Edges() {
			db := b.Vertices[eb[1]].Sub(b.Vertices[eb[0]])

			axis := da.Cross(db)
			if axis.Dot(axis) < parallelEdgeEps {
				continue
			}
			axis = axis.Normalize()
			if axis.Dot(centerDelta) < 0 {
				axis = axis.Mul(-1)
			}

			maxA := math32.Inf(-1)
			for _, v := range a.Vertices {
				if s := axis.Dot(v); s > maxA {
					maxA = s
				}
			}
			minB := math32.Inf(1)
			for _, v := range b.Vertices {
				if s := axis.Dot(v); s < minB {
					minB = s
				}
			}

			if sep := minB - maxA; sep > bestSep {
				bestSep = sep
				bestAxis = axis
				bestEdgeA = ea
				bestEdgeB = eb
			}
		}
	}
	return bestSep, bestAxis, bestEdgeA, bestEdgeB
}

// SAT intersects two convex hulls. Face normals of both hulls and all
// edge-pair cross products are tested; any separating axis yields an
// empty manifold. When an edge-pair axis separates clearly more than
// either face axis, a one-point edge contact is returned. Otherwise the
// incident face is clipped against the reference face's side planes
// and the deepest points are kept.
func SAT(a, b *CollisionMesh) Manifold {
	sepA, faceA := faceQuery(a, b)
	if sepA > 0 {
		return Manifold{}
	}
	sepB, faceB := faceQuery(b, a)
	if sepB > 0 {
		return Manifold{}
	}
	sepE, axis, edgeA, edgeB := edgeQuery(a, b)
	if sepE > 0 {
		return Manifold{}
	}

	if sepE > math32.Max(sepA, sepB)+faceBias {
		return edgeContact(a, b, axis, edgeA, edgeB, -sepE)
	}

	if sepA >= sepB {
		return faceContact(a, b, faceA, true)
	}
	return faceContact(b, a, faceB, false)
}

// faceContact clips the incident face of other against the side planes
// of ref's reference face and keeps the 4 deepest penetrating points,
// projected onto the reference face plane.
func faceContact(ref, other *CollisionMesh, refFace int, aIsReference bool) Manifold {
	refNormal, refD := ref.facePlane(refFace)

	// Incident face: the one facing the reference face most directly.
	incident := -1
	minDot := math32.Inf(1)
	for f := 0; f < other.Mesh.FaceCount(); f++ {
		n, _ := other.facePlane(f)
		if d := n.Dot(refNormal); d < minDot {
			minDot = d
			incident = f
		}
	}

	polygon := make([]mgl32.Vec3, 0, 8)
	for _, idx := range other.Mesh.FaceVertexIndices(incident) {
		polygon = append(polygon, other.Vertices[idx])
	}

	// Sutherland-Hodgman against each side plane of the reference
	// face. Side plane normals point into the face region.
	refLoop := ref.Mesh.FaceVertexIndices(refFace)
	clipped := make([]mgl32.Vec3, 0, 8)
	for i := 0; i < len(refLoop) && len(polygon) > 0; i++ {
		e0 := ref.Vertices[refLoop[i]]
		e1 := ref.Vertices[refLoop[(i+1)%len(refLoop)]]
		sideNormal := refNormal.Cross(e1.Sub(e0))

		clipped = clipped[:0]
		for j := 0; j < len(polygon); j++ {
			cur := polygon[j]
			next := polygon[(j+1)%len(polygon)]

			curInside := sideNormal.Dot(cur.Sub(e0)) >= 0
			nextInside := sideNormal.Dot(next.Sub(e0)) >= 0

			if curInside {
				clipped = append(clipped, cur)
			}
			if curInside != nextInside {
				denom := sideNormal.Dot(next.Sub(cur))
				if denom != 0 {
					t := sideNormal.Dot(e0.Sub(cur)) / denom
					clipped = append(clipped, cur.Add(next.Sub(cur).Mul(t)))
				}
			}
		}
		polygon, clipped = clipped, polygon
	}

	var manifold Manifold
	manifold.Normal = refNormal
	manifold.AIsReference = aIsReference

	// Keep the 4 deepest penetrating points, projected onto the
	// reference face so they lie on the reference body.
	for _, p := range polygon {
		depth := refD - refNormal.Dot(p)
		if depth <= 0 {
			continue
		}
		onRef := p.Add(refNormal.Mul(depth))
		candidate := mgl32.Vec4{onRef.X(), onRef.Y(), onRef.Z(), depth}

		if manifold.NumPoints < 4 {
			manifold.Points[manifold.NumPoints] = candidate
			manifold.NumPoints++
			continue
		}
		shallowest := 0
		for i := 1; i < 4; i++ {
			if manifold.Points[i].W() < manifold.Points[shallowest].W() {
				shallowest = i
			}
		}
		if depth > manifold.Points[shallowest].W() {
			manifold.Points[shallowest] = candidate
		}
	}

	return manifold
}

// edgeContact builds a one-point manifold at the closest point between
// the two witness edges. a is the reference body.
func edgeContact(a, b *CollisionMesh, axis mgl32.Vec3, edgeA, edgeB [2]int32, depth float32) Manifold {
	pa, _ := closestPointsSegmentSegment(
		a.Vertices[edgeA[0]], a.Vertices[edgeA[1]],
		b.Vertices[edgeB[0]], b.Vertices[edgeB[1]])

	return Manifold{
		Points:       [4]mgl32.Vec4{{pa.X(), pa.Y(), pa.Z(), depth}},
		NumPoints:    1,
		Normal:       axis,
		AIsReference: true,
	}
}

// closestPointsSegmentSegment returns the closest points between
// segments [p1,q1] and [p2,q2] (RTCD 5.1.9).
func closestPointsSegmentSegment(p1, q1, p2, q2 mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)

	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float32

	if a <= parallelEdgeEps && e <= parallelEdgeEps {
		return p1, p2
	}
	if a <= parallelEdgeEps {
		t = clamp01(f / e)
	} else {
		c := d1.Dot(r)
		if e <= parallelEdgeEps {
			s = clamp01(-c / a)
		} else {
			bb := d1.Dot(d2)
			denom := a*e - bb*bb
			if denom != 0 {
				s = clamp01((bb*f - c*e) / denom)
			}
			t = (bb*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((bb - c) / a)
			}
		}
	}

	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SATPlane intersects a hull with an infinite plane. Every vertex
// below the plane becomes a contact point projected onto the plane;
// the 4 deepest are kept. The plane is the reference body.
func SATPlane(plane Plane, hull *CollisionMesh) Manifold {
	var manifold Manifold
	manifold.Normal = plane.Normal

	for _, v := range hull.Vertices {
		dist := plane.Normal.Dot(v.Sub(plane.Point))
		if dist >= 0 {
			continue
		}
		depth := -dist
		onPlane := v.Add(plane.Normal.Mul(depth))
		candidate := mgl32.Vec4{onPlane.X(), onPlane.Y(), onPlane.Z(), depth}

		if manifold.NumPoints < 4 {
			manifold.Points[manifold.NumPoints] = candidate
			manifold.NumPoints++
			continue
		}
		shallowest := 0
		for i := 1; i < 4; i++ {
			if manifold.Points[i].W() < manifold.Points[shallowest].W() {
				shallowest = i
			}
		}
		if depth > manifold.Points[shallowest].W() {
			manifold.Points[shallowest] = candidate
		}
	}

	return manifold
}

// SphereHull intersects a sphere with a convex hull. The contact point
// lies on the hull surface with the normal pointing from the hull
// toward the sphere center. Reports ok=false when separated.
func SphereHull(center mgl32.Vec3, radius float32, hull *CollisionMesh) (contact mgl32.Vec4, normal mgl32.Vec3, ok bool) {
	maxSep := math32.Inf(-1)
	bestFace := -1
	for f := 0; f < hull.Mesh.FaceCount(); f++ {
		n, d := hull.facePlane(f)
		if sep := n.Dot(center) - d; sep > maxSep {
			maxSep = sep
			bestFace = f
		}
	}

	if maxSep > radius {
		return mgl32.Vec4{}, mgl32.Vec3{}, false
	}

	if maxSep <= 0 {
		// Center inside the hull: push out through the nearest face.
		n, _ := hull.facePlane(bestFace)
		depth := radius - maxSep
		onHull := center.Sub(n.Mul(maxSep))
		return mgl32.Vec4{onHull.X(), onHull.Y(), onHull.Z(), depth}, n, true
	}

	closest, found := closestPointOnHull(center, hull)
	if !found {
		return mgl32.Vec4{}, mgl32.Vec3{}, false
	}
	delta := center.Sub(closest)
	dist := delta.Len()
	if dist >= radius || dist == 0 {
		return mgl32.Vec4{}, mgl32.Vec3{}, false
	}

	depth := radius - dist
	normal = delta.Mul(1 / dist)
	return mgl32.Vec4{closest.X(), closest.Y(), closest.Z(), depth}, normal, true
}

func closestPointOnHull(p mgl32.Vec3, hull *CollisionMesh) (mgl32.Vec3, bool) {
	best := mgl32.Vec3{}
	bestDist := math32.Inf(1)
	found := false

	for f := 0; f < hull.Mesh.FaceCount(); f++ {
		c := closestPointOnFace(p, hull, f)
		if d := p.Sub(c).Dot(p.Sub(c)); d < bestDist {
			bestDist = d
			best = c
			found = true
		}
	}
	return best, found
}

func closestPointOnFace(p mgl32.Vec3, hull *CollisionMesh, f int) mgl32.Vec3 {
	n, d := hull.facePlane(f)
	loop := hull.Mesh.FaceVertexIndices(f)

	projected := p.Sub(n.Mul(n.Dot(p) - d))

	inside := true
	for i := 0; i < len(loop); i++ {
		e0 := hull.Vertices[loop[i]]
		e1 := hull.Vertices[loop[(i+1)%len(loop)]]
		if n.Cross(e1.Sub(e0)).Dot(projected.Sub(e0)) < 0 {
			inside = false
			break
		}
	}
	if inside {
		return projected
	}

	best := mgl32.Vec3{}
	bestDist := math32.Inf(1)
	for i := 0; i < len(loop); i++ {
		e0 := hull.Vertices[loop[i]]
		e1 := hull.Vertices[loop[(i+1)%len(loop)]]
		c := closestPointOnSegment(p, e0, e1)
		if dd := p.Sub(c).Dot(p.Sub(c)); dd < bestDist {
			bestDist = dd
			best = c
		}
	}
	return best
}

func closestPointOnSegment(p, a, b mgl32.Vec3) mgl32.Vec3 {
	ab := b.Sub(a)
	denom := ab.Dot(ab)
	if denom == 0 {
		return a
	}
	t := clamp01(p.Sub(a).Dot(ab) / denom)
	return a.Add(ab.Mul(t))
}
