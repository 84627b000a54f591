package geometry

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// HalfEdge is one directed edge of a face loop.
type HalfEdge struct {
	Origin int32 // vertex the edge leaves from
	Face   int32
	Next   int32 // next half-edge around the face, counter-clockwise
	Twin   int32 // opposite half-edge on the adjacent face
}

// HalfEdgeMesh is a closed convex polyhedron. Faces wind
// counter-clockwise viewed from outside, so face normals point
// outward. The mesh is read-only after construction and shared across
// worlds.
type HalfEdgeMesh struct {
	vertices  []mgl32.Vec3
	halfEdges []HalfEdge
	faceVerts [][]int32
	edges     [][2]int32 // unique vertex pairs, one per twin pair
}

// NewHalfEdgeMesh builds a mesh from object-space vertices and
// per-face vertex loops. Every edge must be shared by exactly two
// faces with opposite direction.
func NewHalfEdgeMesh(vertices []mgl32.Vec3, faces [][]int32) (*HalfEdgeMesh, error) {
	m := &HalfEdgeMesh{
		vertices:  vertices,
		faceVerts: faces,
	}

	type edgeKey struct{ from, to int32 }
	directed := make(map[edgeKey]int32)

	for f, loop := range faces {
		if len(loop) < 3 {
			return nil, fmt.Errorf("geometry: face %d has %d vertices", f, len(loop))
		}
		base := int32(len(m.halfEdges))
		n := int32(len(loop))
		for i := int32(0); i < n; i++ {
			from := loop[i]
			to := loop[(i+1)%n]
			if int(from) >= len(vertices) || int(to) >= len(vertices) {
				return nil, fmt.Errorf("geometry: face %d references vertex out of range", f)
			}
			key := edgeKey{from, to}
			if _, dup := directed[key]; dup {
				return nil, fmt.Errorf("geometry: edge %d->%d appears twice", from, to)
			}
			directed[key] = base + i
			m.halfEdges = append(m.halfEdges, HalfEdge{
				Origin: from,
				Face:   int32(f),
				Next:   base + (i+1)%n,
				Twin:   -1,
			})
		}
	}

	for key, he := range directed {
		twin, ok := directed[edgeKey{key.to, key.from}]
		if !ok {
			return nil, fmt.Errorf("geometry: edge %d->%d has no twin, mesh is not closed", key.from, key.to)
		}
		m.halfEdges[he].Twin = twin
		if he < twin {
			m.edges = append(m.edges, [2]int32{key.from, key.to})
		}
	}

	// Map iteration above is unordered; keep the edge list stable so
	// axis selection ties in SAT break the same way every run.
	sort.Slice(m.edges, func(i, j int) bool {
		if m.edges[i][0] != m.edges[j][0] {
			return m.edges[i][0] < m.edges[j][0]
		}
		return m.edges[i][1] < m.edges[j][1]
	})

	return m, nil
}

// VertexCount returns the number of object-space vertices.
func (m *HalfEdgeMesh) VertexCount() int {
	return len(m.vertices)
}

// Vertex returns the object-space position of vertex v.
func (m *HalfEdgeMesh) Vertex(v int) mgl32.Vec3 {
	return m.vertices[v]
}

// FaceCount returns the number of faces.
func (m *HalfEdgeMesh) FaceCount() int {
	return len(m.faceVerts)
}

// FaceVertexIndices returns face f's vertex loop, counter-clockwise
// from outside. The returned slice must not be mutated.
func (m *HalfEdgeMesh) FaceVertexIndices(f int) []int32 {
	return m.faceVerts[f]
}

// Edges returns the unique edges of the mesh as vertex index pairs.
// The returned slice must not be mutated.
func (m *HalfEdgeMesh) Edges() [][2]int32 {
	return m.edges
}

// NewBoxHull builds the half-edge mesh of an axis-aligned box with the
// given half-extents, centered on the origin.
func NewBoxHull(halfExtents mgl32.Vec3) *HalfEdgeMesh {
	hx, hy, hz := halfExtents.X(), halfExtents.Y(), halfExtents.Z()

	vertices := []mgl32.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{+hx, +hy, -hz},
		{-hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{+hx, +hy, +hz},
		{-hx, +hy, +hz},
	}

	faces := [][]int32{
		{1, 2, 6, 5}, // +X
		{3, 0, 4, 7}, // -X
		{2, 3, 7, 6}, // +Y
		{0, 1, 5, 4}, // -Y
		{4, 5, 6, 7}, // +Z
		{3, 2, 1, 0}, // -Z
	}

	m, err := NewHalfEdgeMesh(vertices, faces)
	if err != nil {
		panic(err)
	}
	return m
}
