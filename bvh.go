package boulder

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/akmonengine/boulder/ecs"
	"github.com/akmonengine/boulder/geometry"
)

// LeafID is an entity's persistent slot in the broadphase BVH.
type LeafID struct {
	ID int32
}

type bvhLeaf struct {
	entity ecs.Entity
	aabb   geometry.AABB
}

type bvhNode struct {
	aabb  geometry.AABB
	left  int32
	right int32
	leaf  int32 // leaf slot for leaf nodes, -1 for internal nodes
}

// BVH is the broadphase index: a binary tree over per-entity leaves,
// rebuilt by median split on the longest centroid axis and refitted in
// place when the leaf set is unchanged. Leaves are preallocated up to
// the world's dynamic-object capacity.
type BVH struct {
	leaves    []bvhLeaf
	numLeaves atomic.Int32

	nodes       []bvhNode
	root        int32
	builtLeaves int
	scratch     []int32
}

// Init sizes the BVH for maxLeaves entities.
func (b *BVH) Init(maxLeaves int) {
	b.leaves = make([]bvhLeaf, maxLeaves)
	b.nodes = make([]bvhNode, 0, 2*maxLeaves)
	b.scratch = make([]int32, 0, maxLeaves)
	b.root = -1
	b.builtLeaves = 0
	b.numLeaves.Store(0)
}

// ReserveLeaf allocates a persistent leaf for e. Exhausting the
// preallocated leaves is a sizing bug and panics.
func (b *BVH) ReserveLeaf(e ecs.Entity) LeafID {
	idx := b.numLeaves.Add(1) - 1
	if int(idx) >= len(b.leaves) {
		panic(fmt.Sprintf("boulder: BVH leaf capacity %d exhausted", len(b.leaves)))
	}
	b.leaves[idx] = bvhLeaf{entity: e}
	return LeafID{ID: idx}
}

// ClearLeaves drops every leaf, ready for the world to be re-seeded.
func (b *BVH) ClearLeaves() {
	b.numLeaves.Store(0)
}

// RebuildOnUpdate forces the next UpdateTree to rebuild from scratch
// instead of refitting.
func (b *BVH) RebuildOnUpdate() {
	b.builtLeaves = -1
}

// UpdateLeaf writes the entity's current world AABB into its leaf.
func (b *BVH) UpdateLeaf(id LeafID, aabb geometry.AABB) {
	b.leaves[id.ID].aabb = aabb
}

// UpdateTree refits the tree if its leaf set is unchanged, otherwise
// rebuilds it.
func (b *BVH) UpdateTree() {
	n := int(b.numLeaves.Load())
	if n == 0 {
		b.root = -1
		b.builtLeaves = 0
		return
	}

	if n == b.builtLeaves && b.root >= 0 {
		b.refit(b.root)
		return
	}

	b.nodes = b.nodes[:0]
	b.scratch = b.scratch[:0]
	for i := 0; i < n; i++ {
		b.scratch = append(b.scratch, int32(i))
	}
	b.root = b.build(b.scratch)
	b.builtLeaves = n
}

// build recursively partitions leaf slots by median split on the
// longest axis of their centroid extent.
func (b *BVH) build(indices []int32) int32 {
	aabb := b.leaves[indices[0]].aabb
	for _, idx := range indices[1:] {
		aabb = aabb.Union(b.leaves[idx].aabb)
	}

	nodeIdx := int32(len(b.nodes))
	if len(indices) == 1 {
		b.nodes = append(b.nodes, bvhNode{aabb: aabb, left: -1, right: -1, leaf: indices[0]})
		return nodeIdx
	}

	centroidBounds := geometry.InvertedAABB()
	for _, idx := range indices {
		centroidBounds = centroidBounds.Expand(b.leaves[idx].aabb.Centroid())
	}
	extent := centroidBounds.Max.Sub(centroidBounds.Min)
	axis := 0
	if extent.Y() > extent.X() && extent.Y() > extent.Z() {
		axis = 1
	} else if extent.Z() > extent.X() && extent.Z() > extent.Y() {
		axis = 2
	}

	sort.Slice(indices, func(i, j int) bool {
		return b.leaves[indices[i]].aabb.Centroid()[axis] < b.leaves[indices[j]].aabb.Centroid()[axis]
	})

	b.nodes = append(b.nodes, bvhNode{aabb: aabb, leaf: -1})

	mid := len(indices) / 2
	left := b.build(indices[:mid])
	right := b.build(indices[mid:])
	b.nodes[nodeIdx].left = left
	b.nodes[nodeIdx].right = right

	return nodeIdx
}

func (b *BVH) refit(nodeIdx int32) geometry.AABB {
	node := &b.nodes[nodeIdx]
	if node.leaf >= 0 {
		node.aabb = b.leaves[node.leaf].aabb
		return node.aabb
	}
	node.aabb = b.refit(node.left).Union(b.refit(node.right))
	return node.aabb
}

// FindOverlaps emits every leaf whose AABB overlaps the query box.
// Pairs are deduplicated by leaf order: only leaves after self in the
// leaf array are reported, so each overlapping pair appears exactly
// once per step.
func (b *BVH) FindOverlaps(self LeafID, aabb geometry.AABB, emit func(other ecs.Entity)) {
	if b.root < 0 {
		return
	}

	stack := [64]int32{}
	top := 0
	stack[top] = b.root
	top++

	for top > 0 {
		top--
		node := &b.nodes[stack[top]]

		if !node.aabb.Overlaps(aabb) {
			continue
		}
		if node.leaf >= 0 {
			if node.leaf > self.ID {
				emit(b.leaves[node.leaf].entity)
			}
			continue
		}
		stack[top] = node.left
		top++
		stack[top] = node.right
		top++
	}
}
