package boulder

import (
	"math/rand"
	"testing"

	"github.com/akmonengine/boulder/ecs"
	"github.com/akmonengine/boulder/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

type bvhFixture struct {
	world *ecs.World
	bvh   BVH
	ids   []LeafID
	aabbs []geometry.AABB
}

func newBVHFixture(capacity int) *bvhFixture {
	f := &bvhFixture{world: ecs.NewWorld(capacity + 8)}
	f.bvh.Init(capacity)
	return f
}

func (f *bvhFixture) addLeaf(aabb geometry.AABB) {
	e := f.world.CreateEntity()
	id := f.bvh.ReserveLeaf(e)
	f.bvh.UpdateLeaf(id, aabb)
	f.ids = append(f.ids, id)
	f.aabbs = append(f.aabbs, aabb)
}

// pairs runs FindOverlaps for every leaf and counts each emitted pair,
// keyed by sorted entity ids.
func (f *bvhFixture) pairs() map[[2]uint32]int {
	found := make(map[[2]uint32]int)
	for i, id := range f.ids {
		f.bvh.FindOverlaps(id, f.aabbs[i], func(other ecs.Entity) {
			self := f.world.EntityAt(i)
			key := [2]uint32{self.ID, other.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			found[key]++
		})
	}
	return found
}

// checkExact verifies every overlapping pair is reported exactly once
// and no separated pair is reported at all.
func (f *bvhFixture) checkExact(t *testing.T) {
	t.Helper()
	found := f.pairs()

	want := 0
	for i := 0; i < len(f.aabbs); i++ {
		for j := i + 1; j < len(f.aabbs); j++ {
			key := [2]uint32{uint32(i), uint32(j)}
			overlap := f.aabbs[i].Overlaps(f.aabbs[j])
			if overlap {
				want++
				if found[key] != 1 {
					t.Errorf("overlapping pair (%d,%d) reported %d times, want 1", i, j, found[key])
				}
			} else if found[key] != 0 {
				t.Errorf("separated pair (%d,%d) reported %d times, want 0", i, j, found[key])
			}
		}
	}
	total := 0
	for _, n := range found {
		total += n
	}
	if total != want {
		t.Errorf("total reported pairs = %d, want %d", total, want)
	}
}

func randomAABB(rng *rand.Rand) geometry.AABB {
	center := mgl32.Vec3{
		rng.Float32()*20 - 10,
		rng.Float32()*20 - 10,
		rng.Float32()*20 - 10,
	}
	half := mgl32.Vec3{
		rng.Float32()*1.5 + 0.2,
		rng.Float32()*1.5 + 0.2,
		rng.Float32()*1.5 + 0.2,
	}
	return geometry.AABB{Min: center.Sub(half), Max: center.Add(half)}
}

func TestBVHMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := newBVHFixture(64)

	for i := 0; i < 40; i++ {
		f.addLeaf(randomAABB(rng))
	}
	f.bvh.UpdateTree()
	f.checkExact(t)

	// Move every leaf and refit the existing topology.
	for i, id := range f.ids {
		jitter := mgl32.Vec3{
			rng.Float32()*4 - 2,
			rng.Float32()*4 - 2,
			rng.Float32()*4 - 2,
		}
		f.aabbs[i] = geometry.AABB{
			Min: f.aabbs[i].Min.Add(jitter),
			Max: f.aabbs[i].Max.Add(jitter),
		}
		f.bvh.UpdateLeaf(id, f.aabbs[i])
	}
	f.bvh.UpdateTree()
	f.checkExact(t)

	// Adding leaves forces a rebuild.
	for i := 0; i < 10; i++ {
		f.addLeaf(randomAABB(rng))
	}
	f.bvh.UpdateTree()
	f.checkExact(t)
}

func TestBVHEmpty(t *testing.T) {
	f := newBVHFixture(4)
	f.bvh.UpdateTree()

	emitted := false
	f.bvh.FindOverlaps(LeafID{ID: 0}, geometry.AABB{Max: mgl32.Vec3{1, 1, 1}}, func(ecs.Entity) {
		emitted = true
	})
	if emitted {
		t.Error("empty BVH emitted an overlap")
	}
}

func TestBVHSingleLeaf(t *testing.T) {
	f := newBVHFixture(4)
	f.addLeaf(geometry.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}})
	f.bvh.UpdateTree()

	f.bvh.FindOverlaps(f.ids[0], f.aabbs[0], func(ecs.Entity) {
		t.Error("single leaf must not overlap itself")
	})
}

// Spheres on a line, every neighbor pair overlapping: pair count is
// exactly the neighbor count.
func TestBVHGridNeighborPairs(t *testing.T) {
	const n = 16
	f := newBVHFixture(n)

	for i := 0; i < n; i++ {
		center := mgl32.Vec3{float32(i), 0, 0}
		half := mgl32.Vec3{0.6, 0.6, 0.6}
		f.addLeaf(geometry.AABB{Min: center.Sub(half), Max: center.Add(half)})
	}
	f.bvh.UpdateTree()

	total := 0
	for i, id := range f.ids {
		f.bvh.FindOverlaps(id, f.aabbs[i], func(ecs.Entity) { total++ })
	}
	if total != n-1 {
		t.Errorf("pair count = %d, want %d", total, n-1)
	}
}

func TestBVHLeafExhaustionPanics(t *testing.T) {
	f := newBVHFixture(2)
	f.addLeaf(geometry.AABB{})
	f.addLeaf(geometry.AABB{})

	defer func() {
		if recover() == nil {
			t.Error("reserving past capacity should panic")
		}
	}()
	f.bvh.ReserveLeaf(f.world.CreateEntity())
}

func TestBVHClearLeaves(t *testing.T) {
	f := newBVHFixture(4)
	f.addLeaf(geometry.AABB{Max: mgl32.Vec3{1, 1, 1}})
	f.bvh.UpdateTree()

	f.bvh.RebuildOnUpdate()
	f.bvh.ClearLeaves()
	f.bvh.UpdateTree()

	f.bvh.FindOverlaps(f.ids[0], f.aabbs[0], func(ecs.Entity) {
		t.Error("cleared BVH emitted an overlap")
	})
}
