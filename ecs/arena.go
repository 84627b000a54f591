package ecs

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Arena is a per-world bump allocator for narrowphase scratch. Alloc
// may be called from parallel kernels; all allocations are released en
// masse by Reset at the end of a substep.
type Arena struct {
	mu     sync.Mutex
	buf    []mgl32.Vec3
	offset int
}

// NewArena creates an arena backed by capacity vertices.
func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]mgl32.Vec3, capacity)}
}

// AllocVec3 claims n vertices from the arena. If the current block is
// exhausted a larger one is allocated; slices handed out earlier keep
// referencing the old block and stay valid until Reset.
func (a *Arena) AllocVec3(n int) []mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.offset+n > len(a.buf) {
		grown := len(a.buf) * 2
		for grown < n {
			grown *= 2
		}
		a.buf = make([]mgl32.Vec3, grown)
		a.offset = 0
	}
	s := a.buf[a.offset : a.offset+n : a.offset+n]
	a.offset += n
	return s
}

// Reset releases every allocation.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.offset = 0
	a.mu.Unlock()
}
