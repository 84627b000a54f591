package ecs

// Entity is a handle into a World. It combines a 32-bit index with a
// 32-bit version so that recycled slots are not confused with live
// entities.
type Entity struct {
	ID      uint32
	Version uint32
}

// Nil is the zero entity; no live entity ever compares equal to it.
var Nil = Entity{}
