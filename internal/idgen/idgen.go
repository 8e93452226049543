// Package idgen allocates the monotonic, process-wide-unique 64-bit ids
// the dispatcher assigns to newly created or newly imported schema
// entities, generalized from the schema registry's atomic next-id
// sequence counters.
package idgen

import "sync/atomic"

// Generator hands out strictly increasing uint64 ids starting above a
// configured floor. The zero value is not usable; use New.
type Generator struct {
	counter atomic.Uint64
}

// New creates a Generator whose first Next() call returns floor+1.
// Callers typically seed floor from the highest id already observed in
// the entity store on startup so restarts never reissue an id.
func New(floor uint64) *Generator {
	g := &Generator{}
	g.counter.Store(floor)
	return g
}

// Next returns the next unique id.
func (g *Generator) Next() uint64 {
	return g.counter.Add(1)
}
