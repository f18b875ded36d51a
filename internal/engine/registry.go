package engine

import (
	"fmt"

	"github.com/metacontract/indexer/internal/hint"
	"github.com/metacontract/indexer/internal/layout"
)

// Bounds are a resolved iterable's logical limits: From inclusive, To
// exclusive.
type Bounds struct {
	From uint64
	To   uint64
}

// Registry owns all mutable traversal state. Every operation is confined to
// the engine's goroutine; the evaluator only reads from it. The API is mostly bulk so the engine mutates in coarse,
// step-sized phases.
type Registry struct {
	dir *layout.Directory

	queue       map[int][]*Node
	visited     map[ID]*Node
	visitOrder  []ID
	slots       map[ID]string
	values      map[ID]string
	output      map[ID]*Node
	outputOrder []ID
	bounds      map[ID]Bounds
	constraints map[uint32]hint.Constraint

	// valueBySlot caches every word read during the run so one absolute slot
	// is fetched at most once, even when packed members or a struct base
	// share it.
	valueBySlot map[string]string

	byInstancePath map[string]ID
}

// NewRegistry builds an empty registry over a type directory and a loaded
// constraint table.
func NewRegistry(dir *layout.Directory, constraints []hint.Constraint) *Registry {
	cs := make(map[uint32]hint.Constraint, len(constraints))
	for _, c := range constraints {
		cs[c.ID] = c
	}
	return &Registry{
		dir:            dir,
		queue:          make(map[int][]*Node),
		visited:        make(map[ID]*Node),
		slots:          make(map[ID]string),
		values:         make(map[ID]string),
		output:         make(map[ID]*Node),
		bounds:         make(map[ID]Bounds),
		constraints:    cs,
		valueBySlot:    make(map[string]string),
		byInstancePath: make(map[string]ID),
	}
}

// Enqueue appends nodes to the queue for a step. Duplicate identities within
// one step are permitted; Queue merges them at read time.
func (r *Registry) Enqueue(step int, nodes ...*Node) {
	r.queue[step] = append(r.queue[step], nodes...)
}

// Queue returns the merged queue for a step: first occurrence per identity,
// in enqueue order.
func (r *Registry) Queue(step int) []*Node {
	raw := r.queue[step]
	seen := make(map[ID]bool, len(raw))
	out := make([]*Node, 0, len(raw))
	for _, n := range raw {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// MarkVisited moves nodes into the visited table. A different node already
// registered under the same identity is an identity collision and fatal.
func (r *Registry) MarkVisited(nodes []*Node) error {
	for _, n := range nodes {
		if prev, ok := r.visited[n.ID]; ok {
			if prev.InstancePath() != n.InstancePath() {
				return &InvariantError{
					Path: n.InstancePath(),
					Step: n.Step,
					Msg:  fmt.Sprintf("identity %016x collides with %s", uint64(n.ID), prev.InstancePath()),
				}
			}
			continue
		}
		r.visited[n.ID] = n
		r.visitOrder = append(r.visitOrder, n.ID)
		r.byInstancePath[n.InstancePath()] = n.ID
	}
	return nil
}

// Visited returns the node registered under an identity, if any.
func (r *Registry) Visited(id ID) (*Node, bool) {
	n, ok := r.visited[id]
	return n, ok
}

// VisitedByPath resolves an instance path to its visited node.
func (r *Registry) VisitedByPath(path string) (*Node, bool) {
	id, ok := r.byInstancePath[path]
	if !ok {
		return nil, false
	}
	return r.visited[id], true
}

// VisitOrder returns all visited nodes in visit order.
func (r *Registry) VisitOrder() []*Node {
	out := make([]*Node, 0, len(r.visitOrder))
	for _, id := range r.visitOrder {
		out = append(out, r.visited[id])
	}
	return out
}

// RecordSlots writes absolute slots in bulk. Re-recording an identical slot
// is a no-op; a conflicting one is a double write.
func (r *Registry) RecordSlots(slots map[ID]string) error {
	for id, s := range slots {
		if prev, ok := r.slots[id]; ok && prev != s {
			return &InvariantError{Msg: fmt.Sprintf("slot for %016x written twice (%s then %s)", uint64(id), prev, s)}
		}
	}
	for id, s := range slots {
		r.slots[id] = s
	}
	return nil
}

// Slot returns a node's absolute slot, if recorded.
func (r *Registry) Slot(id ID) (string, bool) {
	s, ok := r.slots[id]
	return s, ok
}

// RecordValues writes read values in bulk, updating the run-wide slot cache.
func (r *Registry) RecordValues(values map[ID]string) error {
	for id, v := range values {
		if prev, ok := r.values[id]; ok && prev != v {
			return &InvariantError{Msg: fmt.Sprintf("value for %016x written twice", uint64(id))}
		}
		if _, ok := r.slots[id]; !ok {
			return &InvariantError{Msg: fmt.Sprintf("value for %016x recorded before its slot", uint64(id))}
		}
	}
	for id, v := range values {
		r.values[id] = v
		r.valueBySlot[r.slots[id]] = v
	}
	return nil
}

// Value returns a node's raw word, if read.
func (r *Registry) Value(id ID) (string, bool) {
	v, ok := r.values[id]
	return v, ok
}

// ValueBySlot returns the cached word for an absolute slot already read this
// run.
func (r *Registry) ValueBySlot(slot string) (string, bool) {
	v, ok := r.valueBySlot[slot]
	return v, ok
}

// RecordBounds stores a resolved iterable's bounds. Conflicting re-resolution
// is a double write.
func (r *Registry) RecordBounds(id ID, b Bounds) error {
	if prev, ok := r.bounds[id]; ok && prev != b {
		return &InvariantError{Msg: fmt.Sprintf("bounds for %016x written twice", uint64(id))}
	}
	r.bounds[id] = b
	return nil
}

// BoundsOf returns an iterable's bounds, if resolved.
func (r *Registry) BoundsOf(id ID) (Bounds, bool) {
	b, ok := r.bounds[id]
	return b, ok
}

// EmitPrimitive writes a terminal node into the output table.
func (r *Registry) EmitPrimitive(n *Node) error {
	if _, ok := r.output[n.ID]; ok {
		return &InvariantError{Path: n.InstancePath(), Step: n.Step, Msg: "emitted twice"}
	}
	r.output[n.ID] = n
	r.outputOrder = append(r.outputOrder, n.ID)
	return nil
}

// Output returns the emitted primitives in emission order.
func (r *Registry) Output() []*Node {
	out := make([]*Node, 0, len(r.outputOrder))
	for _, id := range r.outputOrder {
		out = append(out, r.output[id])
	}
	return out
}

// VisitType delegates to the type directory.
func (r *Registry) VisitType(name string) (*layout.Descriptor, error) {
	return r.dir.Describe(name)
}

// Constraint looks up the hint for a constraint id.
func (r *Registry) Constraint(cid uint32) (hint.Constraint, bool) {
	c, ok := r.constraints[cid]
	return c, ok
}

// FindByConstraintID scans visited nodes, in visit order, for the first whose
// class path reduces to cid. The scan is linear in the visited table; the
// engine and the evaluator do not call it.
func (r *Registry) FindByConstraintID(cid uint32) (*Node, bool) {
	for _, id := range r.visitOrder {
		n := r.visited[id]
		if n.ConstraintID() == cid {
			return n, true
		}
	}
	return nil, false
}
