package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/metacontract/indexer/internal/layout"
	"github.com/metacontract/indexer/internal/slot"
)

// DefaultMaxSteps bounds pathological schemas. Exceeding the budget is an
// error, not silent truncation.
const DefaultMaxSteps = 16

// SlotReader performs one batched remote read per step. The returned words
// correspond to the requested slots by position; partial success is not
// permitted.
type SlotReader interface {
	ReadSlots(ctx context.Context, slots []string) ([]string, error)
}

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	// MaxSteps caps the number of engine steps. Defaults to DefaultMaxSteps.
	MaxSteps int
	// Clock supplies block.timestamp to hint expressions. Defaults to the
	// system clock.
	Clock Clock
}

// Result is the extraction outcome: a flat map from instance path to raw
// word, plus the visited nodes in visit order so consumers can reconstruct
// the shape.
type Result struct {
	Outputs map[string]string
	Visited []*Node
	Steps   int
}

// Engine advances the traversal one step at a time. Within a step: address,
// read, mark visited, classify, fan out — in that order. Step s+1 observes
// the full effects of step s. All Registry writes of a step are buffered and
// applied only after the read phase succeeds, so a failed step leaves prior
// state intact.
type Engine struct {
	reg      *Registry
	reader   SlotReader
	clock    Clock
	maxSteps int
}

// New builds an engine over a registry and a slot reader.
func New(reg *Registry, reader SlotReader, opts Options) *Engine {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Engine{
		reg:      reg,
		reader:   reader,
		clock:    opts.Clock,
		maxSteps: opts.MaxSteps,
	}
}

// Registry exposes the engine's registry as a read-only view for output
// consumers.
func (e *Engine) Registry() *Registry { return e.reg }

// Seed creates one node per base-slot root, records the supplied absolute
// slots, and enqueues the roots at step 0.
func (e *Engine) Seed(roots []layout.Root) error {
	slots := make(map[ID]string, len(roots))
	for _, root := range roots {
		if err := slot.ValidateWord(root.Slot); err != nil {
			return fmt.Errorf("engine: seeding %s: %w", root.Name, err)
		}
		kind, _, _, err := layout.ParseTypeName(root.Type)
		if err != nil {
			return fmt.Errorf("engine: seeding %s: %w", root.Name, err)
		}
		n := NewRootNode(root, kind)
		slots[n.ID] = root.Slot
		e.reg.Enqueue(0, n)
	}
	return e.reg.RecordSlots(slots)
}

// Run drives the traversal to completion: until the next queue is empty or
// the step budget runs out. Cancellation is honored between steps; an
// inflight read is aborted through its context.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	steps := 0
	for s := 0; ; s++ {
		queue := e.reg.Queue(s)
		if len(queue) == 0 {
			break
		}
		if s >= e.maxSteps {
			return nil, &InvariantError{
				Path: queue[0].InstancePath(),
				Step: s,
				Msg:  fmt.Sprintf("step budget of %d exhausted with %d nodes pending", e.maxSteps, len(queue)),
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("engine: step %d: cancelled: %w", s, err)
		}

		slotWrites, err := e.addressPhase(queue, s)
		if err != nil {
			return nil, err
		}
		valueWrites, err := e.readPhase(ctx, queue, slotWrites, s)
		if err != nil {
			return nil, err
		}

		// Bulk commit. Nothing before this point mutated the registry, so a
		// failed read leaves the previous step's state intact.
		if err := e.reg.RecordSlots(slotWrites); err != nil {
			return nil, err
		}
		if err := e.reg.RecordValues(valueWrites); err != nil {
			return nil, err
		}
		if err := e.reg.MarkVisited(queue); err != nil {
			return nil, err
		}
		steps++

		if err := e.classifyAndFanOut(queue, s); err != nil {
			return nil, err
		}
	}

	outputs := make(map[string]string)
	for _, n := range e.reg.Output() {
		v, _ := e.reg.Value(n.ID)
		outputs[n.InstancePath()] = v
	}
	return &Result{
		Outputs: outputs,
		Visited: e.reg.VisitOrder(),
		Steps:   steps,
	}, nil
}

// addressPhase computes every queued node's absolute slot. A non-root node
// whose parent has no recorded slot is a programmer error.
func (e *Engine) addressPhase(queue []*Node, step int) (map[ID]string, error) {
	writes := make(map[ID]string)
	for _, n := range queue {
		if _, ok := e.reg.Slot(n.ID); ok {
			continue
		}
		if n.IsRoot {
			return nil, &InvariantError{Path: n.InstancePath(), Step: step, Msg: "root has no recorded base slot"}
		}
		parentSlot, ok := e.reg.Slot(n.Parent)
		if !ok {
			return nil, &InvariantError{Path: n.InstancePath(), Step: step, Msg: "parent slot not recorded"}
		}
		parent, ok := e.reg.Visited(n.Parent)
		if !ok {
			return nil, &InvariantError{Path: n.InstancePath(), Step: step, Msg: "parent not visited"}
		}

		var abs string
		var err error
		if parent.IsIterable() {
			abs, err = slot.ElementSlot(parentSlot, n.MappingKey)
		} else {
			abs, err = slot.ChildSlot(parentSlot, n.RelativeSlot)
		}
		if err != nil {
			return nil, fmt.Errorf("engine: step %d: addressing %s: %w", step, n.InstancePath(), err)
		}
		writes[n.ID] = abs
	}
	return writes, nil
}

// readPhase batches one remote read for every queued slot not already known.
// Slots read earlier in the run, and duplicates within the batch, are served
// from the run-wide cache so each distinct slot is fetched exactly once.
func (e *Engine) readPhase(ctx context.Context, queue []*Node, slotWrites map[ID]string, step int) (map[ID]string, error) {
	slotOf := func(n *Node) string {
		if s, ok := slotWrites[n.ID]; ok {
			return s
		}
		s, _ := e.reg.Slot(n.ID)
		return s
	}

	values := make(map[ID]string)
	var batch []string
	posBySlot := make(map[string]int)
	wanters := make([][]ID, 0)

	for _, n := range queue {
		if _, ok := e.reg.Value(n.ID); ok {
			continue
		}
		s := slotOf(n)
		if v, ok := e.reg.ValueBySlot(s); ok {
			values[n.ID] = v
			continue
		}
		if pos, ok := posBySlot[s]; ok {
			wanters[pos] = append(wanters[pos], n.ID)
			continue
		}
		posBySlot[s] = len(batch)
		batch = append(batch, s)
		wanters = append(wanters, []ID{n.ID})
	}

	if len(batch) == 0 {
		return values, nil
	}
	words, err := e.reader.ReadSlots(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("engine: step %d: reading %d slots: %w", step, len(batch), err)
	}
	if len(words) != len(batch) {
		return nil, &InvariantError{Step: step, Msg: fmt.Sprintf("reader returned %d words for %d slots", len(words), len(batch))}
	}
	for i, w := range words {
		for _, id := range wanters[i] {
			values[id] = w
		}
	}
	return values, nil
}

// classifyAndFanOut partitions the step's nodes: primitives are emitted,
// structs fan out members, iterables fan out elements once their bounds
// resolve and defer otherwise. Children are always enqueued at step+1.
func (e *Engine) classifyAndFanOut(queue []*Node, step int) error {
	next := step + 1
	for _, n := range queue {
		switch {
		case n.Kind == layout.KindPrimitive:
			if err := e.reg.EmitPrimitive(n); err != nil {
				return err
			}

		case n.Kind == layout.KindStruct:
			if err := e.fanOutMembers(n, next); err != nil {
				return err
			}

		case n.IsIterable():
			b, ok := e.reg.BoundsOf(n.ID)
			if !ok {
				resolved, rb, err := e.resolveBounds(n, step)
				if err != nil {
					return err
				}
				if !resolved {
					// Bounds reference fields not visited yet. Defer: the
					// fixed point arrives as those fields are read.
					e.reg.Enqueue(next, n)
					continue
				}
				b = rb
				if err := e.reg.RecordBounds(n.ID, b); err != nil {
					return err
				}
			}
			if err := e.fanOutElements(n, b, next); err != nil {
				return err
			}

		default:
			return &InvariantError{Path: n.InstancePath(), Step: step, Msg: fmt.Sprintf("unsupported kind %q", n.Kind)}
		}
	}
	return nil
}

// resolveBounds evaluates an iterable's hint expressions against the latest
// registry state. resolved is false when a referenced field is not yet
// visited; any other evaluation failure is fatal.
func (e *Engine) resolveBounds(n *Node, step int) (resolved bool, b Bounds, err error) {
	c, ok := e.reg.Constraint(n.ConstraintID())
	if !ok {
		// No hint for this collection: it can never resolve by itself. The
		// step budget turns the standing deferral into the fatal case.
		return false, Bounds{}, nil
	}
	from, err := Evaluate(c.From, n, e.reg, e.clock)
	if err == nil {
		var to uint64
		to, err = Evaluate(c.To, n, e.reg, e.clock)
		if err == nil {
			return true, Bounds{From: from, To: to}, nil
		}
	}
	if errors.Is(err, ErrUnresolved) {
		return false, Bounds{}, nil
	}
	return false, Bounds{}, &EvaluationError{
		ConstraintID: c.ID,
		Path:         n.InstancePath(),
		Step:         step,
		Err:          err,
	}
}

func (e *Engine) fanOutMembers(n *Node, next int) error {
	desc, err := e.reg.VisitType(n.Type)
	if err != nil {
		return fmt.Errorf("engine: expanding %s: %w", n.InstancePath(), err)
	}
	children := make([]*Node, 0, len(desc.Members))
	for _, m := range desc.Members {
		kind, _, _, err := layout.ParseTypeName(m.Type)
		if err != nil {
			return fmt.Errorf("engine: expanding %s: %w", n.InstancePath(), err)
		}
		children = append(children, NewMemberNode(n, m, kind, next))
	}
	e.reg.Enqueue(next, children...)
	return nil
}

func (e *Engine) fanOutElements(n *Node, b Bounds, next int) error {
	desc, err := e.reg.VisitType(n.Type)
	if err != nil {
		return fmt.Errorf("engine: expanding %s: %w", n.InstancePath(), err)
	}
	kind, _, _, err := layout.ParseTypeName(desc.ValueType)
	if err != nil {
		return fmt.Errorf("engine: expanding %s: %w", n.InstancePath(), err)
	}
	if b.To <= b.From {
		return nil
	}
	children := make([]*Node, 0, b.To-b.From)
	for i := b.From; i < b.To; i++ {
		key := strconv.FormatUint(i, 10)
		children = append(children, NewElementNode(n, key, desc.ValueType, kind, next))
	}
	e.reg.Enqueue(next, children...)
	return nil
}
