package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/metacontract/indexer/internal/hint"
)

// Clock supplies block.timestamp to hint expressions. Injected so tests pin
// it.
type Clock interface {
	Now() uint64
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() uint64 { return uint64(time.Now().Unix()) }

// Evaluate computes a hint expression for the node whose bounds are being
// resolved. References to fields not yet visited (or bounds not yet known)
// return ErrUnresolved, which the engine recovers from by deferring the node;
// every other failure aborts the run.
func Evaluate(e hint.Expr, n *Node, reg *Registry, clock Clock) (uint64, error) {
	switch x := e.(type) {
	case *hint.NumberExpr:
		return x.Value, nil

	case *hint.TimestampExpr:
		return clock.Now(), nil

	case *hint.BinaryExpr:
		l, err := Evaluate(x.Left, n, reg, clock)
		if err != nil {
			return 0, err
		}
		r, err := Evaluate(x.Right, n, reg, clock)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			if r == 0 {
				return 0, ErrDivideByZero
			}
			return l / r, nil
		case "%":
			if r == 0 {
				return 0, ErrDivideByZero
			}
			return l % r, nil
		default:
			return 0, fmt.Errorf("engine: unknown operator %q", x.Op)
		}

	case *hint.PathExpr:
		target, err := resolvePath(x, n, reg)
		if err != nil {
			return 0, err
		}
		v, ok := reg.Value(target.ID)
		if !ok {
			return 0, ErrUnresolved
		}
		return wordToU64(v)

	case *hint.CallExpr:
		arg, ok := x.Arg.(*hint.PathExpr)
		if !ok {
			return 0, fmt.Errorf("engine: argument of %s() is not a field path", x.Func)
		}
		target, err := resolvePath(arg, n, reg)
		if err != nil {
			return 0, err
		}
		switch x.Func {
		case "head", "tail":
			b, ok := reg.BoundsOf(target.ID)
			if !ok {
				return 0, ErrUnresolved
			}
			if x.Func == "head" {
				return b.From, nil
			}
			return b.To, nil
		case "createdAt", "updatedAt":
			if target.Meta == nil {
				return 0, ErrUnresolved
			}
			if x.Func == "createdAt" {
				return target.Meta.CreatedAt, nil
			}
			return target.Meta.UpdatedAt, nil
		default:
			return 0, fmt.Errorf("engine: unknown function %q", x.Func)
		}

	default:
		return 0, fmt.Errorf("engine: unknown expression node %T", e)
	}
}

// resolvePath rewrites a field path against the evaluating node's ancestor
// chain — the k-th "[i]" binds to the k-th iterable ancestor's concrete key —
// and resolves the rewritten instance path to a visited node.
func resolvePath(p *hint.PathExpr, n *Node, reg *Registry) (*Node, error) {
	keys := chainKeys(n, reg)
	path := ""
	ki := 0
	for i, seg := range p.Segments {
		if i > 0 {
			path += "."
		}
		path += seg.Name
		if seg.Indexed {
			if ki >= len(keys) {
				return nil, fmt.Errorf("engine: %s: index %d has no iterable ancestor on %s",
					p, ki+1, n.InstancePath())
			}
			path += "[" + keys[ki] + "]"
			ki++
		}
	}
	target, ok := reg.VisitedByPath(path)
	if !ok {
		return nil, ErrUnresolved
	}
	return target, nil
}

// chainKeys collects the concrete element keys along the node's parent chain,
// root first.
func chainKeys(n *Node, reg *Registry) []string {
	var rev []string
	for cur := n; cur != nil && !cur.IsRoot; {
		if cur.MappingKey != "" {
			rev = append(rev, cur.MappingKey)
		}
		parent, ok := reg.Visited(cur.Parent)
		if !ok {
			break
		}
		cur = parent
	}
	keys := make([]string, len(rev))
	for i, k := range rev {
		keys[len(rev)-1-i] = k
	}
	return keys
}

// wordToU64 interprets a 64-hex word as a big-endian unsigned integer,
// reduced modulo 2^64.
func wordToU64(word string) (uint64, error) {
	if len(word) != 64 {
		return 0, fmt.Errorf("engine: value %q is not a 64-hex word", word)
	}
	v, err := strconv.ParseUint(word[48:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("engine: parsing value %q: %w", word, err)
	}
	return v, nil
}
