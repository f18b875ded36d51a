// Package hint loads the user-authored performance hints that bound the
// traversal's collections: a YAML map from field path to a {from, to} pair of
// expressions. Expressions are parsed once at load time into trees; the
// engine's evaluator never re-parses.
package hint

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Expr is a parsed hint expression.
type Expr interface {
	fmt.Stringer
	exprNode()
}

// BinaryExpr applies an arithmetic operator to two operands. All arithmetic
// is unsigned 64-bit, modulo 2^64.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// CallExpr invokes one of the built-in functions (createdAt, updatedAt, head,
// tail) on a storage node denoted by its argument.
type CallExpr struct {
	Func string
	Arg  Expr
}

// TimestampExpr is the block.timestamp variable, supplied by the clock.
type TimestampExpr struct{}

// NumberExpr is a decimal literal.
type NumberExpr struct {
	Value uint64
}

// PathExpr denotes a previously-visited storage node by its field path. Each
// indexed segment ("[i]") is rewritten at evaluation time against the
// evaluating node's iterable ancestors.
type PathExpr struct {
	Segments []Segment
}

// Segment is one dot-separated component of a field path.
type Segment struct {
	Name    string
	Indexed bool
}

func (*BinaryExpr) exprNode()    {}
func (*CallExpr) exprNode()      {}
func (*TimestampExpr) exprNode() {}
func (*NumberExpr) exprNode()    {}
func (*PathExpr) exprNode()      {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *CallExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Func, e.Arg)
}

func (*TimestampExpr) String() string { return "block.timestamp" }

func (e *NumberExpr) String() string { return fmt.Sprintf("%d", e.Value) }

func (e *PathExpr) String() string {
	parts := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		if s.Indexed {
			parts[i] = s.Name + "[i]"
		} else {
			parts[i] = s.Name
		}
	}
	return strings.Join(parts, ".")
}

// ClassPath returns the path's segment names with element positions
// collapsed. Two elements of the same collection share a class path.
func (e *PathExpr) ClassPath() []string {
	out := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		out[i] = s.Name
	}
	return out
}

// ConstraintID reduces a class path to its 32-bit identity: the first four
// bytes of keccak256 over the concatenated segments, big-endian.
func ConstraintID(classPath []string) uint32 {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.Join(classPath, "")))
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}
