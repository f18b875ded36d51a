// Package engine drives the step-synchronous traversal of a contract's
// storage schema: it unfolds the type graph as values arrive, computes
// absolute slots, batches remote reads, and resolves collection bounds from
// hint expressions against values already read.
package engine

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/metacontract/indexer/internal/hint"
	"github.com/metacontract/indexer/internal/layout"
)

// ID is a node's stable identity, derived deterministically from the parent
// identity and the member label or element key. Identities never come from
// pointers or insertion counters, so two runs over the same schema agree.
type ID uint64

// NodeMeta carries embedder-supplied timestamps for a node. The createdAt and
// updatedAt hint functions read them; they stay nil for on-chain-only runs.
type NodeMeta struct {
	CreatedAt uint64
	UpdatedAt uint64
}

// Node is one visited instance of a type in the schema graph. It is a flat
// record with a kind tag; kind-specific behavior lives in the engine and the
// address calculus. The parent link is an identity resolved through the
// Registry, never a pointer, keeping the traversal graph downward-owned.
type Node struct {
	// ID is the node's identity.
	ID ID
	// Parent is the parent's identity. Meaningless when IsRoot.
	Parent ID
	// IsRoot marks a base-slot root.
	IsRoot bool
	// Kind is copied from the type descriptor.
	Kind layout.Kind
	// Type is the full type name.
	Type string
	// Label is the member label, or the root name.
	Label string
	// RelativeSlot is the slot relative to the parent, a decimal string.
	RelativeSlot string
	// Offset is the byte offset within the slot.
	Offset int
	// MappingKey is the key used to reach this node when the parent is
	// iterable: the decimal index for arrays, the canonical key string for
	// mappings. Empty otherwise.
	MappingKey string
	// Step is the step the node was enqueued at.
	Step int
	// Meta is optional embedder-supplied metadata.
	Meta *NodeMeta

	classPath    []string
	instancePath string
}

// IsIterable reports whether the node fans out by element key.
func (n *Node) IsIterable() bool {
	return n.Kind.IsIterable()
}

// ClassPath is the chain of root/member names from root to this node with
// element positions collapsed, so two elements of one collection share it. It
// is the stable constraint identity.
func (n *Node) ClassPath() []string {
	return n.classPath
}

// InstancePath is the chain including concrete element keys. It keys the
// emitted output and appears in error messages.
func (n *Node) InstancePath() string {
	return n.instancePath
}

// ConstraintID is the 32-bit identity of the node's class path, the key into
// the hint table.
func (n *Node) ConstraintID() uint32 {
	return hint.ConstraintID(n.classPath)
}

func deriveID(parent ID, component string) ID {
	var pb [8]byte
	binary.BigEndian.PutUint64(pb[:], uint64(parent))
	h := sha3.NewLegacyKeccak256()
	h.Write(pb[:])
	h.Write([]byte(component))
	return ID(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// NewRootNode creates a traversal root from a base-slot entry.
func NewRootNode(root layout.Root, kind layout.Kind) *Node {
	return &Node{
		ID:           deriveID(0, root.Name),
		IsRoot:       true,
		Kind:         kind,
		Type:         root.Type,
		Label:        root.Name,
		RelativeSlot: "0",
		Step:         0,
		classPath:    []string{root.Name},
		instancePath: root.Name,
	}
}

// NewMemberNode creates a struct member node under parent.
func NewMemberNode(parent *Node, m layout.Member, kind layout.Kind, step int) *Node {
	cp := make([]string, 0, len(parent.classPath)+1)
	cp = append(cp, parent.classPath...)
	cp = append(cp, m.Label)
	return &Node{
		ID:           deriveID(parent.ID, m.Label),
		Parent:       parent.ID,
		Kind:         kind,
		Type:         m.Type,
		Label:        m.Label,
		RelativeSlot: m.Slot,
		Offset:       m.Offset,
		Step:         step,
		classPath:    cp,
		instancePath: parent.instancePath + "." + m.Label,
	}
}

// NewElementNode creates a collection element node under an iterable parent.
// The element shares the parent's class path: positions collapse.
func NewElementNode(parent *Node, key, typeName string, kind layout.Kind, step int) *Node {
	return &Node{
		ID:           deriveID(parent.ID, "["+key+"]"),
		Parent:       parent.ID,
		Kind:         kind,
		Type:         typeName,
		Label:        parent.Label,
		RelativeSlot: "0",
		MappingKey:   key,
		Step:         step,
		classPath:    parent.classPath,
		instancePath: parent.instancePath + "[" + key + "]",
	}
}
