// Package layout holds the read-only type directory produced by the contract
// compiler: one descriptor per type name, plus the base-slot roots the
// traversal is seeded from.
package layout

import (
	"fmt"
	"strings"
)

// Kind classifies a type descriptor.
type Kind string

const (
	// KindPrimitive is a leaf type occupying (part of) one storage word.
	KindPrimitive Kind = "primitive"
	// KindStruct is an ordered sequence of named members.
	KindStruct Kind = "struct"
	// KindArray is a dynamically-sized sequence of one element type.
	KindArray Kind = "array"
	// KindMapping is a key/value collection.
	KindMapping Kind = "mapping"
)

// IsIterable reports whether values of this kind fan out by index key.
func (k Kind) IsIterable() bool {
	return k == KindArray || k == KindMapping
}

// Member is one struct member in declared order.
type Member struct {
	// Label is the member name.
	Label string
	// Slot is the member's slot relative to the struct base, decimal string.
	Slot string
	// Offset is the byte offset within the slot.
	Offset int
	// Type is the full type name of the member.
	Type string
}

// Descriptor describes one named type. Descriptors are immutable for the
// lifetime of a run.
type Descriptor struct {
	// Name is the full type name the descriptor is indexed under.
	Name string
	// Kind is the envelope kind derived from the type name.
	Kind Kind
	// Members lists struct members in declared order. Structs only.
	Members []Member
	// KeyType is the mapping key type name. Mappings only.
	KeyType string
	// ValueType is the element type for arrays and the value type for
	// mappings.
	ValueType string
}

// ParseTypeName classifies a type name by its leading envelope form and
// extracts the nested type names. Struct members are not carried by the name;
// they come from the descriptor document.
func ParseTypeName(name string) (kind Kind, keyType, valueType string, err error) {
	switch {
	case strings.HasPrefix(name, "t_array("):
		inner, ok := innerParens(name)
		if !ok {
			return "", "", "", fmt.Errorf("malformed array type %q", name)
		}
		return KindArray, "", inner, nil
	case strings.HasPrefix(name, "t_mapping("):
		inner, ok := innerParens(name)
		if !ok {
			return "", "", "", fmt.Errorf("malformed mapping type %q", name)
		}
		key, value, ok := splitKeyValue(inner)
		if !ok {
			return "", "", "", fmt.Errorf("malformed mapping type %q", name)
		}
		return KindMapping, key, value, nil
	case strings.HasPrefix(name, "t_struct("):
		return KindStruct, "", "", nil
	default:
		return KindPrimitive, "", "", nil
	}
}

// innerParens returns the content of the outermost parenthesis pair,
// balancing nested parens so t_mapping(t_address,t_array(t_uint256)) splits
// correctly.
func innerParens(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], true
			}
		}
	}
	return "", false
}

// splitKeyValue splits a mapping's inner "key,value" at the top-level comma.
func splitKeyValue(inner string) (key, value string, ok bool) {
	depth := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return inner[:i], inner[i+1:], true
			}
		}
	}
	return "", "", false
}
