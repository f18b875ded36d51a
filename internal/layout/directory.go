package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrMissingType reports a referenced type name with no descriptor. The
// traversal treats it as fatal.
type ErrMissingType struct {
	Name string
}

func (e *ErrMissingType) Error() string {
	return fmt.Sprintf("layout: no descriptor for type %q", e.Name)
}

// Directory is the read-only index of type descriptors. It is immutable after
// construction and safe to share as a read-only view.
type Directory struct {
	types map[string]*Descriptor
}

// NewDirectory builds a directory from pre-parsed descriptors.
func NewDirectory(descs []*Descriptor) *Directory {
	m := make(map[string]*Descriptor, len(descs))
	for _, d := range descs {
		m[d.Name] = d
	}
	return &Directory{types: m}
}

// Describe returns the descriptor for a full type name.
func (d *Directory) Describe(name string) (*Descriptor, error) {
	desc, ok := d.types[name]
	if !ok {
		return nil, &ErrMissingType{Name: name}
	}
	return desc, nil
}

// Names returns all indexed type names, sorted. Used for diagnostics.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.types))
	for name := range d.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// rawType mirrors one entry of the compiler's storageLayout "types" table.
type rawType struct {
	Label   string `json:"label"`
	Members []struct {
		Label  string `json:"label"`
		Slot   string `json:"slot"`
		Offset int    `json:"offset"`
		Type   string `json:"type"`
	} `json:"members"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Base  string `json:"base"`
}

// ParseDirectory decodes the compiler's "types" table (type name → raw
// descriptor) into a Directory. The envelope kind always comes from the type
// name; the document supplies struct members, and its key/element types, when
// present, take precedence over the ones derived from the name.
func ParseDirectory(doc []byte) (*Directory, error) {
	var raw map[string]rawType
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("layout: decoding types table: %w", err)
	}

	descs := make([]*Descriptor, 0, len(raw))
	for name, rt := range raw {
		kind, keyType, valueType, err := ParseTypeName(name)
		if err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
		desc := &Descriptor{
			Name:      name,
			Kind:      kind,
			KeyType:   keyType,
			ValueType: valueType,
		}
		switch kind {
		case KindStruct:
			if len(rt.Members) == 0 {
				return nil, fmt.Errorf("layout: struct type %q has no members", name)
			}
			for _, m := range rt.Members {
				desc.Members = append(desc.Members, Member{
					Label:  m.Label,
					Slot:   m.Slot,
					Offset: m.Offset,
					Type:   m.Type,
				})
			}
		case KindArray:
			// solc records the element type under "base"; prefer it over the
			// name-derived form when present.
			if rt.Base != "" {
				desc.ValueType = rt.Base
			}
		case KindMapping:
			if rt.Key != "" {
				desc.KeyType = rt.Key
			}
			if rt.Value != "" {
				desc.ValueType = rt.Value
			}
		}
		descs = append(descs, desc)
	}
	return NewDirectory(descs), nil
}

// Root is one base-slot entry the traversal is seeded from.
type Root struct {
	// Name is the root's identifier in the source contract.
	Name string
	// Type is the root's full type name.
	Type string
	// Slot is the absolute base slot, 64 lowercase hex characters.
	Slot string
}

// ParseRoots decodes the base-slots document: root name → {type, slot}.
func ParseRoots(doc []byte) ([]Root, error) {
	var raw map[string]struct {
		Type string `json:"type"`
		Slot string `json:"slot"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("layout: decoding base slots: %w", err)
	}
	roots := make([]Root, 0, len(raw))
	for name, r := range raw {
		if len(r.Slot) != 64 || strings.ToLower(r.Slot) != r.Slot {
			return nil, fmt.Errorf("layout: base slot for %q is not 64 lowercase hex characters", name)
		}
		roots = append(roots, Root{Name: name, Type: r.Type, Slot: r.Slot})
	}
	// Deterministic seeding order regardless of map iteration.
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
	return roots, nil
}

// LoadDirectory reads and parses a types table from disk.
func LoadDirectory(path string) (*Directory, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: reading %s: %w", path, err)
	}
	return ParseDirectory(doc)
}

// LoadRoots reads and parses a base-slots document from disk.
func LoadRoots(path string) ([]Root, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: reading %s: %w", path, err)
	}
	return ParseRoots(doc)
}
