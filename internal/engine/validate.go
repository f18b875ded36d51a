package engine

import (
	"fmt"
	"strings"

	"github.com/metacontract/indexer/internal/hint"
	"github.com/metacontract/indexer/internal/layout"
)

// ValidateConstraints checks every hint against the schema before the run
// starts: each constrained path must denote an iterable reachable from a
// root, and every field referenced inside a bound expression must exist. An
// unknown name is misconfiguration and fatal here, unlike a known-but-unread
// name at evaluation time.
func ValidateConstraints(dir *layout.Directory, roots []layout.Root, constraints []hint.Constraint) error {
	rootTypes := make(map[string]string, len(roots))
	for _, r := range roots {
		rootTypes[r.Name] = r.Type
	}

	for _, c := range constraints {
		kind, err := walkClassPath(dir, rootTypes, c.ClassPath)
		if err != nil {
			return &hint.ConfigError{Hint: c.Path, Err: err}
		}
		if !kind.IsIterable() {
			return &hint.ConfigError{Hint: c.Path, Err: fmt.Errorf("%s is not a collection", c.Path)}
		}
		for _, bound := range []struct {
			name string
			expr hint.Expr
		}{{"from", c.From}, {"to", c.To}} {
			if err := validateExpr(dir, rootTypes, bound.expr); err != nil {
				return &hint.ConfigError{Hint: c.Path, Err: fmt.Errorf("%s: %w", bound.name, err)}
			}
		}
	}
	return nil
}

func validateExpr(dir *layout.Directory, rootTypes map[string]string, e hint.Expr) error {
	switch x := e.(type) {
	case *hint.BinaryExpr:
		if err := validateExpr(dir, rootTypes, x.Left); err != nil {
			return err
		}
		return validateExpr(dir, rootTypes, x.Right)
	case *hint.CallExpr:
		return validateExpr(dir, rootTypes, x.Arg)
	case *hint.PathExpr:
		_, err := walkClassPath(dir, rootTypes, x.ClassPath())
		return err
	default:
		// Literals and block.timestamp reference nothing.
		return nil
	}
}

// walkClassPath descends the schema along a collapsed path and returns the
// kind of the type it lands on. Iterables are stepped through implicitly:
// their members live on the element type.
func walkClassPath(dir *layout.Directory, rootTypes map[string]string, classPath []string) (layout.Kind, error) {
	if len(classPath) == 0 {
		return "", fmt.Errorf("empty path")
	}
	typeName, ok := rootTypes[classPath[0]]
	if !ok {
		return "", fmt.Errorf("unknown name %q: no such root", classPath[0])
	}

	kind, _, _, err := layout.ParseTypeName(typeName)
	if err != nil {
		return "", err
	}
	for _, segment := range classPath[1:] {
		typeName, kind, err = descendToStruct(dir, typeName, kind)
		if err != nil {
			return "", err
		}
		if kind != layout.KindStruct {
			return "", fmt.Errorf("unknown name %q: %s has no members", segment, typeName)
		}
		desc, err := dir.Describe(typeName)
		if err != nil {
			return "", err
		}
		found := false
		for _, m := range desc.Members {
			if m.Label == segment {
				typeName = m.Type
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("unknown name %q: not a member of %s (have %s)",
				segment, typeName, strings.Join(memberLabels(desc), ", "))
		}
		kind, _, _, err = layout.ParseTypeName(typeName)
		if err != nil {
			return "", err
		}
	}
	return kind, nil
}

// descendToStruct steps through any number of iterable envelopes to the
// element type that carries the members.
func descendToStruct(dir *layout.Directory, typeName string, kind layout.Kind) (string, layout.Kind, error) {
	for kind.IsIterable() {
		desc, err := dir.Describe(typeName)
		if err != nil {
			return "", "", err
		}
		typeName = desc.ValueType
		kind, _, _, err = layout.ParseTypeName(typeName)
		if err != nil {
			return "", "", err
		}
	}
	return typeName, kind, nil
}

func memberLabels(desc *layout.Descriptor) []string {
	labels := make([]string, len(desc.Members))
	for i, m := range desc.Members {
		labels[i] = m.Label
	}
	return labels
}
