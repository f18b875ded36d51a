package hint

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a malformed hint entry. It is fatal at load time.
type ConfigError struct {
	Hint string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("hint %q: %v", e.Hint, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Constraint is one loaded hint: the bound expressions for the collection
// denoted by Path, keyed by the 32-bit constraint id of its class path.
type Constraint struct {
	// ID is the constraint identity derived from ClassPath.
	ID uint32
	// Path is the configured field path, as written.
	Path string
	// ClassPath is the path with element positions collapsed.
	ClassPath []string
	// From is the inclusive lower bound expression.
	From Expr
	// To is the exclusive upper bound expression.
	To Expr
}

// rawFile mirrors the hint YAML document.
type rawFile struct {
	Hints map[string]rawHint `yaml:"hints"`
}

type rawHint struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ParseConfig decodes and parses a hint document. Each key must be a bare
// field path (a fullname); each bound is parsed into an expression tree.
// Constraint-id collisions between distinct class paths are a configuration
// bug and fail fast.
func ParseConfig(doc []byte) ([]Constraint, error) {
	var raw rawFile
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("hint: decoding config: %w", err)
	}

	byID := make(map[uint32]string)
	out := make([]Constraint, 0, len(raw.Hints))
	for path, rh := range raw.Hints {
		target, err := Parse(path)
		if err != nil {
			return nil, &ConfigError{Hint: path, Err: err}
		}
		pe, ok := target.(*PathExpr)
		if !ok {
			return nil, &ConfigError{Hint: path, Err: fmt.Errorf("key is not a field path")}
		}

		from, err := Parse(rh.From)
		if err != nil {
			return nil, &ConfigError{Hint: path, Err: fmt.Errorf("from: %w", err)}
		}
		to, err := Parse(rh.To)
		if err != nil {
			return nil, &ConfigError{Hint: path, Err: fmt.Errorf("to: %w", err)}
		}

		classPath := pe.ClassPath()
		id := ConstraintID(classPath)
		if prev, dup := byID[id]; dup {
			return nil, &ConfigError{
				Hint: path,
				Err:  fmt.Errorf("constraint id %08x collides with hint %q", id, prev),
			}
		}
		byID[id] = path

		out = append(out, Constraint{
			ID:        id,
			Path:      path,
			ClassPath: classPath,
			From:      from,
			To:        to,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LoadConfig reads and parses a hint file from disk.
func LoadConfig(path string) ([]Constraint, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hint: reading %s: %w", path, err)
	}
	return ParseConfig(doc)
}
