// Package extract wires configuration, layout, hints, the slot reader and
// the engine into one run, and optionally persists the outcome.
package extract

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/metacontract/indexer/db"
	"github.com/metacontract/indexer/internal/config"
	"github.com/metacontract/indexer/internal/engine"
	"github.com/metacontract/indexer/internal/ethcall"
	"github.com/metacontract/indexer/internal/hint"
	"github.com/metacontract/indexer/internal/layout"
	"github.com/metacontract/indexer/models"
)

// Runner executes extraction runs for one configuration.
type Runner struct {
	cfg *config.Config
}

// NewRunner creates a runner.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run loads the collaborator documents, drives the engine to completion and,
// when a store is configured, records the run. The returned id is empty when
// persistence is disabled.
func (r *Runner) Run(ctx context.Context) (*engine.Result, string, error) {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	dir, err := layout.LoadDirectory(cfg.LayoutPath)
	if err != nil {
		return nil, "", err
	}
	roots, err := layout.LoadRoots(cfg.RootsPath)
	if err != nil {
		return nil, "", err
	}

	var constraints []hint.Constraint
	if cfg.HintsPath != "" {
		constraints, err = hint.LoadConfig(cfg.HintsPath)
		if err != nil {
			return nil, "", err
		}
		if err := engine.ValidateConstraints(dir, roots, constraints); err != nil {
			return nil, "", err
		}
	}

	accessor, err := loadAccessor(cfg.AccessorPath)
	if err != nil {
		return nil, "", err
	}
	chainID, err := ethcall.ChainID(cfg.Network)
	if err != nil {
		return nil, "", err
	}

	reader, err := ethcall.Dial(cfg.RPCURL, common.HexToAddress(cfg.Contract), accessor,
		ethcall.Options{Timeout: cfg.ReadTimeout})
	if err != nil {
		return nil, "", err
	}

	reg := engine.NewRegistry(dir, constraints)
	eng := engine.New(reg, reader, engine.Options{MaxSteps: cfg.MaxSteps})
	if err := eng.Seed(roots); err != nil {
		return nil, "", err
	}

	if cfg.DBPath == "" {
		res, err := eng.Run(ctx)
		return res, "", err
	}

	gdb, err := db.Connect(cfg.DBPath, false)
	if err != nil {
		return nil, "", err
	}
	runID, err := db.BeginRun(gdb, cfg.Contract, cfg.Network, chainID)
	if err != nil {
		return nil, "", err
	}

	res, err := eng.Run(ctx)
	if err != nil {
		if ferr := db.FailRun(gdb, runID, err); ferr != nil {
			return nil, runID, fmt.Errorf("%w (recording failure: %v)", err, ferr)
		}
		return nil, runID, err
	}

	obs := make([]models.Observation, 0, len(res.Visited))
	for i, n := range res.Visited {
		slot, _ := reg.Slot(n.ID)
		word, _ := reg.Value(n.ID)
		obs = append(obs, models.Observation{
			Seq:  i,
			Path: n.InstancePath(),
			Kind: string(n.Kind),
			Type: n.Type,
			Slot: slot,
			Word: word,
			Step: n.Step,
		})
	}
	if err := db.FinishRun(gdb, runID, res.Steps, res.Outputs, obs); err != nil {
		return res, runID, err
	}
	return res, runID, nil
}

// loadAccessor reads the accessor contract's bytecode from a hex file.
func loadAccessor(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: reading accessor %s: %w", path, err)
	}
	text := strings.TrimSpace(string(raw))
	text = strings.TrimPrefix(text, "0x")
	code, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("extract: accessor %s is not hex: %w", path, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("extract: accessor %s is empty", path)
	}
	return code, nil
}

// FilterOutputs keeps the entries whose instance path matches the glob.
// Dots separate path segments, so "vault.*" selects a struct's fields and
// "users[1].**" a whole subtree. Brackets are literal element markers, not
// character classes.
func FilterOutputs(outputs map[string]string, pattern string) (map[string]string, error) {
	if pattern == "" {
		return outputs, nil
	}
	glob := globForm(pattern)
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("extract: invalid filter pattern %q", pattern)
	}
	kept := make(map[string]string)
	for path, v := range outputs {
		ok, err := doublestar.Match(glob, strings.ReplaceAll(path, ".", "/"))
		if err != nil {
			return nil, fmt.Errorf("extract: filtering %q: %w", path, err)
		}
		if ok {
			kept[path] = v
		}
	}
	return kept, nil
}

// globForm converts a dotted path pattern into doublestar's slash-separated
// form, escaping brackets so element keys match literally.
func globForm(pattern string) string {
	s := strings.ReplaceAll(pattern, ".", "/")
	s = strings.ReplaceAll(s, "[", `\[`)
	return strings.ReplaceAll(s, "]", `\]`)
}

// SortedPaths returns the output keys in lexical order for stable rendering.
func SortedPaths(outputs map[string]string) []string {
	paths := make([]string, 0, len(outputs))
	for p := range outputs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
