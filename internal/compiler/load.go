package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Errors returned by LoadDir before any CUE is evaluated.
var (
	ErrSpecsNotFound = errors.New("specs directory not found")
	ErrNoCUEFiles    = errors.New("no CUE files found")
	ErrCUELoad       = errors.New("loading CUE files")
)

// LoadDir loads every .cue file in dir as one CUE instance and compiles it.
//
// Returns the compiled pipeline and the number of .cue files found. Nodes
// are returned in declaration order; callers that need dependency order
// pass them through Order.
func LoadDir(dir string) (*Pipeline, int, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrSpecsNotFound, dir)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("specs directory: %w", err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("%w: not a directory: %s", ErrSpecsNotFound, dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("%w in %s", ErrNoCUEFiles, dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, len(files), fmt.Errorf("%w: no instances in %s", ErrCUELoad, dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, len(files), fmt.Errorf("%w: %w", ErrCUELoad, inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, len(files), formatCUEError(err)
	}

	p, err := CompilePipeline(value)
	if err != nil {
		return nil, len(files), err
	}
	return p, len(files), nil
}

// FindCUEFiles returns the .cue files directly inside dir.
// Subdirectories are separate CUE packages and are not descended into.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
