package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path does not exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios resolves a path to scenario files. A file is returned as
// is; a directory yields its *.yaml and *.yml files in name order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SuiteResult is the outcome of one scenario in a suite run.
type SuiteResult struct {
	Path   string  `json:"path"`
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// Passed reports whether the scenario loaded, ran and passed.
func (r SuiteResult) Passed() bool {
	return r.Err == "" && r.Result != nil && r.Result.Pass
}

// RunSuite loads and runs every scenario under path. Load or setup
// failures are recorded per scenario and do not stop the suite.
func RunSuite(ctx context.Context, path string) ([]SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	out := make([]SuiteResult, 0, len(files))
	for _, f := range files {
		sr := SuiteResult{Path: f}
		s, err := LoadScenario(f)
		if err != nil {
			sr.Err = err.Error()
			out = append(out, sr)
			continue
		}
		sr.Name = s.Name
		if sr.Result, err = Run(ctx, s); err != nil {
			sr.Err = err.Error()
		}
		out = append(out, sr)
	}
	return out, nil
}
