// Package autoload implements the Autoload Orchestrator: load the
// configured list at startup, unload every live module in reverse
// dependency order at shutdown, and optionally watch the modules directory
// and rescan on a cron schedule. Grounded on StdApplication.Init/Start/
// Stop/Run in application.go.
package autoload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/lbbs/loader"
)

// Failure records one autoload entry that failed to load.
type Failure struct {
	Name string
	Err  error
}

// Result is the outcome of LoadAll: "fully loaded" when Failures is empty,
// "partially loaded" otherwise — mirrors StdApplication's
// errors.Join(errs...) accumulation in InitWithApp, kept here as a
// structured list rather than only a joined error so the console can
// render it directly.
type Result struct {
	Loaded   []string
	Failures []Failure
}

func (r Result) Status() string {
	if len(r.Failures) == 0 {
		return "fully loaded"
	}
	return "partially loaded"
}

// ExpandNames resolves an autoload order list against the modules
// directory, expanding glob-style wildcard entries (e.g. "irc-*") with
// gobwas/glob the way the reverseproxy module matches route patterns,
// repurposed here for module-name matching.
func ExpandNames(modulesDir string, order []string) ([]string, error) {
	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		return nil, fmt.Errorf("autoload: read %s: %w", modulesDir, err)
	}

	available := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".so" {
			continue
		}
		available = append(available, e.Name()[:len(e.Name())-len(ext)])
	}

	seen := make(map[string]bool)
	var names []string
	for _, pattern := range order {
		if !containsWildcard(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				names = append(names, pattern)
			}
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("autoload: pattern %q: %w", pattern, err)
		}
		for _, name := range available {
			if g.Match(name) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' || r == '?' || r == '[' {
			return true
		}
	}
	return false
}

// LoadAll loads every name in order, recording failures and continuing
// rather than aborting on the first one.
func LoadAll(ctx context.Context, l *loader.Loader, names []string) Result {
	var res Result
	for _, name := range names {
		if _, err := l.Load(ctx, name); err != nil {
			res.Failures = append(res.Failures, Failure{Name: name, Err: err})
			continue
		}
		res.Loaded = append(res.Loaded, name)
	}
	return res
}

// UnloadAll repeatedly scans for loaded modules with no live dependents
// and unloads them until none remain. Because the requires graph is
// acyclic this always terminates. It returns the joined errors of any
// unloads that failed for a reason other than refusal, plus a stall error
// if a pass makes no progress at all.
func UnloadAll(ctx context.Context, l *loader.Loader) error {
	var errs []error
	for {
		names := l.UnloadOrder()
		if len(names) == 0 {
			return errors.Join(errs...)
		}

		progressed := false
		for _, name := range names {
			if _, err := l.Unload(ctx, name); err != nil {
				if errors.Is(err, loader.ErrUnloadRefused) {
					continue
				}
				errs = append(errs, err)
				continue
			}
			progressed = true
		}
		if !progressed {
			// Nothing left could make progress: acyclicity guarantees this
			// should not happen outside a bug, so surface what remains as
			// diagnostics rather than spinning.
			return errors.Join(append(errs, fmt.Errorf("autoload: unload_all stalled with %d module(s) remaining", len(names)))...)
		}
	}
}

