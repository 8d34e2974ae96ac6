package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// chainKey is the context key under which the current logical
// load/require invocation chain is carried: requiring a module already in
// opening by the same logical invocation chain is treated as a cycle.
// Unlike a package-level map, this travels with the call stack via
// context.Context, so two unrelated goroutines loading unrelated chains
// that happen to name the same dependency are not confused with a single
// self-referential chain.
type chainKey struct{}

// withChainName returns a context carrying name added to the current
// chain, or an error if name is already present — i.e. this same logical
// chain is already in the middle of opening it. Called by Load when it
// begins opening a module, so every nested require made from that
// module's entrypoints carries the chain forward.
func withChainName(ctx context.Context, name string) (context.Context, error) {
	existing, _ := ctx.Value(chainKey{}).(map[string]bool)
	if existing[name] {
		return ctx, fmt.Errorf("%s: %w", name, ErrWouldCycle)
	}
	next := make(map[string]bool, len(existing)+1)
	for k := range existing {
		next[k] = true
	}
	next[name] = true
	return context.WithValue(ctx, chainKey{}, next), nil
}

// chainContains reports whether name is already part of the current
// logical load/require chain carried on ctx — the read-only counterpart
// to withChainName's bound on transitive autoload during a require.
// Unlike withChainName, this never mutates the chain: requireFor uses it
// to refuse immediately when the target is an ancestor already mid-Load,
// without waiting for that ancestor's requires edge to be recorded.
func chainContains(ctx context.Context, name string) bool {
	chain, _ := ctx.Value(chainKey{}).(map[string]bool)
	return chain[name]
}

// depGraph tracks the requires/required-by edges across all loaded
// records and enforces acyclicity once an edge is actually recorded. Its
// lock is ordered after the registry lock and before either endpoint's
// transitionMu, since here — unlike a dependency graph built once at
// startup and never touched again — it is mutated continuously by
// running modules. Bounding transitive autoload during an in-flight require chain
// is handled separately, by the context-carried chain in withChainName /
// chainContains above — that catches a would-be cycle before either side
// finishes opening, so this graph only ever needs to reason about edges
// whose dependency is already loaded.
type depGraph struct {
	mu sync.Mutex
}

func newDepGraph() *depGraph {
	return &depGraph{}
}

// wouldCycle reports whether adding an edge dependent->dependency would
// close a cycle, i.e. whether dependency can already reach dependent.
func (g *depGraph) wouldCycle(dependent, dependency *ModuleRecord) bool {
	if dependent == dependency {
		return true
	}
	visited := make(map[*ModuleRecord]bool)
	var reaches func(from, target *ModuleRecord) bool
	reaches = func(from, target *ModuleRecord) bool {
		if from == target {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		for _, e := range from.requires {
			if reaches(e.target, target) {
				return true
			}
		}
		return false
	}
	return reaches(dependency, dependent)
}

// addEdge records dependent -> dependency after the caller has already
// confirmed dependency is loaded and the edge is acyclic. Must be called
// with g.mu held.
func (g *depGraph) addEdge(dependent, dependency *ModuleRecord) {
	dependent.requires = append(dependent.requires, requireEdge{target: dependency})
	dependency.requiredBy = append(dependency.requiredBy, dependent)
}

// removeEdge releases the most recent requires edge from dependent to
// dependency, releasing in reverse of acquisition order. Must be called
// with g.mu held.
func (g *depGraph) removeEdge(dependent, dependency *ModuleRecord) error {
	for i := len(dependent.requires) - 1; i >= 0; i-- {
		if dependent.requires[i].target == dependency {
			dependent.requires = append(dependent.requires[:i], dependent.requires[i+1:]...)
			g.removeRequiredBy(dependency, dependent)
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", dependent.name, dependency.name, ErrUnknownRequireRef)
}

func (g *depGraph) removeRequiredBy(dependency *ModuleRecord, dependent *ModuleRecord) {
	for i, d := range dependency.requiredBy {
		if d == dependent {
			dependency.requiredBy = append(dependency.requiredBy[:i], dependency.requiredBy[i+1:]...)
			return
		}
	}
}

// topoOrderForUnload returns records reachable from roots in leaves-first
// order (a record appears only after everything it requires), using a
// DFS-with-temp-mark cycle-safe traversal generalized from a static
// build-time dependency list to the live requires graph. Ties at the same
// level are broken by loadSeq descending (most-recently-loaded first).
func (g *depGraph) topoOrderForUnload(roots []*ModuleRecord) []*ModuleRecord {
	sorted := append([]*ModuleRecord(nil), roots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].loadSeq > sorted[j].loadSeq })

	visited := make(map[*ModuleRecord]bool)
	var order []*ModuleRecord

	var visit func(rec *ModuleRecord)
	visit = func(rec *ModuleRecord) {
		if visited[rec] {
			return
		}
		visited[rec] = true
		deps := append([]requireEdge(nil), rec.requires...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].target.loadSeq > deps[j].target.loadSeq })
		for _, e := range deps {
			visit(e.target)
		}
		order = append(order, rec)
	}

	for _, r := range sorted {
		visit(r)
	}
	return order
}
