package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/lbbs/loader/backend"
	"github.com/lbbs/loader/eventbus"
)

// Loader is the process-wide facade tying the Registry, Dependency
// Tracker, Dynamic Loader Backend, deferred-reload queue and event bus
// together, the way StdApplication ties module/service registries and the
// reload orchestrator together in application.go. Construct one with
// NewLoader and share it across the startup thread, console thread and
// worker threads running module code.
type Loader struct {
	reg     *Registry
	graph   *depGraph
	queue   *reloadQueue
	backend backend.Backend
	bus     eventbus.Subject
	log     Logger

	loadSeq atomic.Uint64

	drainCtx    context.Context
	drainCancel context.CancelFunc
	drainDone   chan struct{}
}

// NewLoader wires a Loader from its collaborators. bus and log may be nil;
// sensible defaults (a fresh eventbus.Bus, a no-op Logger) are substituted.
func NewLoader(be backend.Backend, bus eventbus.Subject, log Logger) *Loader {
	if log == nil {
		log = noopLogger{}
	}
	if bus == nil {
		bus = eventbus.NewBus(64)
	}

	reg := NewRegistry(log)
	l := &Loader{
		reg:     reg,
		graph:   newDepGraph(),
		queue:   newReloadQueue(),
		backend: be,
		bus:     bus,
		log:     log,
	}
	reg.owner = l

	l.drainCtx, l.drainCancel = context.WithCancel(context.Background())
	l.drainDone = make(chan struct{})
	go func() {
		defer close(l.drainDone)
		l.queue.drain(l.drainCtx, func(ctx context.Context, name string) error {
			_, err := l.Reload(ctx, name, false)
			return err
		})
	}()

	return l
}

// Close stops the deferred-reload drainer. It does not unload any module;
// callers should run autoload.UnloadAll first for a clean shutdown.
func (l *Loader) Close() {
	l.drainCancel()
	<-l.drainDone
}

// beginOrJoin resolves racing Load(name) calls for the same canonical name
// per spec.md §4.3's concurrency-gating rule: a racer either joins the
// barrier of an in-progress open (StateOpening) and re-observes once it
// settles, or returns success immediately if the existing record is
// already loaded. It returns a freshly-begun record (StateOpening, owned by
// this call) once no racing open remains in its way, or a nil record with
// the error already describing the outcome (already-loaded, refused, or a
// canceled wait).
func (l *Loader) beginOrJoin(ctx context.Context, res *OperationResult, name string) (*ModuleRecord, error) {
	for {
		if existing, lookupErr := l.reg.lookup(name); lookupErr == nil {
			existing.transitionMu.Lock()
			state := existing.state
			done := existing.openDone
			existing.transitionMu.Unlock()

			switch state {
			case StateLoaded, StateRegistered:
				res.Status = "already-loaded"
				res.logf("%s already loaded", existing.name)
				return nil, fmt.Errorf("%s: %w", existing.name, ErrAlreadyLoaded)
			case StateOpening:
				if done != nil {
					select {
					case <-done:
					case <-ctx.Done():
						return nil, fmt.Errorf("%s: %w", existing.name, ctx.Err())
					}
				}
				continue
			case StateUnloading:
				return nil, fmt.Errorf("%s: state=%s: %w", existing.name, state, ErrStateConflict)
			default:
				// StateUnloaded or StateFailed: clear the stale slot so
				// beginOpen below doesn't collide with it, then start fresh.
				l.reg.registryMu.Lock()
				if cur, ok := l.reg.records[existing.name]; ok && cur == existing {
					delete(l.reg.records, existing.name)
				}
				l.reg.registryMu.Unlock()
			}
		}

		rec, err := l.reg.beginOpen(name)
		if err != nil {
			if errors.Is(err, ErrNameCollision) {
				// Another goroutine won the race to beginOpen between our
				// lookup above and here; loop back and join its barrier.
				continue
			}
			return nil, fmt.Errorf("load %q: %w", name, err)
		}
		return rec, nil
	}
}

// Load runs the load(name) transition chain:
// unloaded/discovered -> opening -> registered -> loaded (or failed).
func (l *Loader) Load(ctx context.Context, name string) (*OperationResult, error) {
	res := newResult("ok")

	rec, err := l.beginOrJoin(ctx, res, name)
	if err != nil {
		return res, err
	}

	// Extend the logical invocation chain with this module's name before
	// doing anything else, so every nested require made from its
	// entrypoints (below) carries the chain forward. A module's own name
	// already being in the chain means this Load was reached recursively
	// from its own in-progress load — self-cycle, refused immediately.
	chainCtx, cycleErr := withChainName(ctx, rec.name)
	if cycleErr != nil {
		l.failRecord(rec, cycleErr)
		return res, fmt.Errorf("load %q: %w", name, cycleErr)
	}
	ctx = chainCtx

	l.bus.Publish(ctx, eventbus.EventModuleLoading, rec.name, nil)

	r := &registrar{l: l.reg}
	h, err := l.backend.Open(rec.name, rec.flags, r)
	if err != nil {
		l.failRecord(rec, err)
		return res, fmt.Errorf("load %q: %w", name, errors.Join(ErrLoadFailed, err))
	}
	rec.transitionMu.Lock()
	rec.backing = handleAdapter{h}
	if rec.state != StateRegistered {
		rec.transitionMu.Unlock()
		l.failRecord(rec, ErrInternal)
		return res, fmt.Errorf("load %q: constructor never registered: %w", name, ErrInternal)
	}
	entry := rec.entrypoints.Load
	rec.transitionMu.Unlock()

	l.bus.Publish(ctx, eventbus.EventModuleRegistered, rec.name, nil)

	if entry != nil {
		if err := entry(ctx, rec.selfToken); err != nil {
			_ = l.backend.Close(h)
			l.failRecord(rec, err)
			return res, fmt.Errorf("load %q: %w", name, errors.Join(ErrLoadFailed, err))
		}
	}

	rec.transitionMu.Lock()
	rec.state = StateLoaded
	rec.loadSeq = l.loadSeq.Add(1)
	rec.deferredReload = false
	closeOpenDone(rec)
	rec.transitionMu.Unlock()

	l.bus.Publish(ctx, eventbus.EventModuleLoaded, rec.name, nil)
	res.logf("%s loaded", rec.name)
	return res, nil
}

// closeOpenDone releases any racer blocked joining this record's open
// barrier. Must be called with rec.transitionMu held, at the point this
// open attempt settles (StateLoaded or StateFailed) and nowhere else, so
// each barrier is closed exactly once.
func closeOpenDone(rec *ModuleRecord) {
	if rec.openDone != nil {
		close(rec.openDone)
		rec.openDone = nil
	}
}

func (l *Loader) failRecord(rec *ModuleRecord, cause error) {
	rec.transitionMu.Lock()
	rec.state = StateFailed
	closeOpenDone(rec)
	rec.transitionMu.Unlock()
	l.bus.Publish(context.Background(), eventbus.EventModuleFailed, rec.name, map[string]any{"error": cause.Error()})
	l.log.Error("module failed", "module", rec.name, "error", cause)
}

// Unload runs the unload(name) transition: loaded -> unloading ->
// unloaded. Refused if refcount > 0 or required-by is non-empty.
func (l *Loader) Unload(ctx context.Context, name string) (*OperationResult, error) {
	res := newResult("ok")

	rec, err := l.reg.lookup(name)
	if err != nil {
		return res, fmt.Errorf("unload %q: %w", name, err)
	}

	if err := l.unloadOne(ctx, rec); err != nil {
		return res, err
	}
	res.logf("%s unloaded", rec.name)
	return res, nil
}

// unloadOne runs the unload transition for a single record, refusing it
// unless the record is loaded with refcount zero and no live dependents. Per spec.md §5's
// lock order — registry, then the dependency graph, then a record's own
// transitionMu — the requiredBy check below takes graph.mu before
// transitionMu, never the other way around: a reversed order here would let
// one goroutine unloading rec (holding rec.transitionMu, waiting on
// graph.mu) deadlock against another goroutine mid-unload of a module that
// requires rec (holding graph.mu, waiting on rec.transitionMu inside
// Registry.unref).
func (l *Loader) unloadOne(ctx context.Context, rec *ModuleRecord) error {
	l.graph.mu.Lock()
	rec.transitionMu.Lock()
	if rec.state != StateLoaded {
		state := rec.state
		rec.transitionMu.Unlock()
		l.graph.mu.Unlock()
		return fmt.Errorf("%s: state=%s: %w", rec.name, state, ErrStateConflict)
	}
	if rec.refcount > 0 {
		refcount := rec.refcount
		rec.transitionMu.Unlock()
		l.graph.mu.Unlock()
		return fmt.Errorf("%s: refcount=%d: %w", rec.name, refcount, ErrUnloadRefused)
	}
	if len(rec.requiredBy) > 0 {
		requiredBy := len(rec.requiredBy)
		rec.transitionMu.Unlock()
		l.graph.mu.Unlock()
		return fmt.Errorf("%s: required by %d module(s): %w", rec.name, requiredBy, ErrUnloadRefused)
	}

	rec.state = StateUnloading
	unloadFn := rec.entrypoints.Unload
	backing := rec.backing
	selfToken := rec.selfToken
	rec.transitionMu.Unlock()
	l.graph.mu.Unlock()

	l.bus.Publish(ctx, eventbus.EventModuleUnloading, rec.name, nil)

	if unloadFn != nil {
		if err := unloadFn(ctx, selfToken); err != nil {
			l.failRecord(rec, err)
			return fmt.Errorf("unload %q: %w", rec.name, errors.Join(ErrUnloadFailed, err))
		}
	}

	// Release every requires edge this module still holds, in reverse of
	// acquisition order.
	l.graph.mu.Lock()
	for i := len(rec.requires) - 1; i >= 0; i-- {
		dep := rec.requires[i].target
		_ = l.graph.removeEdge(rec, dep)
		l.reg.unref(dep, l.queue)
	}
	rec.requires = nil
	l.graph.mu.Unlock()

	if backing != nil {
		_ = backing.Close()
	}

	rec.transitionMu.Lock()
	rec.state = StateUnloaded
	rec.transitionMu.Unlock()

	l.bus.Publish(ctx, eventbus.EventModuleUnloaded, rec.name, nil)
	return nil
}

// Reload runs the reload rules. With refcount==0 it is a
// full unload+load. With refcount>0 and tryDelayed it sets the
// level-triggered deferred-reload bit and returns "queued". With
// refcount>0 and !tryDelayed it refuses.
func (l *Loader) Reload(ctx context.Context, name string, tryDelayed bool) (*OperationResult, error) {
	res := newResult("ok")

	rec, err := l.reg.lookup(name)
	if err != nil {
		return res, fmt.Errorf("reload %q: %w", name, err)
	}

	rec.transitionMu.Lock()
	if rec.state != StateLoaded {
		state := rec.state
		rec.transitionMu.Unlock()
		return res, fmt.Errorf("%s: state=%s: %w", rec.name, state, ErrStateConflict)
	}
	refs := rec.refcount
	if refs > 0 {
		if !tryDelayed {
			rec.transitionMu.Unlock()
			return res, fmt.Errorf("%s: refcount=%d: %w", rec.name, refs, ErrReloadRefused)
		}
		rec.deferredReload = true
		rec.transitionMu.Unlock()
		l.bus.Publish(ctx, eventbus.EventModuleReloadQueued, rec.name, nil)
		res.Status = "queued"
		res.logf("%s reload queued (refcount=%d)", rec.name, refs)
		return res, fmt.Errorf("%s: %w", rec.name, ErrReloadQueued)
	}
	rec.transitionMu.Unlock()

	if err := l.unloadOne(ctx, rec); err != nil {
		return res, fmt.Errorf("reload %q: unload step: %w", name, err)
	}
	if _, err := l.Load(ctx, rec.name); err != nil {
		return res, fmt.Errorf("reload %q: load step: %w", name, err)
	}

	l.bus.Publish(ctx, eventbus.EventModuleReloadComplete, rec.name, nil)
	res.logf("%s reloaded", rec.name)
	return res, nil
}

// List writes one line per record to w.
func (l *Loader) List(w io.Writer) error {
	return l.reg.list(w)
}

// RecordInfo is the exported view of a record used by Snapshot, for
// callers like autoload.UnloadAll that need programmatic access instead of
// formatted text.
type RecordInfo struct {
	Name        string
	Description string
	Refcount    int
	State       State
}

// UnloadOrder returns every loaded module's name in topological order of
// the requires graph, leaves first. It is an attempt order only:
// autoload.UnloadAll still must skip and retry any name whose required-by
// is non-empty at the moment it is attempted, since the graph may change
// between the snapshot here and the actual unload calls.
func (l *Loader) UnloadOrder() []string {
	l.reg.registryMu.RLock()
	roots := make([]*ModuleRecord, 0, len(l.reg.records))
	for _, rec := range l.reg.records {
		rec.transitionMu.Lock()
		if rec.state == StateLoaded {
			roots = append(roots, rec)
		}
		rec.transitionMu.Unlock()
	}
	l.reg.registryMu.RUnlock()

	l.graph.mu.Lock()
	order := l.graph.topoOrderForUnload(roots)
	l.graph.mu.Unlock()

	names := make([]string, len(order))
	for i, rec := range order {
		names[i] = rec.name
	}
	return names
}

// Snapshot returns the current name/description/refcount/state of every
// known record, sorted by name.
func (l *Loader) Snapshot() []RecordInfo {
	snaps := l.reg.snapshot()
	out := make([]RecordInfo, len(snaps))
	for i, s := range snaps {
		out[i] = RecordInfo{Name: s.name, Description: s.description, Refcount: s.refcount, State: s.state}
	}
	return out
}

// requireFor backs moduleHandle.Require: dependent pins name, loading it
// transitively if needed. Bounded per the dependency tracker's rule: a
// require naming a module already mid-open higher up this same logical
// chain (carried on ctx by Load, see withChainName) is refused as a cycle
// before any edge is recorded or any load is attempted — this is what
// catches a mutual cycle (a requires b, b requires a) on whichever side
// closes the loop, instead of only on the side that happens to check its
// graph reachability last.
func (l *Loader) requireFor(ctx context.Context, dependent *ModuleRecord, name string) (*ModuleRecord, error) {
	cn := canonicalName(name)

	if chainContains(ctx, cn) {
		return nil, fmt.Errorf("%s -> %s: %w", dependent.name, cn, ErrWouldCycle)
	}

	dep, err := l.reg.lookup(cn)
	if err == nil {
		// A record left unloaded or failed is loaded afresh, like a missing one.
		dep.transitionMu.Lock()
		stale := dep.state.terminal()
		dep.transitionMu.Unlock()
		if stale {
			err = ErrNotFound
		}
	}
	if err != nil {
		if _, loadErr := l.Load(ctx, cn); loadErr != nil && !errors.Is(loadErr, ErrAlreadyLoaded) {
			return nil, fmt.Errorf("%s requires %s: %w", dependent.name, cn, errors.Join(ErrDependencyLoadFail, loadErr))
		}
		dep, err = l.reg.lookup(cn)
		if err != nil {
			return nil, fmt.Errorf("%s requires %s: %w", dependent.name, cn, ErrDependencyNotFound)
		}
	}

	l.graph.mu.Lock()
	if l.graph.wouldCycle(dependent, dep) {
		l.graph.mu.Unlock()
		return nil, fmt.Errorf("%s -> %s: %w", dependent.name, cn, ErrWouldCycle)
	}
	l.graph.addEdge(dependent, dep)
	l.graph.mu.Unlock()

	if err := l.reg.ref(dep); err != nil {
		l.graph.mu.Lock()
		_ = l.graph.removeEdge(dependent, dep)
		l.graph.mu.Unlock()
		return nil, fmt.Errorf("%s requires %s: %w", dependent.name, cn, err)
	}

	return dep, nil
}

// unrequireFor backs moduleHandle.Unrequire.
func (l *Loader) unrequireFor(ctx context.Context, dependent, dependency *ModuleRecord) error {
	l.graph.mu.Lock()
	err := l.graph.removeEdge(dependent, dependency)
	l.graph.mu.Unlock()
	if err != nil {
		return err
	}
	l.reg.unref(dependency, l.queue)
	return nil
}

// handleAdapter adapts backend.Handle to the record's own minimal
// backendHandle interface.
type handleAdapter struct {
	h backend.Handle
}

func (a handleAdapter) Close() error { return a.h.Close() }
