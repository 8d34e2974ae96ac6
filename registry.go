package loader

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/lbbs/loader/bbsmodule"
)

// Registry is the process-wide table of module records keyed by canonical
// name: a guarded, stateful table rather than a bare map, with its entries
// behind a single mutex.
//
// registryMu protects only the name->record table itself (insertion,
// lookup, removal) and is never held across a module entrypoint call or a
// backend Open/Close. Per-record state is separately guarded by each
// record's own transitionMu.
type Registry struct {
	registryMu sync.RWMutex
	records    map[string]*ModuleRecord

	log   Logger
	owner *Loader
}

// NewRegistry builds an empty Registry. A nil logger is replaced with a
// no-op implementation.
func NewRegistry(log Logger) *Registry {
	if log == nil {
		log = noopLogger{}
	}
	return &Registry{
		records: make(map[string]*ModuleRecord),
		log:     log,
	}
}

// beginOpen creates a new record in StateDiscovered->StateOpening for name
// and inserts it into the table, failing if any record with the same
// canonical name is still in the table (Load first removes an unloaded or
// failed one). Called by the coordinator at the start of
// load(name), before the backend is asked to open anything.
func (r *Registry) beginOpen(name string) (*ModuleRecord, error) {
	cn := canonicalName(name)
	if cn == "" {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	r.registryMu.Lock()
	defer r.registryMu.Unlock()

	if existing, ok := r.records[cn]; ok {
		return existing, fmt.Errorf("%q: %w", cn, ErrNameCollision)
	}

	rec := &ModuleRecord{name: cn, state: StateOpening, openDone: make(chan struct{})}
	r.records[cn] = rec
	return rec, nil
}

// register attaches a descriptor to the open-in-progress record matching
// name and transitions it from StateOpening to StateRegistered. It is the
// Registry half of the register(descriptor) contract; the returned Handle
// is the self-token the backend hands back to the module.
func (r *Registry) register(d moduleDescriptor) (*moduleHandle, error) {
	cn := canonicalName(d.Name)

	r.registryMu.RLock()
	rec, ok := r.records[cn]
	r.registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", cn, ErrNoOpenInProgress)
	}

	rec.transitionMu.Lock()
	defer rec.transitionMu.Unlock()

	if rec.state != StateOpening {
		return nil, fmt.Errorf("%q: register called while state=%s: %w", cn, rec.state, ErrNoOpenInProgress)
	}

	rec.description = d.Description
	rec.flags = d.Flags
	rec.entrypoints = d.Entrypoints
	rec.state = StateRegistered
	rec.selfToken = &moduleHandle{name: cn, record: rec, loader: r.owner}

	return rec.selfToken, nil
}

// unregister is the Registry half of the unregister(descriptor) contract,
// invoked from a shared object's destructors. Only valid from registered,
// unloaded or failed.
func (r *Registry) unregister(name string) error {
	cn := canonicalName(name)

	r.registryMu.RLock()
	rec, ok := r.records[cn]
	r.registryMu.RUnlock()
	if !ok {
		return fmt.Errorf("%q: %w", cn, ErrNotRegistered)
	}

	rec.transitionMu.Lock()
	defer rec.transitionMu.Unlock()

	switch rec.state {
	case StateRegistered, StateUnloaded, StateFailed:
	default:
		return fmt.Errorf("%q: state=%s: %w", cn, rec.state, ErrInvalidUnregister)
	}

	r.registryMu.Lock()
	delete(r.records, cn)
	r.registryMu.Unlock()

	return nil
}

// lookup returns the record for a canonical or raw name, or ErrNotFound.
func (r *Registry) lookup(name string) (*ModuleRecord, error) {
	cn := canonicalName(name)

	r.registryMu.RLock()
	defer r.registryMu.RUnlock()

	rec, ok := r.records[cn]
	if !ok {
		return nil, fmt.Errorf("%q: %w", cn, ErrNotFound)
	}
	return rec, nil
}

// ref increments a record's refcount, failing unless it is loaded or
// registered.
func (r *Registry) ref(rec *ModuleRecord) error {
	rec.transitionMu.Lock()
	defer rec.transitionMu.Unlock()

	if rec.state != StateLoaded && rec.state != StateRegistered {
		return fmt.Errorf("%q: state=%s: %w", rec.name, rec.state, ErrRefNotLoaded)
	}
	rec.refcount++
	return nil
}

// unref decrements a record's refcount. If it reaches zero and a
// deferred-reload is pending, the caller still holds transitionMu when it
// observes deferredReload and enqueues the name, so no wakeup can be lost
// between this decrement and the drainer's next pass.
func (r *Registry) unref(rec *ModuleRecord, queue *reloadQueue) {
	rec.transitionMu.Lock()
	defer rec.transitionMu.Unlock()

	if rec.refcount > 0 {
		rec.refcount--
	}
	if rec.refcount == 0 && rec.deferredReload {
		queue.enqueue(rec.name)
	}
}

// recordSnapshot is the value list() copies out under lock so formatting
// happens without holding registryMu.
type recordSnapshot struct {
	name        string
	description string
	refcount    int
	state       State
}

// list emits one line per record (name, description, refcount, state) to
// w, sorted by name for reproducible output.
func (r *Registry) list(w io.Writer) error {
	snaps := r.snapshot()
	for _, s := range snaps {
		if _, err := fmt.Fprintf(w, "%-20s %-8s refcount=%-3d %s\n", s.name, s.state, s.refcount, s.description); err != nil {
			return err
		}
	}
	return nil
}

// snapshot copies every record's name/description/refcount/state under the
// registry lock plus each record's own transitionMu, for safe formatting or
// programmatic listing.
func (r *Registry) snapshot() []recordSnapshot {
	r.registryMu.RLock()
	recs := make([]*ModuleRecord, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.registryMu.RUnlock()

	out := make([]recordSnapshot, 0, len(recs))
	for _, rec := range recs {
		rec.transitionMu.Lock()
		out = append(out, recordSnapshot{
			name:        rec.name,
			description: rec.description,
			refcount:    rec.refcount,
			state:       rec.state,
		})
		rec.transitionMu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// moduleDescriptor is the Registry-facing view of bbsmodule.Descriptor.
type moduleDescriptor = bbsmodule.Descriptor

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}
