package loader

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/lbbs/loader/bbsmodule"
)

// State is one of the lifecycle coordinator's module states.
type State int

const (
	// StateDiscovered is the state of a record created eagerly on an autoload
	// scan, before its load entrypoint has ever run.
	StateDiscovered State = iota
	// StateOpening is set the moment load(name) creates the record and asks
	// the backend to open the shared object; it lasts until the object's
	// constructor calls back into the registry with Register.
	StateOpening
	// StateRegistered is set once the backend's constructor has registered a
	// descriptor, before the coordinator has invoked its load entrypoint.
	StateRegistered
	// StateLoaded is set once entrypoints.Load returned nil and every
	// require() call it made succeeded.
	StateLoaded
	// StateUnloading is set while entrypoints.Unload is in flight.
	StateUnloading
	// StateUnloaded is the terminal state of a full unload cycle; load may
	// start fresh from here.
	StateUnloaded
	// StateFailed is reachable from any non-terminal state on error.
	StateFailed
)

// String renders the state the way list output and logs show it.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateOpening:
		return "opening"
	case StateRegistered:
		return "registered"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further automatic transition leaves this state
// without an explicit top-level operation.
func (s State) terminal() bool {
	return s == StateUnloaded || s == StateFailed
}

// requireEdge is one entry in a record's requires list: a pinned reference to
// another record, kept in acquisition order so unrequire-on-unload can
// release in reverse.
type requireEdge struct {
	target *ModuleRecord
}

// ModuleRecord is the Registry's per-module entry: a stateful record
// carrying lifecycle, refcounting and dependency-edge data, rather than a
// plain map from name to module.
//
// Reference counts and the state field are mutated only while transitionMu
// is held. requires/requiredBy are mutated only while the owning Graph's
// lock is held, per the dependency-tracker lock-ordering rule: after the
// registry lock, before either endpoint's transitionMu.
type ModuleRecord struct {
	// transitionMu serializes lifecycle operations on this record. Acquired
	// after the registry lock is released for the lookup that produced this
	// record, and never held across a backend Open/Close or an entrypoint
	// call.
	transitionMu sync.Mutex

	name        string
	description string
	flags       bbsmodule.Flags

	entrypoints bbsmodule.Entrypoints
	backing     backendHandle

	state State

	// openDone is the barrier a racing Load of this same canonical name
	// joins while state is StateOpening: created by beginOpen, closed once
	// this open attempt settles at StateLoaded or StateFailed, and nil
	// thereafter. Guarded by transitionMu.
	openDone chan struct{}

	// refcount counts explicit ref() holders plus len(requiredBy). Guarded
	// by transitionMu.
	refcount int

	// requires is kept in acquisition order; unrequire releases from the
	// tail. Guarded by the dependency graph's lock.
	requires []requireEdge
	// requiredBy holds the reverse edges used for unload-refusal and
	// diagnostics. Guarded by the dependency graph's lock.
	requiredBy []*ModuleRecord

	// deferredReload is level-triggered: repeated reload(try_delayed=true)
	// requests coalesce to a single pending flag.
	deferredReload bool

	// loadSeq orders tie-breaking among same-level unload candidates: most
	// recently loaded first. Assigned by the coordinator when the record
	// reaches StateLoaded.
	loadSeq uint64

	selfToken *moduleHandle
}

// backendHandle is the opaque handle to a shared object's backing, modeled
// as an interface so statically-registered modules can carry a nil backing.
type backendHandle interface {
	Close() error
}

// canonicalName lowercases and strips a trailing filesystem extension from
// a module name, so "SMTP", "smtp", and "smtp.so" all name the same
// record.
func canonicalName(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.ToLower(name)
}
