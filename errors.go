package loader

import "errors"

// Error kinds surfaced by the lifecycle coordinator. Each top-level
// operation wraps one of these sentinels with fmt.Errorf("...: %w", ...)
// so callers can use errors.Is against a stable kind while still getting a
// descriptive message.
var (
	ErrNotFound        = errors.New("module not found")
	ErrAlreadyLoaded   = errors.New("module already loaded")
	ErrLoadFailed      = errors.New("module load failed")
	ErrUnloadFailed    = errors.New("module unload failed")
	ErrUnloadRefused   = errors.New("module unload refused")
	ErrReloadQueued    = errors.New("module reload queued")
	ErrReloadRefused   = errors.New("module reload refused: busy")
	ErrWouldCycle      = errors.New("would create a dependency cycle")
	ErrInvalidName     = errors.New("invalid module name")
	ErrStateConflict   = errors.New("conflicting lifecycle operation in progress")
	ErrInternal        = errors.New("internal loader invariant violation")

	// Registry-level errors.
	ErrNameCollision      = errors.New("module name already registered")
	ErrNoOpenInProgress   = errors.New("no open-in-progress record for this name")
	ErrNotRegistered      = errors.New("descriptor not registered")
	ErrInvalidUnregister  = errors.New("unregister only valid from registered, unloaded or failed state")
	ErrRefNotLoaded       = errors.New("ref requires state loaded or registered")

	// Dependency tracker errors.
	ErrDependencyNotFound  = errors.New("dependency module not found")
	ErrDependencyLoadFail  = errors.New("dependency failed to load")
	ErrUnknownRequireRef   = errors.New("unrequire called with an unknown reference")

	// Backend errors.
	ErrBackendNotFound        = errors.New("shared object not found")
	ErrBackendMalformed       = errors.New("shared object malformed")
	ErrBackendSymbolMissing   = errors.New("registration symbol missing")
	ErrBackendConstructorFail = errors.New("module constructor failed")
	ErrBackendUnsupported     = errors.New("dynamic loading unsupported on this platform")
)
