// Package bbsmodule defines the contract a pluggable LBBS module publishes
// to the loader. It is deliberately dependency-free so both the loader and
// every module shared object can import it without pulling in the other.
package bbsmodule

import "context"

// Flags describes module capabilities recognized by the loader.
type Flags uint32

const (
	// FlagExportsGlobalSymbols asks the backend to make the module's symbols
	// visible to modules opened after it. The stdlib plugin package offers no
	// symbol-visibility control, so the backend records this as intent only
	// (see backend.Handle.ExportsGlobalSymbols).
	FlagExportsGlobalSymbols Flags = 1 << iota
)

// Has reports whether the receiver includes all bits of want.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Entrypoints holds the optional lifecycle callables a module provides.
// Load and Unload are required for modules loaded from a shared object;
// Reload is optional.
type Entrypoints struct {
	Load   func(ctx context.Context, self Handle) error
	Reload func(ctx context.Context, self Handle) error
	Unload func(ctx context.Context, self Handle) error
}

// Descriptor is the record a module publishes to the loader.
type Descriptor struct {
	Name        string
	Description string
	Flags       Flags
	Entrypoints Entrypoints
}

// Handle is the self-token the loader hands a module before calling its
// Load entrypoint. It is opaque and non-owning: valid only while the
// module's record has not reached the unloaded state.
type Handle interface {
	// Name returns the canonical name of the module this handle belongs to.
	Name() string

	// Require pins another module by name, loading it transitively if
	// necessary, and returns a reference the caller must release via
	// Unrequire from its own Unload.
	Require(ctx context.Context, name string) (Handle, error)

	// Unrequire releases a reference obtained via Require.
	Unrequire(ctx context.Context, ref Handle) error

	// Logger returns a logger scoped to this module's name.
	Logger() Logger
}

// Registrar is the callback a shared object's constructor invokes to
// register its descriptor with the loader. There is no fixed exported
// symbol name for the descriptor itself: the shared object exports a
// well-known "BBSRegister" function taking a Registrar (see
// backend.RegisterFunc). The backend resolves and calls that symbol; the
// function body calls back into the loader via Registrar.
type Registrar interface {
	Register(d Descriptor) (Handle, error)
	Unregister(d Descriptor) error
}

// Logger is the structured logging interface modules are handed. It mirrors
// the shape the loader itself logs through.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}
