// Package backend implements the dynamic loader backend: it opens a
// shared object from disk, triggers the constructor that registers its
// descriptor, and later closes it. This is the one place that knowingly
// stays on the Go standard library's plugin package, since there is no
// ecosystem replacement for dlopen-style loading.
package backend

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lbbs/loader/bbsmodule"
)

var (
	// ErrNotFound is returned when the shared object does not exist at the
	// conventional path.
	ErrNotFound = errors.New("shared object not found")
	// ErrMalformed is returned when the file exists but is not a valid
	// shared object for this platform/toolchain.
	ErrMalformed = errors.New("shared object malformed")
	// ErrSymbolMissing is returned when the shared object has no
	// BBSRegister symbol.
	ErrSymbolMissing = errors.New("registration symbol missing")
	// ErrConstructorFailed is returned when BBSRegister itself returned an
	// error.
	ErrConstructorFailed = errors.New("module constructor failed")
)

// RegisterFunc is the signature every shared object must export as
// "BBSRegister". It receives a Registrar callback and is expected to call
// Register on it with its own Descriptor — the sole registration path.
type RegisterFunc func(r bbsmodule.Registrar) error

// Handle is the opaque backing a loaded module's record points to. Close
// executes the shared object's destructor-equivalent cleanup.
type Handle interface {
	// ExportsGlobalSymbols reports the intent recorded when this handle was
	// opened. The stdlib plugin package has no RTLD_GLOBAL-equivalent
	// control, so this is metadata only (see DESIGN.md); the loader's list
	// output does not show it.
	ExportsGlobalSymbols() bool
	Close() error
}

// Backend is the dynamic loader backend's public contract.
type Backend interface {
	// Open resolves canonicalName to a path under modulesDir, opens it, and
	// invokes its BBSRegister symbol with r. On success it returns the
	// backing handle; the registrar's Register call is expected to have
	// happened during Open, before Open returns.
	Open(canonicalName string, flags bbsmodule.Flags, r bbsmodule.Registrar) (Handle, error)
	// Close releases a handle previously returned by Open.
	Close(h Handle) error
}

// modulePath builds the conventional on-disk path for a canonical module
// name: modulesDir/name + the platform shared-object extension.
func modulePath(modulesDir, canonicalName, ext string) string {
	name := canonicalName
	if !strings.HasSuffix(name, ext) {
		name += ext
	}
	return filepath.Join(modulesDir, name)
}

func wrapOpenErr(kind error, canonicalName string, cause error) error {
	return fmt.Errorf("open %q: %w: %v", canonicalName, kind, cause)
}
