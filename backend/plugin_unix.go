//go:build linux || darwin

package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"plugin"

	"github.com/lbbs/loader/bbsmodule"
)

const soExt = ".so"

// PluginBackend is the Backend implementation built on the standard
// library's plugin package: plugin.Open plus Lookup("BBSRegister"). It is
// the idiomatic Go equivalent of dlopen; there is no third-party substitute
// for it anywhere in the retrieved pack.
type PluginBackend struct {
	ModulesDir string
}

// NewPluginBackend builds a Backend rooted at modulesDir.
func NewPluginBackend(modulesDir string) *PluginBackend {
	return &PluginBackend{ModulesDir: modulesDir}
}

type pluginHandle struct {
	p             *plugin.Plugin
	path          string
	exportsGlobal bool
}

func (h *pluginHandle) ExportsGlobalSymbols() bool { return h.exportsGlobal }

// Close is a best-effort no-op: the standard library plugin package offers
// no unload primitive once a shared object is mapped into the process. The
// coordinator still calls Close for symmetry with the lifecycle table and
// so a future platform-specific backend can implement real unmapping.
func (h *pluginHandle) Close() error { return nil }

func (b *PluginBackend) Open(canonicalName string, flags bbsmodule.Flags, r bbsmodule.Registrar) (Handle, error) {
	path := modulePath(b.ModulesDir, canonicalName, soExt)

	p, err := plugin.Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return nil, wrapOpenErr(ErrNotFound, canonicalName, err)
		}
		return nil, wrapOpenErr(ErrMalformed, canonicalName, err)
	}

	sym, err := p.Lookup("BBSRegister")
	if err != nil {
		return nil, wrapOpenErr(ErrSymbolMissing, canonicalName, err)
	}

	register, ok := sym.(RegisterFunc)
	if !ok {
		if fn, ok2 := sym.(func(bbsmodule.Registrar) error); ok2 {
			register = fn
		} else {
			return nil, wrapOpenErr(ErrMalformed, canonicalName, fmt.Errorf("BBSRegister has unexpected type %T", sym))
		}
	}

	if err := register(r); err != nil {
		return nil, wrapOpenErr(ErrConstructorFailed, canonicalName, err)
	}

	return &pluginHandle{p: p, path: path, exportsGlobal: flags.Has(bbsmodule.FlagExportsGlobalSymbols)}, nil
}

func (b *PluginBackend) Close(h Handle) error {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return fmt.Errorf("close: %w", ErrMalformed)
	}
	return ph.Close()
}
