//go:build !linux && !darwin

package backend

import (
	"errors"

	"github.com/lbbs/loader/bbsmodule"
)

// ErrUnsupported is returned by PluginBackend on platforms where the
// standard library's plugin package does not support plugin.Open.
var ErrUnsupported = errors.New("dynamic loading unsupported on this platform")

// PluginBackend is a stub on platforms the plugin package does not support
// (anything other than linux/darwin). It lets the rest of the module build
// everywhere; Open always fails.
type PluginBackend struct {
	ModulesDir string
}

func NewPluginBackend(modulesDir string) *PluginBackend {
	return &PluginBackend{ModulesDir: modulesDir}
}

func (b *PluginBackend) Open(canonicalName string, flags bbsmodule.Flags, r bbsmodule.Registrar) (Handle, error) {
	return nil, ErrUnsupported
}

func (b *PluginBackend) Close(h Handle) error {
	return ErrUnsupported
}
