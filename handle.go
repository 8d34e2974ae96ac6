package loader

import (
	"context"
	"fmt"

	"github.com/lbbs/loader/bbsmodule"
)

// moduleHandle is the self-token a module receives at registration. It is
// a non-owning identifier: valid only while its record has not reached
// StateUnloaded, and it never outlives the record it points to.
type moduleHandle struct {
	name   string
	record *ModuleRecord
	loader *Loader
}

var _ bbsmodule.Handle = (*moduleHandle)(nil)

func (h *moduleHandle) Name() string { return h.name }

// Require pins another module by name on behalf of the module that owns
// this handle, loading it transitively if necessary.
func (h *moduleHandle) Require(ctx context.Context, name string) (bbsmodule.Handle, error) {
	if h.loader == nil {
		return nil, fmt.Errorf("%s: %w", h.name, ErrInternal)
	}
	target, err := h.loader.requireFor(ctx, h.record, name)
	if err != nil {
		return nil, err
	}
	return &moduleHandle{name: target.name, record: target, loader: h.loader}, nil
}

// Unrequire releases a reference obtained via Require. ref must be the
// handle returned from the matching Require call.
func (h *moduleHandle) Unrequire(ctx context.Context, ref bbsmodule.Handle) error {
	if h.loader == nil {
		return fmt.Errorf("%s: %w", h.name, ErrInternal)
	}
	mh, ok := ref.(*moduleHandle)
	if !ok || mh.record == nil {
		return fmt.Errorf("%s: %w", h.name, ErrUnknownRequireRef)
	}
	return h.loader.unrequireFor(ctx, h.record, mh.record)
}

func (h *moduleHandle) Logger() bbsmodule.Logger {
	if h.loader == nil {
		return noopLogger{}
	}
	return newNamedLogger(h.name, h.loader.log)
}
