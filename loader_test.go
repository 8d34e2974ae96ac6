package loader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lbbs/loader/backend"
	"github.com/lbbs/loader/bbsmodule"
)

const (
	eventualTimeout = 2 * time.Second
	eventualTick    = 10 * time.Millisecond
)

// fakeHandle and fakeBackend let these tests drive the full Lifecycle
// Coordinator state machine without a real shared object on disk: each
// fake "module" is really just a Go closure registered directly with the
// Registrar the real backend would otherwise construct from a plugin
// symbol lookup.
type fakeHandle struct{ closed bool }

func (h *fakeHandle) ExportsGlobalSymbols() bool { return false }
func (h *fakeHandle) Close() error                { h.closed = true; return nil }

type fakeBackend struct {
	descriptors map[string]bbsmodule.Descriptor
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{descriptors: make(map[string]bbsmodule.Descriptor)}
}

func (b *fakeBackend) register(d bbsmodule.Descriptor) {
	b.descriptors[d.Name] = d
}

func (b *fakeBackend) Open(name string, flags bbsmodule.Flags, r bbsmodule.Registrar) (backend.Handle, error) {
	d, ok := b.descriptors[name]
	if !ok {
		return nil, backend.ErrNotFound
	}
	if _, err := r.Register(d); err != nil {
		return nil, err
	}
	return &fakeHandle{}, nil
}

func (b *fakeBackend) Close(h backend.Handle) error {
	return h.Close()
}

func TestLoadUnloadSimple(t *testing.T) {
	be := newFakeBackend()
	var loadedCalls, unloadedCalls int
	be.register(bbsmodule.Descriptor{
		Name: "a",
		Entrypoints: bbsmodule.Entrypoints{
			Load:   func(ctx context.Context, self bbsmodule.Handle) error { loadedCalls++; return nil },
			Unload: func(ctx context.Context, self bbsmodule.Handle) error { unloadedCalls++; return nil },
		},
	})

	l := NewLoader(be, nil, nil)
	defer l.Close()
	ctx := context.Background()

	res, err := l.Load(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "ok", res.Status)
	require.Equal(t, 1, loadedCalls)

	info := snapshotOf(t, l, "a")
	require.Equal(t, StateLoaded, info.State)
	require.Zero(t, info.Refcount)

	_, err = l.Unload(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, unloadedCalls)
}

func TestLoadAlreadyLoaded(t *testing.T) {
	be := newFakeBackend()
	be.register(bbsmodule.Descriptor{Name: "a"})

	l := NewLoader(be, nil, nil)
	defer l.Close()
	ctx := context.Background()

	_, err := l.Load(ctx, "a")
	require.NoError(t, err)

	_, err = l.Load(ctx, "a")
	require.ErrorIs(t, err, ErrAlreadyLoaded)
}

func TestDependencyRefcounting(t *testing.T) {
	be := newFakeBackend()
	be.register(bbsmodule.Descriptor{Name: "a"})
	be.register(bbsmodule.Descriptor{
		Name: "b",
		Entrypoints: bbsmodule.Entrypoints{
			Load: func(ctx context.Context, self bbsmodule.Handle) error {
				_, err := self.Require(ctx, "a")
				return err
			},
			Unload: func(ctx context.Context, self bbsmodule.Handle) error {
				return nil
			},
		},
	})

	l := NewLoader(be, nil, nil)
	defer l.Close()
	ctx := context.Background()

	_, err := l.Load(ctx, "b")
	require.NoError(t, err)

	a := snapshotOf(t, l, "a")
	require.Equal(t, 1, a.Refcount, "a must be refcounted once by b's require")
	b := snapshotOf(t, l, "b")
	require.Zero(t, b.Refcount)

	_, err = l.Unload(ctx, "a")
	require.ErrorIs(t, err, ErrUnloadRefused, "a is still required by b")

	_, err = l.Unload(ctx, "b")
	require.NoError(t, err)

	a = snapshotOf(t, l, "a")
	require.Zero(t, a.Refcount)

	_, err = l.Unload(ctx, "a")
	require.NoError(t, err)
}

func TestCycleRefusal(t *testing.T) {
	be := newFakeBackend()
	be.register(bbsmodule.Descriptor{
		Name: "a",
		Entrypoints: bbsmodule.Entrypoints{
			Load: func(ctx context.Context, self bbsmodule.Handle) error {
				_, err := self.Require(ctx, "b")
				return err
			},
		},
	})
	be.register(bbsmodule.Descriptor{
		Name: "b",
		Entrypoints: bbsmodule.Entrypoints{
			Load: func(ctx context.Context, self bbsmodule.Handle) error {
				_, err := self.Require(ctx, "a")
				return err
			},
		},
	})

	l := NewLoader(be, nil, nil)
	defer l.Close()
	ctx := context.Background()

	_, err := l.Load(ctx, "a")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrWouldCycle)
}

func TestDeferredReload(t *testing.T) {
	be := newFakeBackend()
	be.register(bbsmodule.Descriptor{Name: "a"})

	l := NewLoader(be, nil, nil)
	defer l.Close()
	ctx := context.Background()

	_, err := l.Load(ctx, "a")
	require.NoError(t, err)

	rec, err := l.reg.lookup("a")
	require.NoError(t, err)
	require.NoError(t, l.reg.ref(rec))

	res, err := l.Reload(ctx, "a", true)
	require.ErrorIs(t, err, ErrReloadQueued)
	require.Equal(t, "queued", res.Status)

	l.reg.unref(rec, l.queue)

	require.Eventually(t, func() bool {
		info := snapshotOf(t, l, "a")
		return info.State == StateLoaded
	}, eventualTimeout, eventualTick)
}

func snapshotOf(t *testing.T, l *Loader, name string) RecordInfo {
	t.Helper()
	for _, info := range l.Snapshot() {
		if info.Name == name {
			return info
		}
	}
	t.Fatalf("no record named %q", name)
	return RecordInfo{}
}
