package autoload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbbs/loader"
	"github.com/lbbs/loader/backend"
	"github.com/lbbs/loader/bbsmodule"
)

type stubBackend struct {
	known map[string]bool
}

func (b *stubBackend) Open(name string, flags bbsmodule.Flags, r bbsmodule.Registrar) (backend.Handle, error) {
	if !b.known[name] {
		return nil, backend.ErrNotFound
	}
	if _, err := r.Register(bbsmodule.Descriptor{Name: name}); err != nil {
		return nil, err
	}
	return stubHandle{}, nil
}

func (b *stubBackend) Close(h backend.Handle) error { return nil }

type stubHandle struct{}

func (stubHandle) ExportsGlobalSymbols() bool { return false }
func (stubHandle) Close() error                { return nil }

func TestExpandNamesWildcard(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"irc-relay.so", "irc-bouncer.so", "smtp.so"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	names, err := ExpandNames(dir, []string{"smtp", "irc-*"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"smtp", "irc-relay", "irc-bouncer"}, names)
}

func TestLoadAllPartialFailure(t *testing.T) {
	be := &stubBackend{known: map[string]bool{"a": true, "c": true}}
	l := loader.NewLoader(be, nil, nil)
	defer l.Close()

	result := LoadAll(context.Background(), l, []string{"a", "bad", "c"})
	require.Equal(t, []string{"a", "c"}, result.Loaded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "bad", result.Failures[0].Name)
	require.Equal(t, "partially loaded", result.Status())
}

func TestUnloadAllSingleModule(t *testing.T) {
	be := &stubBackend{known: map[string]bool{"chanserv": true}}
	l := loader.NewLoader(be, nil, nil)
	defer l.Close()

	_, err := l.Load(context.Background(), "chanserv")
	require.NoError(t, err)

	require.NoError(t, UnloadAll(context.Background(), l))

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, loader.StateUnloaded, snap[0].State)
}
