package autoload

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/lbbs/loader"
)

// Watcher observes modulesDir for new or removed shared objects at runtime
// and loads newly-appeared ones, grounded on the configwatcher module's use
// of fsnotify for the same "notice a file changed, act on it" shape,
// repurposed here from config files to .so files.
type Watcher struct {
	l          *loader.Loader
	modulesDir string
	log        loader.Logger
}

// NewWatcher builds a Watcher; log may be nil.
func NewWatcher(l *loader.Loader, modulesDir string, log loader.Logger) *Watcher {
	return &Watcher{l: l, modulesDir: modulesDir, log: log}
}

// Run blocks until ctx is canceled, loading any .so file that appears in
// modulesDir. It never unloads on removal: the unload path requires an
// explicit unload(name) call, not implicit removal-triggered unload.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.modulesDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(ev.Name) != ".so" {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(ev.Name), ".so")
			if _, err := w.l.Load(ctx, name); err != nil && w.log != nil {
				w.log.Warn("autoload: watch load failed", "name", name, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.log != nil {
				w.log.Warn("autoload: watch error", "error", err)
			}
		}
	}
}
