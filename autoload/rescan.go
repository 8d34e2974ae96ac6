package autoload

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/lbbs/loader"
)

// Rescanner periodically re-evaluates the modules directory and autoload
// list against the loaded set, repurposing robfig/cron from "run scheduled
// jobs" to "periodically reconcile the on-disk module set with the loaded
// set". Disabled by default; the rescan schedule is an ambient addition
// on top of the plain autoload list and directory.
type Rescanner struct {
	l          *loader.Loader
	modulesDir string
	order      []string
	log        loader.Logger

	cr *cron.Cron
}

// NewRescanner builds a Rescanner that is not yet running.
func NewRescanner(l *loader.Loader, modulesDir string, order []string, log loader.Logger) *Rescanner {
	return &Rescanner{l: l, modulesDir: modulesDir, order: order, log: log}
}

// Start schedules a reconcile pass on spec (standard five-field cron
// syntax, or a descriptor such as "@every 30s") and returns immediately;
// call Stop to halt it.
func (r *Rescanner) Start(ctx context.Context, spec string) error {
	r.cr = cron.New()
	_, err := r.cr.AddFunc(spec, func() { r.reconcile(ctx) })
	if err != nil {
		return err
	}
	r.cr.Start()
	return nil
}

// Stop halts the cron scheduler; in-flight reconcile passes are allowed to
// finish.
func (r *Rescanner) Stop() {
	if r.cr != nil {
		<-r.cr.Stop().Done()
	}
}

func (r *Rescanner) reconcile(ctx context.Context) {
	names, err := ExpandNames(r.modulesDir, r.order)
	if err != nil {
		if r.log != nil {
			r.log.Warn("autoload: rescan expand failed", "error", err)
		}
		return
	}

	loaded := make(map[string]bool)
	for _, info := range r.l.Snapshot() {
		if info.State == loader.StateLoaded {
			loaded[info.Name] = true
		}
	}

	for _, name := range names {
		if loaded[name] {
			continue
		}
		if _, err := r.l.Load(ctx, name); err != nil && r.log != nil {
			r.log.Warn("autoload: rescan load failed", "name", name, "error", err)
		}
	}
}
