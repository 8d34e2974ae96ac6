package loader

// Lifecycle state machine scenarios, driven by cucumber/godog feature
// files under features/.

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/lbbs/loader/bbsmodule"
)

type lifecycleWorld struct {
	l        *Loader
	be       *fakeBackend
	lastErr  error
	ctx      context.Context
}

func (w *lifecycleWorld) reset() {
	w.be = newFakeBackend()
	w.l = NewLoader(w.be, nil, nil)
	w.ctx = context.Background()
	w.lastErr = nil
}

func (w *lifecycleWorld) aModuleNamedWithNoDependencies(name string) error {
	w.be.register(bbsmodule.Descriptor{Name: name})
	return nil
}

func (w *lifecycleWorld) aModuleNamedThatRequires(name, dependency string) error {
	w.be.register(bbsmodule.Descriptor{
		Name: name,
		Entrypoints: bbsmodule.Entrypoints{
			Load: func(ctx context.Context, self bbsmodule.Handle) error {
				_, err := self.Require(ctx, dependency)
				return err
			},
			Unload: func(ctx context.Context, self bbsmodule.Handle) error { return nil },
		},
	})
	return nil
}

func (w *lifecycleWorld) iLoad(name string) error {
	_, err := w.l.Load(w.ctx, name)
	w.lastErr = err
	return nil
}

func (w *lifecycleWorld) iUnload(name string) error {
	_, err := w.l.Unload(w.ctx, name)
	w.lastErr = err
	return nil
}

func (w *lifecycleWorld) isInState(name, state string) error {
	info := findRecord(w.l, name)
	if info == nil {
		return fmt.Errorf("no record named %q", name)
	}
	if info.State.String() != state {
		return fmt.Errorf("%s: expected state %q, got %q", name, state, info.State)
	}
	return nil
}

func (w *lifecycleWorld) hasRefcount(name string, want int) error {
	info := findRecord(w.l, name)
	if info == nil {
		return fmt.Errorf("no record named %q", name)
	}
	if info.Refcount != want {
		return fmt.Errorf("%s: expected refcount %d, got %d", name, want, info.Refcount)
	}
	return nil
}

func (w *lifecycleWorld) unloadingFailsWith(name, kind string) error {
	_, err := w.l.Unload(w.ctx, name)
	if err == nil {
		return fmt.Errorf("unload %q: expected failure, got nil", name)
	}
	switch kind {
	case "unload-refused":
		if !errors.Is(err, ErrUnloadRefused) {
			return fmt.Errorf("unload %q: expected ErrUnloadRefused, got %v", name, err)
		}
	default:
		return fmt.Errorf("unrecognized error kind %q", kind)
	}
	return nil
}

func (w *lifecycleWorld) loadingFailsWith(name, kind string) error {
	_, err := w.l.Load(w.ctx, name)
	if err == nil {
		return fmt.Errorf("load %q: expected failure, got nil", name)
	}
	switch kind {
	case "would-cycle":
		if !errors.Is(err, ErrWouldCycle) {
			return fmt.Errorf("load %q: expected ErrWouldCycle, got %v", name, err)
		}
	default:
		return fmt.Errorf("unrecognized error kind %q", kind)
	}
	return nil
}

func findRecord(l *Loader, name string) *RecordInfo {
	for _, info := range l.Snapshot() {
		if info.Name == name {
			cp := info
			return &cp
		}
	}
	return nil
}

func initLifecycleScenario(ctx *godog.ScenarioContext) {
	w := &lifecycleWorld{}

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		w.reset()
		return c, nil
	})

	ctx.Step(`^a module named "([^"]*)" with no dependencies$`, w.aModuleNamedWithNoDependencies)
	ctx.Step(`^a module named "([^"]*)" that requires "([^"]*)"$`, w.aModuleNamedThatRequires)
	ctx.Step(`^I load "([^"]*)"$`, w.iLoad)
	ctx.Step(`^I unload "([^"]*)"$`, w.iUnload)
	ctx.Step(`^"([^"]*)" is in state "([^"]*)"$`, w.isInState)
	ctx.Step(`^"([^"]*)" has refcount (\d+)$`, func(name string, want int) error {
		return w.hasRefcount(name, want)
	})
	ctx.Step(`^unloading "([^"]*)" fails with "([^"]*)"$`, w.unloadingFailsWith)
	ctx.Step(`^loading "([^"]*)" fails with "([^"]*)"$`, w.loadingFailsWith)
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/lifecycle.feature"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned from godog suite")
	}
}
