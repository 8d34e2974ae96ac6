// Package chanserv is the ChanServ-equivalent domain module: it requires
// nothing, publishes mailbox-event notifications over its own CloudEvents
// subject, and is the dependency target smtp pins via require.
package chanserv

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/lbbs/loader/bbsmodule"
)

const Name = "chanserv"

// Publisher is the service smtp uses, after pinning chanserv via require,
// to announce mailbox events — a small pub/sub shape mirroring the root eventbus package, kept
// local to this module so chanserv has no dependency back on the loader's
// internal event bus.
type Publisher struct {
	mu        sync.RWMutex
	observers []func(cloudevents.Event)
}

func (p *Publisher) Subscribe(f func(cloudevents.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, f)
}

func (p *Publisher) PublishMailboxEvent(kind, mailbox string) {
	ev := cloudevents.NewEvent()
	ev.SetID(uuid.NewString())
	ev.SetSource("github.com/lbbs/loader/modules/chanserv")
	ev.SetType("chanserv.mailbox." + kind)
	ev.SetTime(time.Now())
	_ = ev.SetData(cloudevents.ApplicationJSON, map[string]any{"mailbox": mailbox})

	p.mu.RLock()
	observers := append([]func(cloudevents.Event){}, p.observers...)
	p.mu.RUnlock()

	for _, o := range observers {
		o(ev)
	}
}

var shared = &Publisher{}

// Service returns the process-wide Publisher other modules require this
// module to obtain.
func Service() *Publisher { return shared }

func load(ctx context.Context, self bbsmodule.Handle) error {
	self.Logger().Info("chanserv online")
	return nil
}

func unload(ctx context.Context, self bbsmodule.Handle) error {
	self.Logger().Info("chanserv offline")
	return nil
}

// BBSRegister is the well-known constructor symbol the backend resolves
// via plugin.Lookup.
func BBSRegister(r bbsmodule.Registrar) error {
	_, err := r.Register(bbsmodule.Descriptor{
		Name:        Name,
		Description: "channel and mailbox event service",
		Entrypoints: bbsmodule.Entrypoints{
			Load:   load,
			Unload: unload,
		},
	})
	return err
}
