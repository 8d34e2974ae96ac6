// Package eventbus publishes module lifecycle events as CloudEvents and
// fans them out to observers, wiring a Subject/Observer shape all the way
// through using cloudevents/sdk-go/v2 for the envelope format.
package eventbus

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventType names a module lifecycle transition, including the reload
// events emitted around the deferred-reload queue.
type EventType string

const (
	EventModuleLoading        EventType = "module.loading"
	EventModuleRegistered     EventType = "module.registered"
	EventModuleLoaded         EventType = "module.loaded"
	EventModuleUnloading      EventType = "module.unloading"
	EventModuleUnloaded       EventType = "module.unloaded"
	EventModuleFailed         EventType = "module.failed"
	EventModuleReloadQueued   EventType = "module.reload.queued"
	EventModuleReloadComplete EventType = "module.reload.completed"
)

// Source is the CloudEvents source attribute for every event this package
// emits.
const Source = "github.com/lbbs/loader"

// Observer receives dispatched events. Implementations must not block for
// long: Publish only queues an event, and the bus's drain goroutine calls
// observers one at a time, so a slow observer delays drain of that queue.
type Observer interface {
	OnEvent(ctx context.Context, ev cloudevents.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev cloudevents.Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev cloudevents.Event) { f(ctx, ev) }

// Subject is the publish side of the bus: construct and dispatch a
// lifecycle event for a module name.
type Subject interface {
	Publish(ctx context.Context, typ EventType, moduleName string, data map[string]any)
	RegisterObserver(o Observer) (unregister func())
}

// Bus is the default Subject implementation: a bounded channel drained by a
// background goroutine that calls every registered observer in turn,
// grounded on reload_orchestrator.go's emitStartEvent/emitSuccessEvent/
// emitFailedEvent pattern (there, the NotifyObservers call was commented
// out; here it actually runs).
type Bus struct {
	mu        sync.RWMutex
	observers map[int]Observer
	nextID    int

	events chan cloudevents.Event
	done   chan struct{}
}

// NewBus starts a Bus with the given event buffer size and begins draining
// immediately; call Stop to halt the drain goroutine.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bus{
		observers: make(map[int]Observer),
		events:    make(chan cloudevents.Event, buffer),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ev)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(ev cloudevents.Event) {
	b.mu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(context.Background(), ev)
	}
}

func (b *Bus) RegisterObserver(o Observer) (unregister func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = o
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Publish builds a CloudEvents envelope for typ/moduleName/data and queues
// it for dispatch. A full event buffer drops the event rather than
// blocking the lifecycle operation that produced it — lifecycle mutations
// must never block on event delivery.
func (b *Bus) Publish(ctx context.Context, typ EventType, moduleName string, data map[string]any) {
	ev := cloudevents.NewEvent()
	ev.SetID(uuid.NewString())
	ev.SetSource(Source)
	ev.SetType(string(typ))
	ev.SetTime(time.Now())
	ev.SetExtension("module", moduleName)
	if data == nil {
		data = map[string]any{}
	}
	_ = ev.SetData(cloudevents.ApplicationJSON, data)

	select {
	case b.events <- ev:
	default:
	}
}

// Stop halts the drain goroutine. Already-queued events are dropped.
func (b *Bus) Stop() {
	close(b.done)
}

var _ Subject = (*Bus)(nil)
