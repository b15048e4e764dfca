// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielhkuo/livepoll/bus"
	"github.com/danielhkuo/livepoll/models"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	eventsDelivered  = metrics.NewCounter("livepoll_events_delivered_total")
	eventsDropped    = metrics.NewCounter("livepoll_events_dropped_total")
	busPublishErrors = metrics.NewCounter("livepoll_bus_publish_errors_total")
)

var localConnections atomic.Int64

func init() {
	metrics.NewGauge("livepoll_local_connections", func() float64 {
		return float64(localConnections.Load())
	})
}

// Subscriber is one local connection. Deliver must not block; it returns
// false when the event could not be queued.
type Subscriber interface {
	ID() string
	Deliver(ev models.Event) bool
}

// Relay tracks which local connections watch which room and fans events out
// to them, both for mutations committed here and for those arriving over the
// bus from other instances.
type Relay struct {
	instance    string
	bus         bus.Bus
	rooms       *xsync.MapOf[string, *room]
	subscribers *xsync.MapOf[string, string] // subscriber ID -> room
	unsubscribe func()
}

type room struct {
	mu      sync.Mutex
	members map[string]Subscriber
	seen    window
	closed  bool
}

// New subscribes to b. instance must be unique among the instances sharing b.
func New(instance string, b bus.Bus) *Relay {
	r := &Relay{
		instance:    instance,
		bus:         b,
		rooms:       xsync.NewMapOf[string, *room](),
		subscribers: xsync.NewMapOf[string, string](),
	}
	r.unsubscribe = b.Subscribe(r.receive)
	return r
}

// Attach adds sub to the room. A subscriber watches at most one room;
// attaching elsewhere moves it.
func (r *Relay) Attach(code string, sub Subscriber) {
	if prev, ok := r.subscribers.Load(sub.ID()); ok && prev != code {
		r.Detach(sub.ID())
	}

	for {
		rm, _ := r.rooms.LoadOrCompute(code, func() *room {
			return &room{members: make(map[string]Subscriber)}
		})
		rm.mu.Lock()
		if rm.closed {
			// Lost a race with teardown of an empty room; start a new one
			rm.mu.Unlock()
			continue
		}
		if _, exists := rm.members[sub.ID()]; !exists {
			localConnections.Add(1)
		}
		rm.members[sub.ID()] = sub
		rm.mu.Unlock()
		r.subscribers.Store(sub.ID(), code)
		return
	}
}

// Detach removes the subscriber from whatever room it watches
func (r *Relay) Detach(id string) {
	code, ok := r.subscribers.LoadAndDelete(id)
	if !ok {
		return
	}
	rm, ok := r.rooms.Load(code)
	if !ok {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.members[id]; exists {
		delete(rm.members, id)
		localConnections.Add(-1)
	}
	if len(rm.members) == 0 && !rm.closed {
		rm.closed = true
		r.rooms.Delete(code)
	}
}

// Members counts local subscribers of the room
func (r *Relay) Members(code string) int {
	rm, ok := r.rooms.Load(code)
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Publish delivers ev to local members, then hands it to the bus for the
// other instances. Bus failures are logged and counted; they never undo the
// mutation that produced ev.
func (r *Relay) Publish(ctx context.Context, ev models.Event) {
	r.deliver(ev)

	env := bus.Envelope{
		Origin:   r.instance,
		Room:     ev.Room,
		Revision: ev.Revision,
		Event:    ev,
	}
	if err := r.bus.Publish(ctx, env); err != nil {
		busPublishErrors.Inc()
		slog.Warn("bus publish failed", "room", ev.Room, "type", ev.Type, "revision", ev.Revision, "error", err)
	}
}

// Close stops receiving from the bus
func (r *Relay) Close() {
	r.unsubscribe()
}

func (r *Relay) receive(env bus.Envelope) {
	if env.Origin == r.instance {
		return
	}
	r.deliver(env.Event)
}

// deliver fans ev out to the room's local members. A room-closed event also
// releases every member.
func (r *Relay) deliver(ev models.Event) {
	rm, ok := r.rooms.Load(ev.Room)
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed || !rm.seen.admit(ev.Type, ev.Revision) {
		return
	}
	ev = rm.seen.freshPresence(ev)

	for id, sub := range rm.members {
		if sub.Deliver(ev) {
			eventsDelivered.Inc()
			continue
		}
		eventsDropped.Inc()
		slog.Debug("subscriber queue full, event dropped", "room", ev.Room, "subscriber", id, "revision", ev.Revision)
	}

	if ev.Type == models.EventRoomClosed {
		for id := range rm.members {
			r.subscribers.Delete(id)
			localConnections.Add(-1)
		}
		rm.members = nil
		rm.closed = true
		r.rooms.Delete(ev.Room)
	}
}
