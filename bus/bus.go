// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/danielhkuo/livepoll/models"
)

var ErrClosed = errors.New("bus closed")

// Envelope is what travels between instances. Origin is the instance that
// committed the mutation.
type Envelope struct {
	Origin   string       `json:"origin"`
	Room     string       `json:"room"`
	Revision uint64       `json:"revision"`
	Event    models.Event `json:"event"`
}

// Handler receives envelopes. It must not block.
type Handler func(Envelope)

// Bus is a shared broadcast channel. Every subscriber, including the
// publishing instance, receives every envelope at least once.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(h Handler) (unsubscribe func())
	Close() error
}

// handlers is the subscriber set shared by the implementations
type handlers struct {
	mu   sync.RWMutex
	next int
	set  map[int]Handler
}

func (h *handlers) add(fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.set == nil {
		h.set = make(map[int]Handler)
	}
	id := h.next
	h.next++
	h.set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.set, id)
			h.mu.Unlock()
		})
	}
}

func (h *handlers) dispatch(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.set {
		fn(env)
	}
}
