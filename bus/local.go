// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bus

import (
	"context"
	"sync/atomic"
)

// Local delivers synchronously inside one process. Several relays attached
// to the same Local behave like separate instances sharing a real bus.
type Local struct {
	subs   handlers
	closed atomic.Bool
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(ctx context.Context, env Envelope) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.subs.dispatch(env)
	return nil
}

func (l *Local) Subscribe(h Handler) func() {
	return l.subs.add(h)
}

func (l *Local) Close() error {
	l.closed.Store(true)
	return nil
}
