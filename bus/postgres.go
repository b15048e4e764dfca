// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	// DefaultChannel is the LISTEN/NOTIFY channel shared by all instances
	DefaultChannel = "livepoll_events"

	// PostgreSQL rejects NOTIFY payloads of 8000 bytes or more
	maxPayload = 7999

	minReconnect = 100 * time.Millisecond
	maxReconnect = 10 * time.Second
	pingPeriod   = 60 * time.Second
)

// Postgres fans envelopes out through PostgreSQL LISTEN/NOTIFY. Delivery is
// at-least-once while the listener is connected; envelopes sent during a
// reconnect are lost, which clients recover from on the next event or sync.
type Postgres struct {
	conn     *sql.DB
	listener *pq.Listener
	channel  string
	subs     handlers

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPostgres listens on channel using its own connection to url and
// publishes through conn.
func NewPostgres(conn *sql.DB, url, channel string) (*Postgres, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	listener := pq.NewListener(url, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			slog.Warn("bus listener connection attempt failed", "error", err)
		case pq.ListenerEventDisconnected:
			slog.Warn("bus listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			slog.Info("bus listener reconnected", "channel", channel)
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	b := &Postgres{
		conn:     conn,
		listener: listener,
		channel:  channel,
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *Postgres) Publish(ctx context.Context, env Envelope) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("envelope for %s is %d bytes, limit %d", env.Room, len(payload), maxPayload)
	}

	if _, err := b.conn.ExecContext(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

func (b *Postgres) Subscribe(h Handler) func() {
	return b.subs.add(h)
}

func (b *Postgres) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.listener.Close()
		b.wg.Wait()
	})
	return err
}

func (b *Postgres) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return

		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; anything sent meanwhile is gone
			if n == nil {
				slog.Warn("bus listener resynchronized, events may have been missed", "channel", b.channel)
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(n.Extra), &env); err != nil {
				slog.Warn("dropping malformed bus payload", "error", err)
				continue
			}
			b.subs.dispatch(env)

		case <-ticker.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					slog.Warn("bus listener ping failed", "error", err)
				}
			}()
		}
	}
}
