// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package relay

import (
	"encoding/json"

	"github.com/danielhkuo/livepoll/models"
)

const windowSize = 256

// window remembers the revisions recently delivered to a room.
//
// Duplicates are always dropped. Vote updates and state changes carry the
// whole tally or state, so once a newer one of the same type went out an
// older one is stale and dropped too. Presence events name a participant and
// are delivered even when they arrive late, but carry the connected count of
// the newest presence event (see freshPresence).
type window struct {
	seen   map[uint64]struct{}
	ring   [windowSize]uint64
	next   int
	max    uint64
	latest map[models.EventType]uint64

	presenceRev   uint64
	presenceCount int
}

func (w *window) admit(t models.EventType, rev uint64) bool {
	if w.seen == nil {
		w.seen = make(map[uint64]struct{}, windowSize)
		w.latest = make(map[models.EventType]uint64)
	}

	if _, dup := w.seen[rev]; dup {
		return false
	}
	// Older than anything still remembered
	if w.max >= windowSize && rev <= w.max-windowSize {
		return false
	}
	if supersedes(t) && rev < w.latest[t] {
		return false
	}

	if old := w.ring[w.next]; old != 0 {
		delete(w.seen, old)
	}
	w.ring[w.next] = rev
	w.next = (w.next + 1) % windowSize
	w.seen[rev] = struct{}{}

	if rev > w.max {
		w.max = rev
	}
	if rev > w.latest[t] {
		w.latest[t] = rev
	}
	return true
}

func supersedes(t models.EventType) bool {
	return t == models.EventVoteUpdate || t == models.EventPollStateChanged
}

func isPresence(t models.EventType) bool {
	return t == models.EventParticipantJoined ||
		t == models.EventParticipantRejoined ||
		t == models.EventParticipantLeft
}

// freshPresence returns an admitted presence event with its connected count
// replaced by the count of the newest presence event seen, so a late event
// never rolls the count back. Other events are returned unchanged.
func (w *window) freshPresence(ev models.Event) models.Event {
	if !isPresence(ev.Type) {
		return ev
	}
	var p models.PresencePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return ev
	}
	if ev.Revision >= w.presenceRev {
		w.presenceRev = ev.Revision
		w.presenceCount = p.ConnectedCount
		return ev
	}
	if p.ConnectedCount == w.presenceCount {
		return ev
	}
	p.ConnectedCount = w.presenceCount
	return models.NewEvent(ev.Type, ev.Room, ev.Revision, p)
}
