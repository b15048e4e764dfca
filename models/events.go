// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"time"
)

// EventType names a broadcast event kind
type EventType string

// Event types
const (
	EventParticipantJoined   EventType = "participant-joined"
	EventParticipantRejoined EventType = "participant-rejoined"
	EventParticipantLeft     EventType = "participant-left"
	EventVoteUpdate          EventType = "vote-update"
	EventPollStateChanged    EventType = "poll-state-changed"
	EventRoomClosed          EventType = "room-closed"
)

// Room closed reasons
const (
	ReasonAbandoned = "abandoned"
	ReasonExpired   = "expired"
)

// Event is one broadcast unit addressed to a room. Payload holds one of the
// *Payload types below, already encoded.
type Event struct {
	Type     EventType       `json:"type"`
	Room     string          `json:"room"`
	Revision uint64          `json:"revision"`
	Payload  json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Nickname       string    `json:"nickname"`
	ConnectedCount int       `json:"current_connected_count"`
	Timestamp      time.Time `json:"timestamp"`
}

type VoteUpdatePayload struct {
	Counts      []int `json:"counts"`
	Percentages []int `json:"percentages"`
}

type StateChangedPayload struct {
	NewState      PollState `json:"new_state"`
	PreviousState PollState `json:"previous_state"`
	Timestamp     time.Time `json:"timestamp"`
}

type RoomClosedPayload struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent encodes payload into an Event. Payload types are plain structs, so
// encoding cannot fail.
func NewEvent(t EventType, room string, revision uint64, payload any) Event {
	raw, _ := json.Marshal(payload)
	return Event{
		Type:     t,
		Room:     room,
		Revision: revision,
		Payload:  raw,
	}
}
