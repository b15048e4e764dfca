// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, domain, and event types.

# Request Types

Types for parsing incoming JSON:

  - CreatePollRequest: question, options, ttl_seconds
  - ChangeStateRequest: state

# Response Types

Types for JSON responses:

  - CreatePollResponse: room_code, host_key, poll
  - ChangeStateResponse: previous_state, new_state
  - ErrorResponse: error, kind, message

# Domain Types

  - Poll: question, ordered options, lifecycle state, revision
  - Participant: nickname within a poll, presence, current vote
  - Vote: chosen option index with first-cast and last-updated times
  - Results: full counts and percentages vector
  - Snapshot: poll + results + connected count

# Events

Every broadcast is an Event carrying the room code, the poll revision that
produced it, and an encoded payload:

	participant-joined / participant-rejoined / participant-left → PresencePayload
	vote-update                                                  → VoteUpdatePayload
	poll-state-changed                                           → StateChangedPayload
	room-closed                                                  → RoomClosedPayload

Payloads are full snapshots, so receivers can apply them idempotently.

# Constants

State values:

	StateWaiting = "waiting"
	StateOpen    = "open"
	StateClosed  = "closed"
*/
package models
