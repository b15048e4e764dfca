// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine connects the state store to the broadcast relay.

Each command (create, join, attach host, vote, change state, disconnect)
runs one store operation under OpTimeout. When the store commits, the engine
builds the matching event and publishes it through the relay; publishing
never undoes a committed change. Rejected commands return the store error
unchanged so transports can map its kind.

# Events

	Join          → participant-joined / participant-rejoined
	Vote          → vote-update
	ChangeState   → poll-state-changed
	Disconnect    → participant-left, or room-closed{abandoned} when the
	                host leaves an empty room
	RemovePoll    → room-closed

# Sweeper

RunSweeper calls Sweep on a ticker. A sweep marks idle participants as
disconnected, purges long-disconnected participants and their votes, and
removes expired polls.

# Audit

Rejections that matter for abuse tracking (nickname collisions, full rooms,
unauthorized host actions, rejected votes) are passed to an Auditor.
SlogAuditor writes them as WARN records with audit=true.
*/
package engine
