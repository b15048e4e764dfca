// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the livepoll API.

# Handler Types

PollHandler wraps an *engine.Engine and the server Config:

	pollHandler := handlers.NewPollHandler(e, cfg)

# Endpoints

	POST /polls                → CreatePoll (returns room_code and host_key)
	GET  /polls/{code}         → GetPoll (current snapshot)
	POST /polls/{code}/state   → ChangeState (host only)
	GET  /polls/{code}/ws      → Connect (websocket upgrade)

Polls progress through three states: waiting → open → closed. Room codes
are case-insensitive.

# Authentication

The host key is returned once by CreatePoll. State changes over HTTP send
it in the X-Host-Key header; over the websocket it is sent in the host
message.

# Realtime Connection

Connect checks that the room exists, upgrades the request, and hands the
socket to ws.Serve. Everything after that (join, host, vote, set-state,
sync, ping and the broadcast events) is handled by package ws.

# Error Responses

Engine errors are written with middleware.StoreError:

	{"error": "Conflict", "kind": "room_full", "message": "..."}
*/
package handlers
