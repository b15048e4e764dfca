// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ws is the websocket gateway. One socket is one connection reference:
it can join a poll as a participant or attach as the host, once.

Each Client runs a read loop that turns JSON messages into engine commands
and a write loop that drains a bounded queue of replies and broadcasts. The
Client is itself the relay subscriber for its room; when its queue is full
it is disconnected rather than allowed to fall behind.

# Messages

	client → server         reply
	join {nickname}         joined | rejoined {participant, vote, snapshot}
	host {host_key}         hosting {snapshot}
	vote {option}           voted {option}
	set-state {state}       (poll-state-changed broadcast)
	sync                    snapshot {snapshot}
	ping                    pong

Failures reply {type: "error", kind, message}. Broadcast events are sent as
{type, room, revision, payload}; a room-closed event is the last frame before
the server closes the socket.
*/
package ws
