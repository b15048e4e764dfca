// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package relay fans events out to the connections watching a room.

Each instance keeps its own room membership; it is rebuilt from reconnections
and never treated as authoritative. Publish delivers to local members first
and then puts the event on the shared bus, from which every other instance
re-delivers to its own members.

# Ordering and duplicates

Events carry the poll revision that produced them. Per room the relay keeps
a window of delivered revisions:

  - an envelope published by this instance comes back over the bus and is
    ignored
  - a revision already delivered is dropped
  - a vote-update or poll-state-changed older than the last one of its type
    is dropped, since the newer one already carries the complete state

# Teardown

A room-closed event is delivered and then every member is released.
*/
package relay
