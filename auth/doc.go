// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identifier and secret generation.

# Room Codes

Room codes are the human-shareable identity of a poll:

	code, err := auth.GenerateRoomCode()

A code is RoomCodeLength (6) characters drawn uniformly from RoomCodeAlphabet,
which leaves out characters people confuse when reading a code aloud or off a
projector (0/O, 1/I/L, 2/Z, 5/S, 8/B). Generation is stateless; the state store
retries until it finds a code that is not assigned to an active poll.

# Host Keys

Host keys are random 24-byte (192-bit) secrets returned once to the poll
creator:

	key, err := auth.GenerateHostKey()
	err = auth.ValidateHostKey(stored, presented)

Validation is constant-time.

# Connection and Instance IDs

	connID := auth.NewConnID()       // one per live socket
	instanceID := auth.NewInstanceID() // one per server process

Both are UUIDv4 strings.
*/
package auth
