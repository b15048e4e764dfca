// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package memstore keeps polls in process memory.

Rooms live in a concurrent map keyed by room code, and each room carries its
own mutex, so operations on one poll are serialized while different polls
proceed in parallel. A second map tracks which poll (and which nickname, or
the host role) each live connection is bound to.

Nothing is persisted. Use it for single-instance deployments and tests.
*/
package memstore
