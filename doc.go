// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the livepoll server.

livepoll runs real-time polls: a host creates a poll with two to five
options and shares a six-character room code, participants join under a
nickname and vote, and everyone in the room sees the tally change live.

# Starting the Server

Everything runs in memory by default:

	go run . serve

Backed by SQLite:

	go run . serve -t sqlite -d ./livepoll.db

Several instances sharing PostgreSQL for storage and LISTEN/NOTIFY for
broadcasts:

	DATABASE_TYPE=postgres DATABASE_URL=postgres://... BUS_TYPE=postgres go run . serve -p 3318

# Configuration

Flags, environment variables, and .env / .env.local files are merged, with
flags taking precedence. Each flag maps to the upper-snake environment
variable of the same name:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): memory, sqlite or postgres
  - DATABASE_URL (-d): Connection string or SQLite file path
  - BUS_TYPE, BUS_URL: local or postgres broadcast bus
  - INSTANCE_ID: Name of this instance on the bus
  - MAX_PARTICIPANTS, STALE_AFTER, PURGE_AFTER, SWEEP_INTERVAL, POLL_TTL, OP_TIMEOUT
  - ALLOWED_ORIGINS: Comma-separated websocket and CORS origins
  - LOG_LEVEL, LOG_FORMAT: slog level and text/json output

# Architecture

  - handlers, router, middleware: HTTP surface
  - ws: Websocket connections and the client message protocol
  - engine: Commands, event emission, and the staleness sweeper
  - relay: Per-room fan-out to local connections and across instances
  - bus: Cross-instance transport (in-process or PostgreSQL)
  - store, store/memstore, store/sqlstore: Authoritative poll state
  - poll: Lifecycle, validation, and tally rules
  - db: Schema and connections for PostgreSQL and SQLite
  - auth: Room codes, host keys, and connection IDs
  - models: Shared types and event payloads
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
