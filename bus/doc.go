// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package bus carries events between server instances.

A publisher wraps each event in an Envelope tagged with its instance ID, room
code, and poll revision. Every instance subscribes and hands what it receives
to its relay, which drops its own envelopes and anything already delivered.

# Implementations

  - Local: synchronous in-process fan-out, for single-instance deployments
    and tests that simulate several instances in one process
  - Postgres: LISTEN/NOTIFY on one channel, for instances sharing a
    PostgreSQL database

Payloads are JSON. NOTIFY limits them to just under 8000 bytes, which is far
above any event this service produces.
*/
package bus
