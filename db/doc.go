// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the SQL database and manages its schema.

# Opening

Open connects with the driver for the dialect, pings, and creates the schema:

	conn, err := db.Open(ctx, db.SQLite, "livepoll.db")

SQLite uses modernc.org/sqlite with a single connection. PostgreSQL uses
lib/pq with a small pool.

# Schema Creation

CreateSchema is safe to call multiple times - uses IF NOT EXISTS for all
tables and indexes. The same DDL runs on both dialects.

# Tables

  - poll: question, lifecycle state, host key, live host connection, revision
  - poll_option: ordered option labels
  - participant: nickname, live connection, presence, and the current vote

# Relationships

	poll 1──* poll_option
	poll 1──* participant

Timestamps are unix microseconds in BIGINT columns.

# Dialect helpers

Queries are written with ? placeholders; Dialect.Rebind rewrites them to $n
for PostgreSQL. Dialect.ForUpdate gives the row-lock suffix, and
IsUniqueViolation recognizes constraint failures from either driver.
*/
package db
