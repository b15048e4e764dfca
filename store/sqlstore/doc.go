// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package sqlstore implements store.Store on database/sql.

Each operation runs in one transaction that first reads the poll row. On
PostgreSQL the read takes a row lock (SELECT ... FOR UPDATE), so mutations of
one poll are serialized while different polls proceed in parallel. SQLite
runs with a single connection, which serializes all transactions.

Room code collisions are detected through the primary key and retried with a
fresh code. A connection reference is unique across participant.conn_id and
poll.host_conn, which enforces that a connection serves one role.
*/
package sqlstore
