// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// DropSchema removes every table. Used by tests against a shared database.
func DropSchema(ctx context.Context, conn *sql.DB) error {
	for _, table := range []string{"participant", "poll_option", "poll"} {
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

// Timestamps are stored as unix microseconds so that both dialects compare
// them as plain integers.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS poll (
    code TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'waiting' CHECK (state IN ('waiting', 'open', 'closed')),
    host_key TEXT NOT NULL,
    host_conn TEXT UNIQUE,
    revision BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    expires_at BIGINT
)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_expires_at ON poll(expires_at)`,

	`CREATE TABLE IF NOT EXISTS poll_option (
    poll_code TEXT NOT NULL REFERENCES poll(code) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    label TEXT NOT NULL,
    PRIMARY KEY (poll_code, position)
)`,

	`CREATE TABLE IF NOT EXISTS participant (
    poll_code TEXT NOT NULL REFERENCES poll(code) ON DELETE CASCADE,
    nickname TEXT NOT NULL,
    conn_id TEXT UNIQUE,
    connected BOOLEAN NOT NULL DEFAULT FALSE,
    joined_at BIGINT NOT NULL,
    last_active BIGINT NOT NULL,
    vote_option INTEGER,
    voted_at BIGINT,
    vote_updated_at BIGINT,
    PRIMARY KEY (poll_code, nickname)
)`,
	`CREATE INDEX IF NOT EXISTS idx_participant_presence ON participant(connected, last_active)`,
}
