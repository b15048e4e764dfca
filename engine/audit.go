// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"log/slog"
)

// Audit fact kinds
const (
	FactVoteRejected            = "vote_rejected"
	FactStateChangeUnauthorized = "state_change_unauthorized"
	FactNicknameCollision       = "nickname_collision"
	FactRoomFull                = "room_full"
)

// AuditFact is a rejected action worth keeping a record of
type AuditFact struct {
	Kind     string
	Room     string
	Nickname string
	ConnID   string
	Err      error
}

// Auditor records audit facts. Implementations must be safe for concurrent use.
type Auditor interface {
	Record(ctx context.Context, fact AuditFact)
}

// SlogAuditor writes facts to a structured logger
type SlogAuditor struct {
	Logger *slog.Logger
}

func (a SlogAuditor) Record(ctx context.Context, fact AuditFact) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "audit",
		"audit", true,
		"fact", fact.Kind,
		"room", fact.Room,
		"nickname", fact.Nickname,
		"conn", fact.ConnID,
		"error", fact.Err,
	)
}
