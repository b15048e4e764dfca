// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Store is the single writer of polls, participants, and votes.
//
// Every mutation of one poll is linearizable with respect to every other
// mutation of the same poll, and bumps the poll revision exactly once per
// committed change. Mutations of different polls never contend. Errors are
// always from the taxonomy in errors.go, and no error path leaves a partial
// mutation behind.
type Store interface {
	// CreatePoll validates the input, assigns a fresh room code, and stores
	// the poll in state waiting.
	CreatePoll(ctx context.Context, p NewPoll) (models.Poll, error)
	// Snapshot returns the poll together with its current results and
	// connected participant count.
	Snapshot(ctx context.Context, code string) (models.Snapshot, error)
	// Join registers nickname in the poll, or rebinds a disconnected
	// participant holding that nickname to connID.
	Join(ctx context.Context, code, nickname, connID string) (JoinResult, error)
	// AttachHost binds connID as the live host connection of the poll.
	AttachHost(ctx context.Context, code, hostKey, connID string) (models.Snapshot, error)
	// SubmitVote upserts the participant's vote and returns the full tally.
	// connID must be the live connection bound to nickname; any other
	// connection gets ErrNotAMember.
	SubmitVote(ctx context.Context, code, nickname, connID string, option int) (VoteResult, error)
	// ChangeState applies a lifecycle transition requested by hostKey.
	ChangeState(ctx context.Context, code string, state models.PollState, hostKey string) (StateChange, error)
	// Disconnect marks whatever connID is bound to as gone. found is false
	// when connID is not bound to anything.
	Disconnect(ctx context.Context, connID string) (change PresenceChange, found bool, err error)
	// Touch refreshes the last activity of the participant bound to connID.
	Touch(ctx context.Context, connID string) error
	// MarkStale disconnects every connected participant whose last activity
	// is before the cutoff. Participants and votes are kept.
	MarkStale(ctx context.Context, before time.Time) ([]PresenceChange, error)
	// Purge deletes disconnected participants whose last activity is before
	// the cutoff; their votes leave the tally.
	Purge(ctx context.Context, before time.Time) ([]PurgeResult, error)
	// ExpiredPolls lists polls whose expiry is at or before now.
	ExpiredPolls(ctx context.Context, now time.Time) ([]string, error)
	// RemovePoll deletes the poll and everything it owns, releasing every
	// connection bound to it. It returns the final revision.
	RemovePoll(ctx context.Context, code string) (uint64, error)
	// Close releases the resources held by the store.
	Close() error
}

// --------------------------------------------------------------------------
// Inputs and Results
// --------------------------------------------------------------------------

// MaxCodeAttempts bounds room code generation retries on collision
const MaxCodeAttempts = 16

type NewPoll struct {
	Question  string
	Options   []string
	HostKey   string
	ExpiresAt *time.Time
}

type JoinResult struct {
	Participant models.Participant // carries the previous vote on rejoin
	Rejoined    bool
	Snapshot    models.Snapshot
}

type VoteResult struct {
	Vote     models.Vote
	Results  models.Results
	Revision uint64
}

type StateChange struct {
	Previous models.PollState
	Current  models.PollState
	Revision uint64
	At       time.Time
}

// PresenceChange describes one participant (or the host) going away
type PresenceChange struct {
	RoomCode       string
	Nickname       string // empty when Host is set
	Host           bool
	ConnectedCount int
	Revision       uint64
	At             time.Time
	// RemoveEligible is set when the host connection dropped and nobody is
	// left connected. The caller decides whether to tear the poll down.
	RemoveEligible bool
}

type PurgeResult struct {
	RoomCode string
	Removed  []string
	// VotesRemoved counts removed participants that had voted
	VotesRemoved int
	Results      models.Results
	Revision     uint64
}

// --------------------------------------------------------------------------
// Options shared by implementations
// --------------------------------------------------------------------------

type Options struct {
	// MaxParticipants caps connected participants per poll; 0 means no cap
	MaxParticipants int
	// GenerateCode produces candidate room codes
	GenerateCode func() (string, error)
	// Now is the clock used for every timestamp the store writes
	Now func() time.Time
}

// WithDefaults fills unset fields
func (o Options) WithDefaults() Options {
	if o.GenerateCode == nil {
		o.GenerateCode = auth.GenerateRoomCode
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}
