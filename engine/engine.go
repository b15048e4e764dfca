// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/poll"
	"github.com/danielhkuo/livepoll/relay"
	"github.com/danielhkuo/livepoll/store"
)

var (
	pollsCreated = metrics.NewCounter("livepoll_polls_created_total")
	joins        = metrics.NewCounter("livepoll_joins_total")
	rejoins      = metrics.NewCounter("livepoll_rejoins_total")
	votes        = metrics.NewCounter("livepoll_votes_total")
	rejected     = metrics.NewCounter("livepoll_rejected_total")
)

type Config struct {
	// OpTimeout bounds every store operation
	OpTimeout time.Duration
	// PollTTL is the lifetime of a poll when the creator gives none; 0 means
	// polls never expire
	PollTTL    time.Duration
	StaleAfter time.Duration
	PurgeAfter time.Duration
	// SweepInterval is the period of RunSweeper
	SweepInterval time.Duration
	Now           func() time.Time
}

// Defaults
const (
	DefaultOpTimeout     = 300 * time.Millisecond
	DefaultPollTTL       = 24 * time.Hour
	DefaultStaleAfter    = 90 * time.Second
	DefaultPurgeAfter    = 30 * time.Minute
	DefaultSweepInterval = 15 * time.Second
)

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = DefaultPurgeAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Engine runs client commands against the store and turns every committed
// mutation into an event for the relay.
type Engine struct {
	store store.Store
	relay *relay.Relay
	audit Auditor
	cfg   Config
}

func New(s store.Store, r *relay.Relay, audit Auditor, cfg Config) *Engine {
	if audit == nil {
		audit = SlogAuditor{}
	}
	return &Engine{
		store: s,
		relay: r,
		audit: audit,
		cfg:   cfg.withDefaults(),
	}
}

// CreatePoll stores a new poll in state waiting. It returns the poll and the
// host key that authorizes host-only actions; the key is shown only once.
// A ttl of 0 uses the configured default.
func (e *Engine) CreatePoll(ctx context.Context, question string, options []string, ttl time.Duration) (models.Poll, string, error) {
	hostKey, err := auth.GenerateHostKey()
	if err != nil {
		return models.Poll{}, "", store.Transient("generate host key", err)
	}

	if ttl <= 0 {
		ttl = e.cfg.PollTTL
	}
	var expires *time.Time
	if ttl > 0 {
		t := e.cfg.Now().Add(ttl)
		expires = &t
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	p, err := e.store.CreatePoll(ctx, store.NewPoll{
		Question:  question,
		Options:   options,
		HostKey:   hostKey,
		ExpiresAt: expires,
	})
	if err != nil {
		rejected.Inc()
		return models.Poll{}, "", err
	}

	pollsCreated.Inc()
	slog.Info("poll created", "room", p.RoomCode, "options", len(p.Options))
	return p, hostKey, nil
}

// Snapshot returns the current observable state of a poll
func (e *Engine) Snapshot(ctx context.Context, code string) (models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()
	return e.store.Snapshot(ctx, poll.NormalizeRoomCode(code))
}

// Join registers sub's connection under nickname, or reconnects the
// disconnected participant holding it, and starts relaying the room to sub.
func (e *Engine) Join(ctx context.Context, code, nickname string, sub relay.Subscriber) (store.JoinResult, error) {
	code = poll.NormalizeRoomCode(code)
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	res, err := e.store.Join(opCtx, code, nickname, sub.ID())
	if err != nil {
		rejected.Inc()
		switch {
		case errors.Is(err, store.ErrNicknameTaken):
			e.audit.Record(ctx, AuditFact{Kind: FactNicknameCollision, Room: code, Nickname: nickname, ConnID: sub.ID(), Err: err})
		case errors.Is(err, store.ErrRoomFull):
			e.audit.Record(ctx, AuditFact{Kind: FactRoomFull, Room: code, Nickname: nickname, ConnID: sub.ID(), Err: err})
		}
		return store.JoinResult{}, err
	}

	e.relay.Attach(code, sub)

	evType := models.EventParticipantJoined
	if res.Rejoined {
		evType = models.EventParticipantRejoined
		rejoins.Inc()
	} else {
		joins.Inc()
	}
	slog.Info("participant joined", "room", code, "nickname", res.Participant.Nickname, "rejoined", res.Rejoined)

	e.publish(ctx, models.NewEvent(evType, code, res.Snapshot.Poll.Revision, models.PresencePayload{
		Nickname:       res.Participant.Nickname,
		ConnectedCount: res.Snapshot.ConnectedCount,
		Timestamp:      res.Participant.LastActive,
	}))
	return res, nil
}

// AttachHost binds sub as the host connection of the poll and starts
// relaying the room to it
func (e *Engine) AttachHost(ctx context.Context, code, hostKey string, sub relay.Subscriber) (models.Snapshot, error) {
	code = poll.NormalizeRoomCode(code)
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	snap, err := e.store.AttachHost(opCtx, code, hostKey, sub.ID())
	if err != nil {
		rejected.Inc()
		if errors.Is(err, store.ErrUnauthorized) {
			e.audit.Record(ctx, AuditFact{Kind: FactStateChangeUnauthorized, Room: code, ConnID: sub.ID(), Err: err})
		}
		return models.Snapshot{}, err
	}

	e.relay.Attach(code, sub)
	slog.Info("host attached", "room", code)
	return snap, nil
}

// Vote records the choice of nickname, voting over connID, and broadcasts
// the new tally
func (e *Engine) Vote(ctx context.Context, code, nickname, connID string, option int) (store.VoteResult, error) {
	code = poll.NormalizeRoomCode(code)
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	res, err := e.store.SubmitVote(opCtx, code, nickname, connID, option)
	if err != nil {
		rejected.Inc()
		if !store.Retryable(err) {
			e.audit.Record(ctx, AuditFact{Kind: FactVoteRejected, Room: code, Nickname: nickname, ConnID: connID, Err: err})
		}
		return store.VoteResult{}, err
	}

	votes.Inc()
	e.publish(ctx, models.NewEvent(models.EventVoteUpdate, code, res.Revision, models.VoteUpdatePayload{
		Counts:      res.Results.Counts,
		Percentages: res.Results.Percentages,
	}))
	return res, nil
}

// ChangeState applies a lifecycle transition requested with hostKey
func (e *Engine) ChangeState(ctx context.Context, code, state, hostKey string) (store.StateChange, error) {
	code = poll.NormalizeRoomCode(code)
	requested, err := poll.ParseState(state)
	if err != nil {
		rejected.Inc()
		return store.StateChange{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	change, err := e.store.ChangeState(opCtx, code, requested, hostKey)
	if err != nil {
		rejected.Inc()
		if errors.Is(err, store.ErrUnauthorized) {
			e.audit.Record(ctx, AuditFact{Kind: FactStateChangeUnauthorized, Room: code, Err: err})
		}
		return store.StateChange{}, err
	}

	slog.Info("poll state changed", "room", code, "from", change.Previous, "to", change.Current)
	e.publish(ctx, models.NewEvent(models.EventPollStateChanged, code, change.Revision, models.StateChangedPayload{
		NewState:      change.Current,
		PreviousState: change.Previous,
		Timestamp:     change.At,
	}))
	return change, nil
}

// DenyStateChange records a state change refused before it reached the
// store, such as one sent without a host key, and returns the error to
// report. connID is empty for HTTP callers.
func (e *Engine) DenyStateChange(ctx context.Context, code, connID string) error {
	code = poll.NormalizeRoomCode(code)
	err := fmt.Errorf("%w: only the host may change state", store.ErrUnauthorized)
	rejected.Inc()
	e.audit.Record(ctx, AuditFact{Kind: FactStateChangeUnauthorized, Room: code, ConnID: connID, Err: err})
	return err
}

// Disconnect handles the end of a connection: the participant (or host)
// bound to connID is marked gone and the room is told. A poll whose host
// left with nobody else connected is removed.
func (e *Engine) Disconnect(ctx context.Context, connID string) error {
	e.relay.Detach(connID)

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	change, found, err := e.store.Disconnect(opCtx, connID)
	if err != nil || !found {
		return err
	}

	if change.Host {
		slog.Info("host disconnected", "room", change.RoomCode, "connected", change.ConnectedCount)
		if change.RemoveEligible {
			return e.RemovePoll(ctx, change.RoomCode, models.ReasonAbandoned)
		}
		return nil
	}

	slog.Info("participant left", "room", change.RoomCode, "nickname", change.Nickname)
	e.publishLeft(ctx, change)
	return nil
}

// Touch records activity on a connection
func (e *Engine) Touch(ctx context.Context, connID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()
	return e.store.Touch(ctx, connID)
}

// RemovePoll tears a poll down and tells its room why
func (e *Engine) RemovePoll(ctx context.Context, code, reason string) error {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	revision, err := e.store.RemovePoll(opCtx, code)
	if err != nil {
		return fmt.Errorf("failed to remove poll %s: %w", code, err)
	}

	slog.Info("poll removed", "room", code, "reason", reason)
	e.publish(ctx, models.NewEvent(models.EventRoomClosed, code, revision, models.RoomClosedPayload{
		Reason:    reason,
		Timestamp: e.cfg.Now(),
	}))
	return nil
}

// publish hands ev to the relay. It runs after the commit, so it gets its own
// deadline and ignores cancellation of the request that caused it.
func (e *Engine) publish(ctx context.Context, ev models.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OpTimeout)
	defer cancel()
	e.relay.Publish(ctx, ev)
}

func (e *Engine) publishLeft(ctx context.Context, change store.PresenceChange) {
	e.publish(ctx, models.NewEvent(models.EventParticipantLeft, change.RoomCode, change.Revision, models.PresencePayload{
		Nickname:       change.Nickname,
		ConnectedCount: change.ConnectedCount,
		Timestamp:      change.At,
	}))
}
