// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/poll"
	"github.com/danielhkuo/livepoll/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// room is one poll and everything it owns. mu is the per-poll exclusion
// scope; every field below it is guarded by it.
type room struct {
	mu           sync.Mutex
	poll         models.Poll
	participants map[string]*models.Participant
	order        []string // nicknames in join order
	removed      bool
}

// binding records what a live connection is attached to
type binding struct {
	code     string
	nickname string
	host     bool
}

type storeImpl struct {
	opts  store.Options
	rooms *xsync.MapOf[string, *room]
	conns *xsync.MapOf[string, binding]
}

// New creates an in-process store. State lives only as long as the process
// and is not shared with other instances.
func New(opts store.Options) store.Store {
	return &storeImpl{
		opts:  opts.WithDefaults(),
		rooms: xsync.NewMapOf[string, *room](),
		conns: xsync.NewMapOf[string, binding](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) CreatePoll(ctx context.Context, p store.NewPoll) (models.Poll, error) {
	if err := ctx.Err(); err != nil {
		return models.Poll{}, store.Transient("create poll", err)
	}
	p, err := poll.NormalizeNewPoll(p)
	if err != nil {
		return models.Poll{}, err
	}

	now := s.opts.Now()
	for attempt := 0; attempt < store.MaxCodeAttempts; attempt++ {
		code, err := s.opts.GenerateCode()
		if err != nil {
			return models.Poll{}, store.Transient("generate room code", err)
		}

		r := &room{
			poll: models.Poll{
				RoomCode:  code,
				Question:  p.Question,
				Options:   append([]string(nil), p.Options...),
				State:     models.StateWaiting,
				HostKey:   p.HostKey,
				CreatedAt: now,
				ExpiresAt: copyTime(p.ExpiresAt),
			},
			participants: make(map[string]*models.Participant),
		}
		if _, loaded := s.rooms.LoadOrStore(code, r); loaded {
			continue
		}
		return copyPoll(r.poll), nil
	}
	return models.Poll{}, fmt.Errorf("%w: no free room code after %d attempts", store.ErrTransient, store.MaxCodeAttempts)
}

func (s *storeImpl) Snapshot(ctx context.Context, code string) (models.Snapshot, error) {
	r, err := s.lock(ctx, "snapshot", code)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

func (s *storeImpl) Join(ctx context.Context, code, nickname, connID string) (store.JoinResult, error) {
	nickname, err := poll.NormalizeNickname(nickname)
	if err != nil {
		return store.JoinResult{}, err
	}
	r, err := s.lock(ctx, "join", code)
	if err != nil {
		return store.JoinResult{}, err
	}
	defer r.mu.Unlock()

	now := s.opts.Now()
	existing, ok := r.participants[nickname]

	switch {
	case ok && existing.Connected:
		return store.JoinResult{}, fmt.Errorf("%w: %q is connected", store.ErrNicknameTaken, nickname)

	case ok:
		// Reconnection bypasses the capacity check
		if err := s.bind(connID, binding{code: r.poll.RoomCode, nickname: nickname}); err != nil {
			return store.JoinResult{}, err
		}
		existing.ConnID = connID
		existing.Connected = true
		existing.LastActive = now
		r.poll.Revision++
		return store.JoinResult{Participant: copyParticipant(existing), Rejoined: true, Snapshot: r.snapshot()}, nil

	default:
		if max := s.opts.MaxParticipants; max > 0 && r.connectedCount() >= max {
			return store.JoinResult{}, fmt.Errorf("%w: %d participants connected", store.ErrRoomFull, max)
		}
		if err := s.bind(connID, binding{code: r.poll.RoomCode, nickname: nickname}); err != nil {
			return store.JoinResult{}, err
		}
		p := &models.Participant{
			RoomCode:   r.poll.RoomCode,
			Nickname:   nickname,
			ConnID:     connID,
			Connected:  true,
			JoinedAt:   now,
			LastActive: now,
		}
		r.participants[nickname] = p
		r.order = append(r.order, nickname)
		r.poll.Revision++
		return store.JoinResult{Participant: copyParticipant(p), Snapshot: r.snapshot()}, nil
	}
}

func (s *storeImpl) AttachHost(ctx context.Context, code, hostKey, connID string) (models.Snapshot, error) {
	r, err := s.lock(ctx, "attach host", code)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer r.mu.Unlock()

	if err := auth.ValidateHostKey(r.poll.HostKey, hostKey); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: host key does not match", store.ErrUnauthorized)
	}
	if r.poll.HostConn == connID {
		return r.snapshot(), nil
	}
	if err := s.bind(connID, binding{code: r.poll.RoomCode, host: true}); err != nil {
		return models.Snapshot{}, err
	}
	if old := r.poll.HostConn; old != "" {
		s.conns.Delete(old)
	}
	r.poll.HostConn = connID
	return r.snapshot(), nil
}

func (s *storeImpl) SubmitVote(ctx context.Context, code, nickname, connID string, option int) (store.VoteResult, error) {
	r, err := s.lock(ctx, "submit vote", code)
	if err != nil {
		return store.VoteResult{}, err
	}
	defer r.mu.Unlock()

	if err := poll.CheckOpen(r.poll); err != nil {
		return store.VoteResult{}, err
	}
	p, ok := r.participants[nickname]
	if !ok {
		return store.VoteResult{}, fmt.Errorf("%w: %q", store.ErrNotAMember, nickname)
	}
	if connID == "" || p.ConnID != connID {
		return store.VoteResult{}, fmt.Errorf("%w: connection is not bound to %q", store.ErrNotAMember, nickname)
	}
	if err := poll.CheckOption(r.poll, option); err != nil {
		return store.VoteResult{}, err
	}

	now := s.opts.Now()
	if p.Vote == nil {
		p.Vote = &models.Vote{Option: option, CastAt: now, UpdatedAt: now}
	} else {
		p.Vote.Option = option
		p.Vote.UpdatedAt = now
	}
	p.LastActive = now
	r.poll.Revision++

	return store.VoteResult{
		Vote:     *p.Vote,
		Results:  r.results(),
		Revision: r.poll.Revision,
	}, nil
}

func (s *storeImpl) ChangeState(ctx context.Context, code string, state models.PollState, hostKey string) (store.StateChange, error) {
	r, err := s.lock(ctx, "change state", code)
	if err != nil {
		return store.StateChange{}, err
	}
	defer r.mu.Unlock()

	previous, err := poll.Transition(&r.poll, state, hostKey)
	if err != nil {
		return store.StateChange{}, err
	}
	r.poll.Revision++

	return store.StateChange{
		Previous: previous,
		Current:  r.poll.State,
		Revision: r.poll.Revision,
		At:       s.opts.Now(),
	}, nil
}

func (s *storeImpl) Disconnect(ctx context.Context, connID string) (store.PresenceChange, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.PresenceChange{}, false, store.Transient("disconnect", err)
	}
	b, ok := s.conns.Load(connID)
	if !ok {
		return store.PresenceChange{}, false, nil
	}
	r, err := s.lock(ctx, "disconnect", b.code)
	if err != nil {
		s.conns.Delete(connID)
		if store.Kind(err) == "not_found" {
			return store.PresenceChange{}, false, nil
		}
		return store.PresenceChange{}, false, err
	}
	defer r.mu.Unlock()

	now := s.opts.Now()
	if b.host {
		s.conns.Delete(connID)
		if r.poll.HostConn != connID {
			return store.PresenceChange{}, false, nil
		}
		r.poll.HostConn = ""
		connected := r.connectedCount()
		return store.PresenceChange{
			RoomCode:       r.poll.RoomCode,
			Host:           true,
			ConnectedCount: connected,
			Revision:       r.poll.Revision,
			At:             now,
			RemoveEligible: connected == 0,
		}, true, nil
	}

	p, ok := r.participants[b.nickname]
	s.conns.Delete(connID)
	if !ok || p.ConnID != connID {
		return store.PresenceChange{}, false, nil
	}
	return r.markDisconnected(p, now), true, nil
}

func (s *storeImpl) Touch(ctx context.Context, connID string) error {
	b, ok := s.conns.Load(connID)
	if !ok || b.host {
		return nil
	}
	r, err := s.lock(ctx, "touch", b.code)
	if err != nil {
		if store.Kind(err) == "not_found" {
			return nil
		}
		return err
	}
	defer r.mu.Unlock()

	if p, ok := r.participants[b.nickname]; ok && p.ConnID == connID {
		p.LastActive = s.opts.Now()
	}
	return nil
}

func (s *storeImpl) MarkStale(ctx context.Context, before time.Time) ([]store.PresenceChange, error) {
	var changes []store.PresenceChange
	for _, code := range s.codes() {
		r, err := s.lock(ctx, "mark stale", code)
		if err != nil {
			if store.Kind(err) == "not_found" {
				continue
			}
			return changes, err
		}
		now := s.opts.Now()
		for _, nickname := range r.order {
			p := r.participants[nickname]
			if !p.Connected || !p.LastActive.Before(before) {
				continue
			}
			s.conns.Delete(p.ConnID)
			changes = append(changes, r.markDisconnected(p, now))
		}
		r.mu.Unlock()
	}
	return changes, nil
}

func (s *storeImpl) Purge(ctx context.Context, before time.Time) ([]store.PurgeResult, error) {
	var purged []store.PurgeResult
	for _, code := range s.codes() {
		r, err := s.lock(ctx, "purge", code)
		if err != nil {
			if store.Kind(err) == "not_found" {
				continue
			}
			return purged, err
		}

		var removed []string
		votesRemoved := 0
		kept := r.order[:0]
		for _, nickname := range r.order {
			p := r.participants[nickname]
			if !p.Connected && p.LastActive.Before(before) {
				delete(r.participants, nickname)
				removed = append(removed, nickname)
				if p.Vote != nil {
					votesRemoved++
				}
				continue
			}
			kept = append(kept, nickname)
		}
		r.order = kept

		if len(removed) > 0 {
			r.poll.Revision++
			purged = append(purged, store.PurgeResult{
				RoomCode:     r.poll.RoomCode,
				Removed:      removed,
				VotesRemoved: votesRemoved,
				Results:      r.results(),
				Revision:     r.poll.Revision,
			})
		}
		r.mu.Unlock()
	}
	return purged, nil
}

func (s *storeImpl) ExpiredPolls(ctx context.Context, now time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Transient("expired polls", err)
	}
	var codes []string
	s.rooms.Range(func(code string, r *room) bool {
		r.mu.Lock()
		if !r.removed && r.poll.ExpiresAt != nil && !r.poll.ExpiresAt.After(now) {
			codes = append(codes, code)
		}
		r.mu.Unlock()
		return true
	})
	sort.Strings(codes)
	return codes, nil
}

func (s *storeImpl) RemovePoll(ctx context.Context, code string) (uint64, error) {
	r, err := s.lock(ctx, "remove poll", code)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	for _, p := range r.participants {
		if p.ConnID != "" {
			s.conns.Delete(p.ConnID)
		}
	}
	if r.poll.HostConn != "" {
		s.conns.Delete(r.poll.HostConn)
	}
	r.removed = true
	r.poll.Revision++
	s.rooms.Delete(code)
	return r.poll.Revision, nil
}

func (s *storeImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// lock returns the room for code with its mutex held
func (s *storeImpl) lock(ctx context.Context, op, code string) (*room, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Transient(op, err)
	}
	r, ok := s.rooms.Load(code)
	if !ok {
		return nil, fmt.Errorf("%w: poll %s", store.ErrNotFound, code)
	}
	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: poll %s", store.ErrNotFound, code)
	}
	return r, nil
}

// bind attaches connID to b. A connection serves one role in one poll.
func (s *storeImpl) bind(connID string, b binding) error {
	if connID == "" {
		return fmt.Errorf("%w: connection reference is required", store.ErrInvalidInput)
	}
	if _, loaded := s.conns.LoadOrStore(connID, b); loaded {
		return fmt.Errorf("%w: connection already joined a poll", store.ErrInvalidState)
	}
	return nil
}

// codes lists room codes in a stable order
func (s *storeImpl) codes() []string {
	codes := make([]string, 0, s.rooms.Size())
	s.rooms.Range(func(code string, _ *room) bool {
		codes = append(codes, code)
		return true
	})
	sort.Strings(codes)
	return codes
}

// markDisconnected clears p's connection. Caller holds r.mu.
func (r *room) markDisconnected(p *models.Participant, now time.Time) store.PresenceChange {
	p.ConnID = ""
	p.Connected = false
	p.LastActive = now
	r.poll.Revision++
	return store.PresenceChange{
		RoomCode:       r.poll.RoomCode,
		Nickname:       p.Nickname,
		ConnectedCount: r.connectedCount(),
		Revision:       r.poll.Revision,
		At:             now,
	}
}

func (r *room) connectedCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// results tallies the votes of every registered participant, connected or not
func (r *room) results() models.Results {
	votes := make([]int, 0, len(r.participants))
	for _, p := range r.participants {
		if p.Vote != nil {
			votes = append(votes, p.Vote.Option)
		}
	}
	return poll.Tally(len(r.poll.Options), votes)
}

func (r *room) snapshot() models.Snapshot {
	return models.Snapshot{
		Poll:           copyPoll(r.poll),
		Results:        r.results(),
		ConnectedCount: r.connectedCount(),
	}
}

func copyPoll(p models.Poll) models.Poll {
	p.Options = append([]string(nil), p.Options...)
	p.ExpiresAt = copyTime(p.ExpiresAt)
	return p
}

func copyParticipant(p *models.Participant) models.Participant {
	c := *p
	if p.Vote != nil {
		v := *p.Vote
		c.Vote = &v
	}
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
