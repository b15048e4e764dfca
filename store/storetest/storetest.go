// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package storetest is a conformance suite every store.Store implementation
// must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// Factory creates an empty store using opts
type Factory func(t *testing.T, opts store.Options) store.Store

// Clock is a manually advanced clock for store.Options.Now
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Run runs the full suite against the implementation built by factory
func Run(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateAndSnapshot", func(t *testing.T) { testCreateAndSnapshot(t, factory) })
		t.Run("CreateValidation", func(t *testing.T) { testCreateValidation(t, factory) })
		t.Run("CodeCollision", func(t *testing.T) { testCodeCollision(t, factory) })
		t.Run("NotFound", func(t *testing.T) { testNotFound(t, factory) })
		t.Run("JoinAndRejoin", func(t *testing.T) { testJoinAndRejoin(t, factory) })
		t.Run("NicknameTaken", func(t *testing.T) { testNicknameTaken(t, factory) })
		t.Run("ConnectionBindsOnce", func(t *testing.T) { testConnectionBindsOnce(t, factory) })
		t.Run("RoomFull", func(t *testing.T) { testRoomFull(t, factory) })
		t.Run("Voting", func(t *testing.T) { testVoting(t, factory) })
		t.Run("ChangeState", func(t *testing.T) { testChangeState(t, factory) })
		t.Run("HostAttach", func(t *testing.T) { testHostAttach(t, factory) })
		t.Run("Disconnect", func(t *testing.T) { testDisconnect(t, factory) })
		t.Run("StaleAndPurge", func(t *testing.T) { testStaleAndPurge(t, factory) })
		t.Run("ExpireAndRemove", func(t *testing.T) { testExpireAndRemove(t, factory) })
		t.Run("ConcurrentVotes", func(t *testing.T) { testConcurrentVotes(t, factory) })
		t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, factory) })
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const hostKey = "test-host-key"

func newPoll(options ...string) store.NewPoll {
	if len(options) == 0 {
		options = []string{"Red", "Green", "Blue"}
	}
	return store.NewPoll{Question: "Favorite color?", Options: options, HostKey: hostKey}
}

func mustCreate(t *testing.T, s store.Store, p store.NewPoll) models.Poll {
	t.Helper()
	created, err := s.CreatePoll(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	return created
}

func mustJoin(t *testing.T, s store.Store, code, nickname, connID string) store.JoinResult {
	t.Helper()
	res, err := s.Join(context.Background(), code, nickname, connID)
	if err != nil {
		t.Fatalf("Join(%s, %s): %v", nickname, connID, err)
	}
	return res
}

func mustOpen(t *testing.T, s store.Store, code string) {
	t.Helper()
	if _, err := s.ChangeState(context.Background(), code, models.StateOpen, hostKey); err != nil {
		t.Fatalf("ChangeState(open): %v", err)
	}
}

func mustSnapshot(t *testing.T, s store.Store, code string) models.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), code)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateAndSnapshot(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, store.Options{Now: clock.Now})

	created := mustCreate(t, s, newPoll("  Yes ", "No"))
	if created.State != models.StateWaiting {
		t.Errorf("expected state waiting, got %s", created.State)
	}
	if len(created.RoomCode) != 6 {
		t.Errorf("expected 6 char room code, got %q", created.RoomCode)
	}
	if created.Options[0] != "Yes" {
		t.Errorf("expected trimmed option, got %q", created.Options[0])
	}

	snap := mustSnapshot(t, s, created.RoomCode)
	if snap.Poll.Question != "Favorite color?" {
		t.Errorf("unexpected question %q", snap.Poll.Question)
	}
	if !equalInts(snap.Results.Counts, []int{0, 0}) || !equalInts(snap.Results.Percentages, []int{0, 0}) {
		t.Errorf("expected zero results, got %+v", snap.Results)
	}
	if snap.ConnectedCount != 0 {
		t.Errorf("expected 0 connected, got %d", snap.ConnectedCount)
	}
	if !snap.Poll.CreatedAt.Equal(clock.Now()) {
		t.Errorf("expected created_at %v, got %v", clock.Now(), snap.Poll.CreatedAt)
	}
}

func testCreateValidation(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})

	tests := []struct {
		name string
		poll store.NewPoll
	}{
		{"one option", newPoll("Only")},
		{"six options", newPoll("a", "b", "c", "d", "e", "f")},
		{"blank option", newPoll("a", "   ")},
		{"empty question", store.NewPoll{Question: " ", Options: []string{"a", "b"}, HostKey: hostKey}},
		{"no host", store.NewPoll{Question: "q", Options: []string{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePoll(context.Background(), tt.poll)
			wantErr(t, err, store.ErrInvalidInput)
		})
	}
}

func testCodeCollision(t *testing.T, factory Factory) {
	var calls atomic.Int32
	codes := []string{"AAAAAA", "AAAAAA", "CCCCCC"}
	gen := func() (string, error) {
		n := int(calls.Add(1)) - 1
		if n < len(codes) {
			return codes[n], nil
		}
		return "AAAAAA", nil
	}
	s := factory(t, store.Options{GenerateCode: gen})

	first := mustCreate(t, s, newPoll())
	second := mustCreate(t, s, newPoll())
	if first.RoomCode != "AAAAAA" || second.RoomCode != "CCCCCC" {
		t.Fatalf("expected AAAAAA then CCCCCC, got %s then %s", first.RoomCode, second.RoomCode)
	}

	_, err := s.CreatePoll(context.Background(), newPoll())
	wantErr(t, err, store.ErrTransient)
}

func testNotFound(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()

	_, err := s.Snapshot(ctx, "ZZZZZZ")
	wantErr(t, err, store.ErrNotFound)
	_, err = s.Join(ctx, "ZZZZZZ", "alice", "c1")
	wantErr(t, err, store.ErrNotFound)
	_, err = s.SubmitVote(ctx, "ZZZZZZ", "alice", "c1", 0)
	wantErr(t, err, store.ErrNotFound)
	_, err = s.ChangeState(ctx, "ZZZZZZ", models.StateOpen, hostKey)
	wantErr(t, err, store.ErrNotFound)
	_, err = s.RemovePoll(ctx, "ZZZZZZ")
	wantErr(t, err, store.ErrNotFound)

	if _, found, err := s.Disconnect(ctx, "never-bound"); err != nil || found {
		t.Errorf("expected unbound disconnect to be a no-op, got found=%v err=%v", found, err)
	}
}

func testJoinAndRejoin(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	first := mustJoin(t, s, p.RoomCode, "alice", "c1")
	if first.Rejoined {
		t.Error("first join reported as rejoin")
	}
	if first.Snapshot.ConnectedCount != 1 {
		t.Errorf("expected 1 connected, got %d", first.Snapshot.ConnectedCount)
	}

	mustOpen(t, s, p.RoomCode)
	if _, err := s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 2); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}

	change, found, err := s.Disconnect(ctx, "c1")
	if err != nil || !found {
		t.Fatalf("Disconnect: found=%v err=%v", found, err)
	}
	if change.Nickname != "alice" || change.ConnectedCount != 0 {
		t.Errorf("unexpected presence change %+v", change)
	}

	again := mustJoin(t, s, p.RoomCode, "alice", "c2")
	if !again.Rejoined {
		t.Error("expected rejoin")
	}
	if again.Participant.Vote == nil || again.Participant.Vote.Option != 2 {
		t.Errorf("expected previous vote 2 to survive, got %+v", again.Participant.Vote)
	}
	if !again.Participant.Connected {
		t.Error("expected participant to be connected after rejoin")
	}
	if again.Snapshot.Results.TotalVotes != 1 {
		t.Errorf("expected vote to remain in tally, got %+v", again.Snapshot.Results)
	}

	// The released connection no longer speaks for alice
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0)
	wantErr(t, err, store.ErrNotAMember)
	res, err := s.SubmitVote(ctx, p.RoomCode, "alice", "c2", 1)
	if err != nil {
		t.Fatalf("SubmitVote on new connection: %v", err)
	}
	if !equalInts(res.Results.Counts, []int{0, 1, 0}) {
		t.Errorf("expected only the rebound vote to count, got %+v", res.Results)
	}
}

func testNicknameTaken(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	p := mustCreate(t, s, newPoll())
	mustJoin(t, s, p.RoomCode, "alice", "c1")

	_, err := s.Join(context.Background(), p.RoomCode, "alice", "c2")
	wantErr(t, err, store.ErrNicknameTaken)

	// Case-sensitive
	mustJoin(t, s, p.RoomCode, "Alice", "c3")

	if got := mustSnapshot(t, s, p.RoomCode).ConnectedCount; got != 2 {
		t.Errorf("expected 2 connected, got %d", got)
	}
}

func testConnectionBindsOnce(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	a := mustCreate(t, s, newPoll())
	b := mustCreate(t, s, newPoll())
	mustJoin(t, s, a.RoomCode, "alice", "c1")

	_, err := s.Join(context.Background(), a.RoomCode, "bob", "c1")
	wantErr(t, err, store.ErrInvalidState)
	_, err = s.Join(context.Background(), b.RoomCode, "alice", "c1")
	wantErr(t, err, store.ErrInvalidState)

	if got := mustSnapshot(t, s, b.RoomCode).ConnectedCount; got != 0 {
		t.Errorf("failed join left a participant behind: %d connected", got)
	}
}

func testRoomFull(t *testing.T, factory Factory) {
	s := factory(t, store.Options{MaxParticipants: 2})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	mustJoin(t, s, p.RoomCode, "alice", "c1")
	mustJoin(t, s, p.RoomCode, "bob", "c2")

	_, err := s.Join(ctx, p.RoomCode, "carol", "c3")
	wantErr(t, err, store.ErrRoomFull)

	if _, _, err := s.Disconnect(ctx, "c2"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	mustJoin(t, s, p.RoomCode, "carol", "c3")

	// bob is registered, so reconnecting bypasses the cap
	res := mustJoin(t, s, p.RoomCode, "bob", "c4")
	if !res.Rejoined || res.Snapshot.ConnectedCount != 3 {
		t.Errorf("expected rejoin over capacity, got rejoined=%v connected=%d", res.Rejoined, res.Snapshot.ConnectedCount)
	}
}

func testVoting(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())
	mustJoin(t, s, p.RoomCode, "alice", "c1")
	mustJoin(t, s, p.RoomCode, "bob", "c2")

	_, err := s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0)
	wantErr(t, err, store.ErrNotOpen)

	mustOpen(t, s, p.RoomCode)

	_, err = s.SubmitVote(ctx, p.RoomCode, "mallory", "c9", 0)
	wantErr(t, err, store.ErrNotAMember)
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c2", 0)
	wantErr(t, err, store.ErrNotAMember)
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "", 0)
	wantErr(t, err, store.ErrNotAMember)
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 3)
	wantErr(t, err, store.ErrOutOfRange)
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", -1)
	wantErr(t, err, store.ErrOutOfRange)

	// The last option is in range
	res, err := s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 2)
	if err != nil {
		t.Fatalf("SubmitVote last option: %v", err)
	}
	if !equalInts(res.Results.Counts, []int{0, 0, 1}) {
		t.Errorf("unexpected results %+v", res.Results)
	}

	res, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0)
	if err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	if !equalInts(res.Results.Counts, []int{1, 0, 0}) || !equalInts(res.Results.Percentages, []int{100, 0, 0}) {
		t.Errorf("unexpected results %+v", res.Results)
	}
	firstCast := res.Vote.CastAt

	if _, err := s.SubmitVote(ctx, p.RoomCode, "bob", "c2", 1); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	res, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 1)
	if err != nil {
		t.Fatalf("SubmitVote change: %v", err)
	}
	if !equalInts(res.Results.Counts, []int{0, 2, 0}) || res.Results.TotalVotes != 2 {
		t.Errorf("vote change should replace, got %+v", res.Results)
	}
	if !res.Vote.CastAt.Equal(firstCast) {
		t.Errorf("cast time changed on update: %v -> %v", firstCast, res.Vote.CastAt)
	}

	if _, err := s.ChangeState(ctx, p.RoomCode, models.StateClosed, hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0)
	wantErr(t, err, store.ErrNotOpen)

	snap := mustSnapshot(t, s, p.RoomCode)
	if !equalInts(snap.Results.Counts, []int{0, 2, 0}) {
		t.Errorf("closed poll results changed: %+v", snap.Results)
	}
}

func testChangeState(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	_, err := s.ChangeState(ctx, p.RoomCode, models.StateOpen, "wrong")
	wantErr(t, err, store.ErrUnauthorized)
	_, err = s.ChangeState(ctx, p.RoomCode, models.StateWaiting, hostKey)
	wantErr(t, err, store.ErrInvalidState)

	before := mustSnapshot(t, s, p.RoomCode).Poll.Revision
	change, err := s.ChangeState(ctx, p.RoomCode, models.StateOpen, hostKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if change.Previous != models.StateWaiting || change.Current != models.StateOpen {
		t.Errorf("unexpected change %+v", change)
	}
	if change.Revision != before+1 {
		t.Errorf("expected revision %d, got %d", before+1, change.Revision)
	}

	_, err = s.ChangeState(ctx, p.RoomCode, models.StateWaiting, hostKey)
	wantErr(t, err, store.ErrInvalidState)

	if _, err := s.ChangeState(ctx, p.RoomCode, models.StateClosed, hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = s.ChangeState(ctx, p.RoomCode, models.StateOpen, hostKey)
	wantErr(t, err, store.ErrInvalidState)

	// Rejected transitions do not move the revision
	if got := mustSnapshot(t, s, p.RoomCode).Poll.Revision; got != before+2 {
		t.Errorf("expected revision %d, got %d", before+2, got)
	}
}

func testHostAttach(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	_, err := s.AttachHost(ctx, p.RoomCode, "wrong", "h1")
	wantErr(t, err, store.ErrUnauthorized)

	if _, err := s.AttachHost(ctx, p.RoomCode, hostKey, "h1"); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}
	// The host connection cannot also vote as a participant
	_, err = s.Join(ctx, p.RoomCode, "alice", "h1")
	wantErr(t, err, store.ErrInvalidState)

	// A second host connection replaces the first
	if _, err := s.AttachHost(ctx, p.RoomCode, hostKey, "h2"); err != nil {
		t.Fatalf("AttachHost replace: %v", err)
	}
	if _, found, _ := s.Disconnect(ctx, "h1"); found {
		t.Error("replaced host connection should no longer be bound")
	}
}

func testDisconnect(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	if _, err := s.AttachHost(ctx, p.RoomCode, hostKey, "h1"); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}
	mustJoin(t, s, p.RoomCode, "alice", "c1")

	rev := mustSnapshot(t, s, p.RoomCode).Poll.Revision
	change, found, err := s.Disconnect(ctx, "c1")
	if err != nil || !found {
		t.Fatalf("Disconnect: found=%v err=%v", found, err)
	}
	if change.Revision != rev+1 {
		t.Errorf("expected revision %d, got %d", rev+1, change.Revision)
	}
	if _, found, _ := s.Disconnect(ctx, "c1"); found {
		t.Error("second disconnect of the same connection should be a no-op")
	}

	change, found, err = s.Disconnect(ctx, "h1")
	if err != nil || !found {
		t.Fatalf("host Disconnect: found=%v err=%v", found, err)
	}
	if !change.Host || !change.RemoveEligible {
		t.Errorf("expected host departure with nobody left, got %+v", change)
	}
	if _, err := s.Snapshot(ctx, p.RoomCode); err != nil {
		t.Errorf("store must not remove the poll on its own: %v", err)
	}

	// Host leaving while participants remain
	q := mustCreate(t, s, newPoll())
	if _, err := s.AttachHost(ctx, q.RoomCode, hostKey, "h2"); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}
	mustJoin(t, s, q.RoomCode, "bob", "c2")
	change, _, _ = s.Disconnect(ctx, "h2")
	if change.RemoveEligible {
		t.Error("poll with a connected participant should not be remove-eligible")
	}
}

func testStaleAndPurge(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, store.Options{Now: clock.Now})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())
	mustJoin(t, s, p.RoomCode, "alice", "c1")
	mustJoin(t, s, p.RoomCode, "bob", "c2")
	mustOpen(t, s, p.RoomCode)
	if _, err := s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	if _, err := s.SubmitVote(ctx, p.RoomCode, "bob", "c2", 1); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}

	clock.Advance(60 * time.Second)
	if err := s.Touch(ctx, "c2"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	clock.Advance(40 * time.Second)

	stale, err := s.MarkStale(ctx, clock.Now().Add(-90*time.Second))
	if err != nil {
		t.Fatalf("MarkStale: %v", err)
	}
	if len(stale) != 1 || stale[0].Nickname != "alice" || stale[0].ConnectedCount != 1 {
		t.Fatalf("expected only alice to go stale, got %+v", stale)
	}
	if got := mustSnapshot(t, s, p.RoomCode).Results.TotalVotes; got != 2 {
		t.Errorf("stale participant's vote must stay, total=%d", got)
	}

	// Nothing is old enough to purge yet
	purged, err := s.Purge(ctx, clock.Now().Add(-30*time.Minute))
	if err != nil || len(purged) != 0 {
		t.Fatalf("expected no purge, got %+v err=%v", purged, err)
	}

	clock.Advance(31 * time.Minute)
	purged, err = s.Purge(ctx, clock.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(purged) != 1 || len(purged[0].Removed) != 1 || purged[0].Removed[0] != "alice" {
		t.Fatalf("expected alice purged, got %+v", purged)
	}
	if purged[0].VotesRemoved != 1 {
		t.Errorf("expected 1 vote removed, got %d", purged[0].VotesRemoved)
	}
	if !equalInts(purged[0].Results.Counts, []int{0, 1, 0}) {
		t.Errorf("expected alice's vote to leave the tally, got %+v", purged[0].Results)
	}

	// alice is a stranger now
	_, err = s.SubmitVote(ctx, p.RoomCode, "alice", "c1", 0)
	wantErr(t, err, store.ErrNotAMember)
	res := mustJoin(t, s, p.RoomCode, "alice", "c3")
	if res.Rejoined || res.Participant.Vote != nil {
		t.Errorf("purged participant should join fresh, got %+v", res)
	}
}

func testExpireAndRemove(t *testing.T, factory Factory) {
	clock := NewClock()
	s := factory(t, store.Options{Now: clock.Now})
	ctx := context.Background()

	expires := clock.Now().Add(time.Hour)
	short := newPoll()
	short.ExpiresAt = &expires
	p := mustCreate(t, s, short)
	forever := mustCreate(t, s, newPoll())
	mustJoin(t, s, p.RoomCode, "alice", "c1")

	codes, err := s.ExpiredPolls(ctx, clock.Now())
	if err != nil || len(codes) != 0 {
		t.Fatalf("expected nothing expired, got %v err=%v", codes, err)
	}

	clock.Advance(2 * time.Hour)
	codes, err = s.ExpiredPolls(ctx, clock.Now())
	if err != nil {
		t.Fatalf("ExpiredPolls: %v", err)
	}
	if len(codes) != 1 || codes[0] != p.RoomCode {
		t.Fatalf("expected [%s], got %v", p.RoomCode, codes)
	}

	before := mustSnapshot(t, s, p.RoomCode).Poll.Revision
	rev, err := s.RemovePoll(ctx, p.RoomCode)
	if err != nil {
		t.Fatalf("RemovePoll: %v", err)
	}
	if rev <= before {
		t.Errorf("final revision %d should exceed %d", rev, before)
	}

	_, err = s.Snapshot(ctx, p.RoomCode)
	wantErr(t, err, store.ErrNotFound)
	if _, found, _ := s.Disconnect(ctx, "c1"); found {
		t.Error("connections of a removed poll should be released")
	}
	// Released connection can join elsewhere
	mustJoin(t, s, forever.RoomCode, "alice", "c1")
}

func testConcurrentVotes(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	ctx := context.Background()
	p := mustCreate(t, s, newPoll())

	const voters = 20
	for i := 0; i < voters; i++ {
		mustJoin(t, s, p.RoomCode, fmt.Sprintf("voter-%d", i), fmt.Sprintf("conn-%d", i))
	}
	mustOpen(t, s, p.RoomCode)
	start := mustSnapshot(t, s, p.RoomCode).Poll.Revision

	var wg sync.WaitGroup
	var failures atomic.Int32
	revisions := make([]uint64, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.SubmitVote(ctx, p.RoomCode, fmt.Sprintf("voter-%d", i), fmt.Sprintf("conn-%d", i), i%3)
			if err != nil {
				failures.Add(1)
				return
			}
			revisions[i] = res.Revision
		}(i)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d concurrent votes failed", failures.Load())
	}

	snap := mustSnapshot(t, s, p.RoomCode)
	if snap.Results.TotalVotes != voters {
		t.Errorf("expected %d votes, got %d", voters, snap.Results.TotalVotes)
	}
	if !equalInts(snap.Results.Counts, []int{7, 7, 6}) {
		t.Errorf("unexpected counts %v", snap.Results.Counts)
	}
	if snap.Poll.Revision != start+voters {
		t.Errorf("expected revision %d, got %d", start+voters, snap.Poll.Revision)
	}

	seen := make(map[uint64]bool)
	for _, rev := range revisions {
		if seen[rev] {
			t.Errorf("revision %d handed out twice", rev)
		}
		seen[rev] = true
	}
}

func testCanceledContext(t *testing.T, factory Factory) {
	s := factory(t, store.Options{})
	p := mustCreate(t, s, newPoll())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Join(ctx, p.RoomCode, "alice", "c1")
	wantErr(t, err, store.ErrTransient)
	if !store.Retryable(err) {
		t.Error("canceled operation should be retryable")
	}
	if got := mustSnapshot(t, s, p.RoomCode).ConnectedCount; got != 0 {
		t.Errorf("canceled join left state behind: %d connected", got)
	}
}
