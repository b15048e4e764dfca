// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/livepoll/bus"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/relay"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/store/memstore"
	"github.com/danielhkuo/livepoll/store/storetest"
	"github.com/danielhkuo/livepoll/testutil"
)

type auditLog struct {
	mu    sync.Mutex
	facts []engine.AuditFact
}

func (a *auditLog) Record(_ context.Context, fact engine.AuditFact) {
	a.mu.Lock()
	a.facts = append(a.facts, fact)
	a.mu.Unlock()
}

func (a *auditLog) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]string, len(a.facts))
	for i, f := range a.facts {
		kinds[i] = f.Kind
	}
	return kinds
}

// The walkthrough: create, open, two voters, reconnect, change vote, close.
func TestPollWalkthrough(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewTestEngine(t, store.Options{})
	host := testutil.NewRecorder("host")

	p, hostKey, err := e.CreatePoll(ctx, "Lunch?", []string{"Tacos", "Pho"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if p.ExpiresAt == nil {
		t.Fatal("expected the default TTL to set an expiry")
	}
	if ttl := p.ExpiresAt.Sub(p.CreatedAt); ttl < engine.DefaultPollTTL-time.Second || ttl > engine.DefaultPollTTL+time.Second {
		t.Errorf("expected a TTL of %v, got %v", engine.DefaultPollTTL, ttl)
	}
	if _, err := e.AttachHost(ctx, p.RoomCode, hostKey, host); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}
	if _, err := e.ChangeState(ctx, p.RoomCode, "open", hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}

	ann := testutil.NewRecorder("ann-1")
	bo := testutil.NewRecorder("bo-1")
	if _, err := e.Join(ctx, p.RoomCode, "Ann", ann); err != nil {
		t.Fatalf("Join Ann: %v", err)
	}
	if _, err := e.Join(ctx, p.RoomCode, "Bo", bo); err != nil {
		t.Fatalf("Join Bo: %v", err)
	}
	if _, err := e.Vote(ctx, p.RoomCode, "Ann", "ann-1", 0); err != nil {
		t.Fatalf("Vote Ann: %v", err)
	}
	if _, err := e.Vote(ctx, p.RoomCode, "Bo", "bo-1", 1); err != nil {
		t.Fatalf("Vote Bo: %v", err)
	}

	var votes models.VoteUpdatePayload
	testutil.DecodePayload(t, host.Last(t, models.EventVoteUpdate), &votes)
	if fmt.Sprint(votes.Counts) != "[1 1]" || fmt.Sprint(votes.Percentages) != "[50 50]" {
		t.Errorf("expected [1 1] / [50 50], got %v / %v", votes.Counts, votes.Percentages)
	}

	// Ann drops and comes back on a new connection
	if err := e.Disconnect(ctx, "ann-1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	var left models.PresencePayload
	testutil.DecodePayload(t, bo.Last(t, models.EventParticipantLeft), &left)
	if left.Nickname != "Ann" || left.ConnectedCount != 1 {
		t.Errorf("unexpected participant-left payload %+v", left)
	}

	ann2 := testutil.NewRecorder("ann-2")
	res, err := e.Join(ctx, p.RoomCode, "Ann", ann2)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !res.Rejoined || res.Participant.Vote == nil || res.Participant.Vote.Option != 0 {
		t.Errorf("expected rejoin restoring vote 0, got %+v", res)
	}
	if fmt.Sprint(res.Snapshot.Results.Counts) != "[1 1]" {
		t.Errorf("counts changed across rejoin: %v", res.Snapshot.Results.Counts)
	}
	bo.Last(t, models.EventParticipantRejoined)

	if _, err := e.Vote(ctx, p.RoomCode, "Bo", "bo-1", 0); err != nil {
		t.Fatalf("Bo changes vote: %v", err)
	}
	testutil.DecodePayload(t, ann2.Last(t, models.EventVoteUpdate), &votes)
	if fmt.Sprint(votes.Counts) != "[2 0]" || fmt.Sprint(votes.Percentages) != "[100 0]" {
		t.Errorf("expected [2 0] / [100 0], got %v / %v", votes.Counts, votes.Percentages)
	}

	if _, err := e.ChangeState(ctx, p.RoomCode, "closed", hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}
	var state models.StateChangedPayload
	testutil.DecodePayload(t, bo.Last(t, models.EventPollStateChanged), &state)
	if state.NewState != models.StateClosed || state.PreviousState != models.StateOpen {
		t.Errorf("unexpected state payload %+v", state)
	}

	cy := testutil.NewRecorder("cy-1")
	if _, err := e.Join(ctx, p.RoomCode, "Cy", cy); err != nil {
		t.Fatalf("Join Cy: %v", err)
	}
	_, err = e.Vote(ctx, p.RoomCode, "Cy", "cy-1", 0)
	if !errors.Is(err, store.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestRevisionsIncreaseInDeliveryOrder(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewTestEngine(t, store.Options{})
	code, _ := testutil.CreateTestPoll(t, e, models.StateOpen)

	watcher := testutil.NewRecorder("watcher")
	if _, err := e.Join(ctx, code, "watcher", watcher); err != nil {
		t.Fatalf("Join: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.Vote(ctx, code, "watcher", "watcher", i%3); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}

	var last uint64
	for _, ev := range watcher.Events() {
		if ev.Revision <= last {
			t.Errorf("revision %d delivered after %d", ev.Revision, last)
		}
		last = ev.Revision
	}
	if len(watcher.Events()) != 6 {
		t.Errorf("expected joined + 5 vote updates, got %v", watcher.Types())
	}
}

func TestRoomCodeNormalized(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewTestEngine(t, store.Options{})
	code, _ := testutil.CreateTestPoll(t, e, models.StateOpen)

	if _, err := e.Join(ctx, " "+code+" ", "alice", testutil.NewRecorder("c1")); err != nil {
		t.Fatalf("Join with padded code: %v", err)
	}
	if _, err := e.Snapshot(ctx, strings.ToLower(code)); err != nil {
		t.Errorf("Snapshot with lowercase code: %v", err)
	}
}

func TestAuditFacts(t *testing.T) {
	ctx := context.Background()
	audit := &auditLog{}
	r := relay.New("instance-a", bus.NewLocal())
	defer r.Close()
	e := engine.New(memstore.New(store.Options{MaxParticipants: 1}), r, audit, engine.Config{})

	p, hostKey, err := e.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}

	if _, err := e.Join(ctx, p.RoomCode, "alice", testutil.NewRecorder("c1")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	_, err = e.Join(ctx, p.RoomCode, "alice", testutil.NewRecorder("c2"))
	if !errors.Is(err, store.ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}
	_, err = e.Join(ctx, p.RoomCode, "bob", testutil.NewRecorder("c3"))
	if !errors.Is(err, store.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	_, err = e.ChangeState(ctx, p.RoomCode, "open", "not-"+hostKey)
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = e.Vote(ctx, p.RoomCode, "alice", "c1", 0)
	if !errors.Is(err, store.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	// A participant connection asking for a state change never reaches the store
	err = e.DenyStateChange(ctx, p.RoomCode, "c1")
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	want := []string{
		engine.FactNicknameCollision,
		engine.FactRoomFull,
		engine.FactStateChangeUnauthorized,
		engine.FactVoteRejected,
		engine.FactStateChangeUnauthorized,
	}
	if got := audit.kinds(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected facts %v, got %v", want, got)
	}
}

func TestZeroPollTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	cluster := testutil.NewCluster(t, memstore.New(store.Options{}), 1, engine.Config{})
	e := cluster[0].Engine

	p, _, err := e.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if p.ExpiresAt != nil {
		t.Errorf("expected no expiry without a TTL, got %v", p.ExpiresAt)
	}

	p, _, err = e.CreatePoll(ctx, "q", []string{"a", "b"}, time.Minute)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if p.ExpiresAt == nil {
		t.Error("explicit TTL should set an expiry")
	}
}

func TestUnknownStateRejected(t *testing.T) {
	e := testutil.NewTestEngine(t, store.Options{})
	code, hostKey := testutil.CreateTestPoll(t, e, models.StateWaiting)

	_, err := e.ChangeState(context.Background(), code, "paused", hostKey)
	if !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestHostLeavingEmptyRoomClosesIt(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewTestEngine(t, store.Options{})
	p, hostKey, err := e.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	host := testutil.NewRecorder("host")
	if _, err := e.AttachHost(ctx, p.RoomCode, hostKey, host); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}

	if err := e.Disconnect(ctx, "host"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	_, err = e.Snapshot(ctx, p.RoomCode)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected abandoned poll to be gone, got %v", err)
	}
}

func TestHostLeavingOccupiedRoomKeepsIt(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewTestEngine(t, store.Options{})
	p, hostKey, err := e.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if _, err := e.AttachHost(ctx, p.RoomCode, hostKey, testutil.NewRecorder("host")); err != nil {
		t.Fatalf("AttachHost: %v", err)
	}
	alice := testutil.NewRecorder("alice")
	if _, err := e.Join(ctx, p.RoomCode, "alice", alice); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := e.Disconnect(ctx, "host"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := e.Snapshot(ctx, p.RoomCode); err != nil {
		t.Errorf("poll with a participant should survive host loss: %v", err)
	}
	for _, typ := range alice.Types() {
		if typ == models.EventRoomClosed {
			t.Error("room-closed sent while participants remain")
		}
	}
}

func TestCrossInstanceFanOut(t *testing.T) {
	ctx := context.Background()
	cluster := testutil.NewCluster(t, memstore.New(store.Options{}), 2, engine.Config{})
	a, b := cluster[0].Engine, cluster[1].Engine

	p, hostKey, err := a.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	onA := testutil.NewRecorder("on-a")
	onB := testutil.NewRecorder("on-b")
	if _, err := a.Join(ctx, p.RoomCode, "alice", onA); err != nil {
		t.Fatalf("Join on a: %v", err)
	}
	if _, err := b.Join(ctx, p.RoomCode, "bob", onB); err != nil {
		t.Fatalf("Join on b: %v", err)
	}
	if _, err := b.ChangeState(ctx, p.RoomCode, "open", hostKey); err != nil {
		t.Fatalf("open via b: %v", err)
	}
	if _, err := a.Vote(ctx, p.RoomCode, "alice", "on-a", 1); err != nil {
		t.Fatalf("Vote via a: %v", err)
	}

	want := []models.EventType{
		models.EventParticipantJoined, // bob
		models.EventPollStateChanged,
		models.EventVoteUpdate,
	}
	if got := onB.Types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("instance b subscriber got %v, want %v", got, want)
	}
	// alice sees their own join, bob's join, the state change and the vote once each
	if got := len(onA.Events()); got != 4 {
		t.Errorf("instance a subscriber got %v", onA.Types())
	}
}

func TestConcurrentVotesNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	cluster := testutil.NewCluster(t, memstore.New(store.Options{}), 3, engine.Config{OpTimeout: 2 * time.Second})
	code, _ := testutil.CreateTestPoll(t, cluster[0].Engine, models.StateOpen)

	const voters = 30
	for i := 0; i < voters; i++ {
		e := cluster[i%len(cluster)].Engine
		if _, err := e.Join(ctx, code, fmt.Sprintf("v%d", i), testutil.NewRecorder(fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := cluster[i%len(cluster)].Engine
			if _, err := e.Vote(ctx, code, fmt.Sprintf("v%d", i), fmt.Sprintf("c%d", i), i%2); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if failed.Load() != 0 {
		t.Fatalf("%d votes failed", failed.Load())
	}
	snap, err := cluster[1].Engine.Snapshot(ctx, code)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Results.TotalVotes != voters || fmt.Sprint(snap.Results.Counts) != "[15 15 0]" {
		t.Errorf("lost updates: %+v", snap.Results)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock()
	s := memstore.New(store.Options{Now: clock.Now})
	cluster := testutil.NewCluster(t, s, 1, engine.Config{
		Now:        clock.Now,
		StaleAfter: 90 * time.Second,
		PurgeAfter: 30 * time.Minute,
		PollTTL:    time.Hour,
	})
	e := cluster[0].Engine

	p, hostKey, err := e.CreatePoll(ctx, "q", []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if _, err := e.ChangeState(ctx, p.RoomCode, "open", hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	idle := testutil.NewRecorder("idle")
	busy := testutil.NewRecorder("busy")
	if _, err := e.Join(ctx, p.RoomCode, "idle", idle); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := e.Join(ctx, p.RoomCode, "busy", busy); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := e.Vote(ctx, p.RoomCode, "idle", "idle", 0); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	clock.Advance(80 * time.Second)
	if err := e.Touch(ctx, "busy"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	clock.Advance(20 * time.Second)

	if err := e.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	var left models.PresencePayload
	testutil.DecodePayload(t, busy.Last(t, models.EventParticipantLeft), &left)
	if left.Nickname != "idle" {
		t.Errorf("expected idle to go stale, got %+v", left)
	}
	snap, _ := e.Snapshot(ctx, p.RoomCode)
	if snap.Results.TotalVotes != 1 {
		t.Errorf("stale participant's vote should remain, got %+v", snap.Results)
	}

	// busy keeps talking; idle stays away past the purge window
	for i := 0; i < 31; i++ {
		clock.Advance(time.Minute)
		if err := e.Touch(ctx, "busy"); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}
	if err := e.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	var votes models.VoteUpdatePayload
	testutil.DecodePayload(t, busy.Last(t, models.EventVoteUpdate), &votes)
	if fmt.Sprint(votes.Counts) != "[0 0]" {
		t.Errorf("purged vote should leave the tally, got %v", votes.Counts)
	}

	clock.Advance(time.Hour)
	if err := e.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	var closed models.RoomClosedPayload
	testutil.DecodePayload(t, busy.Last(t, models.EventRoomClosed), &closed)
	if closed.Reason != models.ReasonExpired {
		t.Errorf("expected expired, got %q", closed.Reason)
	}
	if _, err := e.Snapshot(ctx, p.RoomCode); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected expired poll gone, got %v", err)
	}
}

func TestSweepDuringShutdownNotLogged(t *testing.T) {
	e := testutil.NewTestEngine(t, store.Options{})
	testutil.CreateTestPoll(t, e, models.StateOpen)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Sweep(ctx); err == nil {
		t.Fatal("expected a canceled sweep to fail")
	}
	buf.Reset()

	engine.SweepAndLog(e, ctx)
	if strings.Contains(buf.String(), "sweep failed") {
		t.Errorf("canceled sweep was logged as a failure: %s", buf.String())
	}

	engine.SweepAndLog(e, context.Background())
	if strings.Contains(buf.String(), "sweep failed") {
		t.Errorf("healthy sweep logged a failure: %s", buf.String())
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	cluster := testutil.NewCluster(t, memstore.New(store.Options{}), 1, engine.Config{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cluster[0].Engine.RunSweeper(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
