// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/livepoll/bus"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/relay"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/store/memstore"
	"github.com/danielhkuo/livepoll/store/sqlstore"
)

// SetupTestDB creates a fresh SQLite database with the full schema in a
// temporary directory
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(context.Background(), db.SQLite, filepath.Join(t.TempDir(), "livepoll.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// NewSQLStore returns a store backed by a fresh SQLite database
func NewSQLStore(t *testing.T, opts store.Options) store.Store {
	t.Helper()
	return sqlstore.New(SetupTestDB(t), db.SQLite, opts)
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:            3318,
		DatabaseType:    "memory",
		BusType:         "local",
		InstanceID:      "test-instance",
		MaxParticipants: 50,
		StaleAfter:      engine.DefaultStaleAfter,
		PurgeAfter:      engine.DefaultPurgeAfter,
		SweepInterval:   engine.DefaultSweepInterval,
		PollTTL:         engine.DefaultPollTTL,
		OpTimeout:       2 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Instance is one simulated server: an engine and the relay it publishes to
type Instance struct {
	Engine *engine.Engine
	Relay  *relay.Relay
}

// NewCluster builds n instances sharing s and one in-process bus
func NewCluster(t *testing.T, s store.Store, n int, cfg engine.Config) []Instance {
	t.Helper()

	shared := bus.NewLocal()
	instances := make([]Instance, n)
	for i := range instances {
		r := relay.New(fmt.Sprintf("instance-%d", i), shared)
		t.Cleanup(r.Close)
		instances[i] = Instance{
			Engine: engine.New(s, r, engine.SlogAuditor{}, cfg),
			Relay:  r,
		}
	}
	t.Cleanup(func() { shared.Close() })
	return instances
}

// NewTestEngine returns a single instance on an in-memory store, configured
// with the server defaults
func NewTestEngine(t *testing.T, opts store.Options) *engine.Engine {
	t.Helper()
	return NewCluster(t, memstore.New(opts), 1, engine.Config{
		OpTimeout: 2 * time.Second,
		PollTTL:   engine.DefaultPollTTL,
	})[0].Engine
}

// CreateTestPoll creates a three-option poll and moves it to state, which
// must be "waiting", "open", or "closed". It returns the room code and host key.
func CreateTestPoll(t *testing.T, e *engine.Engine, state models.PollState) (code, hostKey string) {
	t.Helper()
	ctx := context.Background()

	p, hostKey, err := e.CreatePoll(ctx, "Favorite color?", []string{"Red", "Green", "Blue"}, 0)
	if err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}
	if state == models.StateWaiting {
		return p.RoomCode, hostKey
	}
	if _, err := e.ChangeState(ctx, p.RoomCode, string(state), hostKey); err != nil {
		t.Fatalf("Failed to move test poll to %s: %v", state, err)
	}
	return p.RoomCode, hostKey
}

// Recorder is a relay subscriber that keeps every event it receives
type Recorder struct {
	id string

	mu     sync.Mutex
	events []models.Event
}

func NewRecorder(id string) *Recorder {
	return &Recorder{id: id}
}

func (r *Recorder) ID() string { return r.id }

func (r *Recorder) Deliver(ev models.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

// Events returns a copy of everything received so far
func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

// Types lists the received event types in order
func (r *Recorder) Types() []models.EventType {
	events := r.Events()
	types := make([]models.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// Last returns the most recent event of type typ
func (r *Recorder) Last(t *testing.T, typ models.EventType) models.Event {
	t.Helper()
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i]
		}
	}
	t.Fatalf("no %s event received; got %v", typ, r.Types())
	return models.Event{}
}

// DecodePayload unmarshals ev's payload into v
func DecodePayload(t *testing.T, ev models.Event, v any) {
	t.Helper()
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", ev.Type, err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
