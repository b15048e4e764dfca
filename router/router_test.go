// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/testutil"
)

func newTestRouter(t *testing.T) (*http.ServeMux, *engine.Engine) {
	t.Helper()
	e := testutil.NewTestEngine(t, store.Options{MaxParticipants: 50})
	return NewRouter(e, testutil.GetTestConfig()), e
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	expected := "livepoll API v1"
	if w.Body.String() != expected {
		t.Errorf("Expected body '%s', got '%s'", expected, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, e := newTestRouter(t)
	testutil.CreateTestPoll(t, e, models.StateWaiting)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	for _, name := range []string{"livepoll_polls_created_total", "livepoll_local_connections"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestRouteExistence(t *testing.T) {
	mux, _ := newTestRouter(t)

	// Test that routes respond (handler is invoked)
	// Note: Some routes return 404 when the room doesn't exist, which is valid handler behavior
	testCases := []struct {
		method string
		path   string
	}{
		// Health, metrics and root
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/"},

		// Poll routes
		{"POST", "/polls"},
		{"GET", "/polls/XXXXXX"},
		{"POST", "/polls/XXXXXX/state"},
		{"GET", "/polls/XXXXXX/ws"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			// Route should be matched (not 405 Method Not Allowed for these specific routes)
			// 400, 401, 404 are all valid responses depending on handler logic
			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("Route %s %s returned 405, expected route handler to exist", tc.method, tc.path)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _ := newTestRouter(t)

	// Test that unsupported methods on defined routes return 405
	testCases := []struct {
		method string
		path   string
	}{
		{"POST", "/health"},            // Only GET is defined
		{"DELETE", "/polls/XXXXXX"},    // Only GET is defined
		{"PUT", "/polls/XXXXXX/state"}, // Only POST is defined
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405 for %s %s, got %d", tc.method, tc.path, w.Code)
			}
		})
	}
}

func TestPathParameterExtraction(t *testing.T) {
	mux, e := newTestRouter(t)

	// Create a test poll to verify path parameters work
	code, hostKey := testutil.CreateTestPoll(t, e, models.StateWaiting)

	t.Run("room code extraction", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/polls/"+code, nil)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 for existing room, got %d. Body: %s", w.Code, w.Body.String())
		}
	})

	t.Run("state change with host key", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/polls/"+code+"/state", strings.NewReader(`{"state":"open"}`))
		req.Header.Set("X-Host-Key", hostKey)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 with valid host key, got %d. Body: %s", w.Code, w.Body.String())
		}
	})
}
