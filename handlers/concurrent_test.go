// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/testutil"
)

// TestConcurrentStateChanges verifies that when several requests race to
// open the same poll exactly one transition is applied
func TestConcurrentStateChanges(t *testing.T) {
	handler, e := newTestHandler(t)
	code, hostKey := testutil.CreateTestPoll(t, e, models.StateWaiting)

	numRequests := 10
	var successCount, conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req := testutil.MakeRequest("POST", "/polls/"+code+"/state",
				models.ChangeStateRequest{State: "open"},
				map[string]string{"X-Host-Key": hostKey})
			req.SetPathValue("code", code)
			w := httptest.NewRecorder()

			handler.ChangeState(w, req)

			switch w.Code {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusConflict:
				conflictCount.Add(1)
			default:
				t.Errorf("Unexpected status %d: %s", w.Code, w.Body.String())
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("Expected exactly 1 successful transition, got %d", successCount.Load())
	}
	if conflictCount.Load() != int32(numRequests-1) {
		t.Errorf("Expected %d conflicts, got %d", numRequests-1, conflictCount.Load())
	}
}

// TestConcurrentPollCreation verifies that simultaneous creations each get
// a distinct room code
func TestConcurrentPollCreation(t *testing.T) {
	handler, _ := newTestHandler(t)

	numPolls := 20
	codes := make([]string, numPolls)
	var wg sync.WaitGroup

	for i := 0; i < numPolls; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			req := testutil.MakeRequest("POST", "/polls", models.CreatePollRequest{
				Question: fmt.Sprintf("Poll %d?", idx),
				Options:  []string{"Yes", "No"},
			}, nil)
			w := httptest.NewRecorder()

			handler.CreatePoll(w, req)
			if w.Code != http.StatusCreated {
				t.Errorf("Poll %d: expected 201, got %d: %s", idx, w.Code, w.Body.String())
				return
			}
			var resp models.CreatePollResponse
			testutil.AssertJSON(t, w, &resp)
			codes[idx] = resp.RoomCode
		}(i)
	}

	wg.Wait()

	seen := make(map[string]bool)
	for _, code := range codes {
		if code == "" {
			continue
		}
		if seen[code] {
			t.Errorf("Room code %s issued twice", code)
		}
		seen[code] = true
	}
}
