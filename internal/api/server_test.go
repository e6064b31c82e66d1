package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/AMEND09/Razr/internal/db"
	"github.com/AMEND09/Razr/internal/orientation"
	"github.com/AMEND09/Razr/internal/session"
	"github.com/AMEND09/Razr/internal/timeutil"
)

func setupTestServer(t *testing.T) (*Server, *db.DB, *session.Tracker, *timeutil.MockClock) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	detector, err := orientation.NewDetector(orientation.Config{
		Kind:           orientation.TiltDegrees,
		EMAAlpha:       0.25,
		EnterThreshold: 150,
		ExitThreshold:  30,
		StableRequired: 3,
		SampleInterval: 100 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	t.Cleanup(detector.Close)

	// seed near the real clock so stored sessions land inside the stats
	// windows computed against time.Now
	clock := timeutil.NewMockClock(time.Now().Add(-time.Hour))
	tracker := session.NewTracker(clock, database, session.PolicyFinish)

	return NewServer(database, detector, tracker, time.UTC), database, tracker, clock
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rr, req)
	return rr
}

func TestShowState(t *testing.T) {
	s, _, tracker, clock := setupTestServer(t)

	tracker.HandleFlip(true)
	clock.Advance(5 * time.Minute)

	rr := doRequest(t, s, http.MethodGet, "/api/state", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var state struct {
		Flipped bool             `json:"flipped"`
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if state.Flipped {
		t.Error("detector without samples should not be flipped")
	}
	if state.Session.State != session.StateRunning {
		t.Errorf("session state = %s, want running", state.Session.State)
	}
	if state.Session.Elapsed != 5*time.Minute {
		t.Errorf("elapsed = %v, want 5m", state.Session.Elapsed)
	}
}

func TestShowStateMethodNotAllowed(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/api/state", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestListSessions(t *testing.T) {
	s, _, tracker, clock := setupTestServer(t)

	// finalize two sessions an hour apart
	for i := 0; i < 2; i++ {
		tracker.HandleFlip(true)
		clock.Advance(30 * time.Minute)
		tracker.HandleFlip(false)
		clock.Advance(30 * time.Minute)
	}

	rr := doRequest(t, s, http.MethodGet, "/api/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var records []session.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("failed to decode sessions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(records))
	}
	// newest first
	if !records[0].StartedAt.After(records[1].StartedAt) {
		t.Error("sessions should be ordered newest first")
	}
}

func TestListSessionsEmptyIsArray(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/api/sessions", "")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("empty list = %q, want []", got)
	}
}

func TestListSessionsBadLimit(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/api/sessions?limit=zero", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	s, database, tracker, clock := setupTestServer(t)

	tracker.HandleFlip(true)
	clock.Advance(time.Minute)
	tracker.HandleFlip(false)

	records, err := database.Sessions(1)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one session, got %d (err %v)", len(records), err)
	}

	rr := doRequest(t, s, http.MethodDelete, "/api/sessions/"+records[0].ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, s, http.MethodDelete, "/api/sessions/"+records[0].ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestDeleteSessionStoreFailureIs500(t *testing.T) {
	s, database, _, _ := setupTestServer(t)

	// a broken store is not the same as a missing session
	database.Close()

	rr := doRequest(t, s, http.MethodDelete, "/api/sessions/some-id", "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500: %s", rr.Code, rr.Body.String())
	}
}

func TestShowStats(t *testing.T) {
	s, _, tracker, clock := setupTestServer(t)

	tracker.HandleFlip(true)
	clock.Advance(40 * time.Minute)
	tracker.HandleFlip(false)

	rr := doRequest(t, s, http.MethodGet, "/api/stats?days=7", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if got := summary["session_count"].(float64); got != 1 {
		t.Errorf("session_count = %v, want 1", got)
	}
	if got := summary["days"].(float64); got != 7 {
		t.Errorf("days = %v, want 7", got)
	}
}

func TestShowStatsBadDays(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	for _, q := range []string{"days=0", "days=-1", "days=9000", "days=abc"} {
		rr := doRequest(t, s, http.MethodGet, "/api/stats?"+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
}

func TestSettingsDefaults(t *testing.T) {
	s, _, _, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/settings", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var settings map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &settings); err != nil {
		t.Fatalf("failed to decode settings: %v", err)
	}

	want := map[string]string{
		"flip_policy":        "pause",
		"daily_goal_minutes": "120",
	}
	if diff := cmp.Diff(want, settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSettings(t *testing.T) {
	s, database, tracker, clock := setupTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/api/settings",
		`{"flip_policy":"pause","daily_goal_minutes":"90"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	got, err := database.GetSetting("daily_goal_minutes", "")
	if err != nil || got != "90" {
		t.Errorf("daily_goal_minutes = %q (err %v), want 90", got, err)
	}

	// the new policy applies to the live tracker: unflip now pauses
	tracker.HandleFlip(true)
	clock.Advance(time.Minute)
	tracker.HandleFlip(false)
	if state := tracker.Snapshot().State; state != session.StatePaused {
		t.Errorf("tracker state = %s, want paused after policy change", state)
	}
}

func TestUpdateSettingsRejectsUnknownKey(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/api/settings", `{"volume":"11"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUpdateSettingsRejectsBadPolicy(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/api/settings", `{"flip_policy":"explode"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDailyChartRendersHTML(t *testing.T) {
	s, _, tracker, clock := setupTestServer(t)

	tracker.HandleFlip(true)
	clock.Advance(20 * time.Minute)
	tracker.HandleFlip(false)

	rr := doRequest(t, s, http.MethodGet, "/api/charts/daily?days=3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rr.Body.String(), "echarts") {
		t.Error("chart body should reference echarts")
	}
}
