// Package api serves the JSON surface the phone-stand UI talks to: live
// flip state, session history, stats windows, and runtime settings.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AMEND09/Razr/internal/db"
	"github.com/AMEND09/Razr/internal/orientation"
	"github.com/AMEND09/Razr/internal/session"
	"github.com/AMEND09/Razr/internal/stats"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	settingFlipPolicy  = "flip_policy"
	settingDailyGoal   = "daily_goal_minutes"
	defaultStatsDays   = 7
	maxStatsDays       = 365
	defaultListLimit   = 50
	defaultGoalMinutes = 120
)

type Server struct {
	db       *db.DB
	detector *orientation.Detector
	tracker  *session.Tracker
	loc      *time.Location
}

func NewServer(database *db.DB, detector *orientation.Detector, tracker *session.Tracker, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		db:       database,
		detector: detector,
		tracker:  tracker,
		loc:      loc,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.deleteSession)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/charts/daily", s.showDailyChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	state := map[string]interface{}{
		"flipped": s.detector.IsFlipped(),
		"session": s.tracker.Snapshot(),
	}

	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write state")
		return
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if records == nil {
		records = []session.Record{}
	}

	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodDelete {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	if err := s.db.DeleteSession(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		s.writeJSONError(w, status, fmt.Sprintf("Failed to delete session: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"deleted": id})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	days, err := parseDays(r, defaultStatsDays)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	from := now.In(s.loc).AddDate(0, 0, -(days - 1))
	records, err := s.db.SessionsInRange(startOfDay(from, s.loc), now)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	summary := stats.Summarize(records, s.loc, now, days, s.dailyGoalMinutes())

	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		settings, err := s.db.Settings()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to retrieve settings: %v", err))
			return
		}
		if _, ok := settings[settingFlipPolicy]; !ok {
			settings[settingFlipPolicy] = string(session.PolicyPause)
		}
		if _, ok := settings[settingDailyGoal]; !ok {
			settings[settingDailyGoal] = strconv.Itoa(defaultGoalMinutes)
		}
		json.NewEncoder(w).Encode(settings)

	case http.MethodPost:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid settings payload")
			return
		}
		for key, value := range updates {
			if err := s.applySetting(key, value); err != nil {
				s.writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// applySetting validates, persists, and applies one setting. The flip policy
// takes effect on the live tracker immediately.
func (s *Server) applySetting(key, value string) error {
	switch key {
	case settingFlipPolicy:
		policy, err := session.ParsePolicy(value)
		if err != nil {
			return err
		}
		if err := s.db.SetSetting(key, value); err != nil {
			return err
		}
		s.tracker.SetPolicy(policy)
		return nil

	case settingDailyGoal:
		goal, err := strconv.Atoi(value)
		if err != nil || goal < 0 {
			return fmt.Errorf("invalid daily goal %q", value)
		}
		return s.db.SetSetting(key, value)

	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

func (s *Server) dailyGoalMinutes() int {
	value, err := s.db.GetSetting(settingDailyGoal, strconv.Itoa(defaultGoalMinutes))
	if err != nil {
		return defaultGoalMinutes
	}
	goal, err := strconv.Atoi(value)
	if err != nil || goal < 0 {
		return defaultGoalMinutes
	}
	return goal
}

func parseDays(r *http.Request, fallback int) (int, error) {
	days := fallback
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > maxStatsDays {
			return 0, fmt.Errorf("invalid 'days' parameter")
		}
		days = parsed
	}
	return days, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
