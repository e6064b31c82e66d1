// Package session turns confirmed flip transitions into study-session
// bookkeeping: flipping face-down starts or resumes a session, flipping back
// pauses or finalizes it depending on the configured policy.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AMEND09/Razr/internal/monitoring"
	"github.com/AMEND09/Razr/internal/timeutil"
)

// State is the lifecycle state of the current session.
type State string

const (
	StateIdle    State = "idle"    // no session in progress
	StateRunning State = "running" // device face down, clock accruing
	StatePaused  State = "paused"  // device face up under the pause policy
)

// Policy selects what an unflip does to a running session.
type Policy string

const (
	// PolicyPause keeps the session open; the next flip resumes it.
	PolicyPause Policy = "pause"
	// PolicyFinish finalizes and persists the session immediately.
	PolicyFinish Policy = "finish"
)

// ParsePolicy converts a settings string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyPause, PolicyFinish:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown flip policy %q", s)
}

// Record is a finalized session as persisted to the store.
type Record struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	Segments  int           `json:"segments"`
	Policy    Policy        `json:"policy"`
}

// Store persists finalized sessions.
type Store interface {
	SaveSession(Record) error
}

// Snapshot is a read-only view of the tracker for the API.
type Snapshot struct {
	State     State         `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Elapsed   time.Duration `json:"elapsed"`
	Segments  int           `json:"segments"`
}

// Tracker owns the current session. Register HandleFlip as a detector
// observer; it is invoked on the sample-delivery goroutine and never blocks
// on the store longer than one insert.
type Tracker struct {
	clock timeutil.Clock
	store Store

	mu          sync.Mutex
	policy      Policy
	state       State
	id          string
	startedAt   time.Time
	resumedAt   time.Time
	accumulated time.Duration
	segments    int
}

// NewTracker creates an idle tracker. store may be nil, in which case
// finalized sessions are logged and discarded.
func NewTracker(clock timeutil.Clock, store Store, policy Policy) *Tracker {
	return &Tracker{
		clock:  clock,
		store:  store,
		policy: policy,
		state:  StateIdle,
	}
}

// SetPolicy changes the unflip policy for subsequent transitions.
func (t *Tracker) SetPolicy(p Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// HandleFlip is the detector observer: true starts or resumes, false pauses
// or finalizes per policy. Repeated confirmations of the same state never
// reach here, so every call is a real transition.
func (t *Tracker) HandleFlip(flipped bool) {
	if flipped {
		t.start()
		return
	}
	t.stop()
}

func (t *Tracker) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()

	switch t.state {
	case StateIdle:
		t.id = uuid.New().String()
		t.startedAt = now
		t.resumedAt = now
		t.accumulated = 0
		t.segments = 1
		t.state = StateRunning
		monitoring.Logf("session %s started", t.id)
	case StatePaused:
		t.resumedAt = now
		t.segments++
		t.state = StateRunning
		monitoring.Logf("session %s resumed (segment %d)", t.id, t.segments)
	case StateRunning:
		// already accruing
	}
}

func (t *Tracker) stop() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	if t.policy == PolicyPause {
		t.accumulated += t.clock.Since(t.resumedAt)
		t.state = StatePaused
		monitoring.Logf("session %s paused at %v", t.id, t.accumulated)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	// Finish accrues the still-open segment itself; accumulating here
	// would count it twice.
	t.Finish()
}

// Finish finalizes the current session, persisting it if any time accrued.
// Used by the finish policy, the API, and daemon shutdown; a no-op when idle.
func (t *Tracker) Finish() {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if t.state == StateRunning {
		t.accumulated += now.Sub(t.resumedAt)
	}
	record := Record{
		ID:        t.id,
		StartedAt: t.startedAt,
		EndedAt:   now,
		Duration:  t.accumulated,
		Segments:  t.segments,
		Policy:    t.policy,
	}
	t.state = StateIdle
	t.id = ""
	t.startedAt = time.Time{}
	t.accumulated = 0
	t.segments = 0
	t.mu.Unlock()

	if record.Duration <= 0 {
		monitoring.Logf("session %s discarded: no time accrued", record.ID)
		return
	}
	if t.store == nil {
		monitoring.Logf("session %s finished after %v (no store configured)", record.ID, record.Duration)
		return
	}
	// Store failures must not take the tracker down; the session is lost
	// but the next flip starts cleanly.
	if err := t.store.SaveSession(record); err != nil {
		monitoring.Logf("failed to save session %s: %v", record.ID, err)
		return
	}
	monitoring.Logf("session %s finished after %v across %d segment(s)", record.ID, record.Duration, record.Segments)
}

// Snapshot returns the current tracker view without side effects.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.accumulated
	if t.state == StateRunning {
		elapsed += t.clock.Since(t.resumedAt)
	}
	return Snapshot{
		State:     t.state,
		SessionID: t.id,
		StartedAt: t.startedAt,
		Elapsed:   elapsed,
		Segments:  t.segments,
	}
}
