// Package orientation converts a noisy stream of motion-sensor readings into a
// stable, debounced boolean "flipped" signal. Three layers reject noise
// independently: an EMA damps high-frequency spikes, the enter/exit threshold
// gap (hysteresis) prevents oscillation at a single boundary, and the
// consecutive-sample counters (debounce) require sustained evidence before a
// transition is committed.
package orientation

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// SampleKind selects which thresholding branch the detector runs. A detector
// is configured with exactly one kind for its lifetime.
type SampleKind string

const (
	// AccelerationZ thresholds an EMA-filtered gravity-axis acceleration in
	// m/s². Signed: face-down reads negative.
	AccelerationZ SampleKind = "acceleration_z"
	// TiltDegrees thresholds the unfiltered absolute tilt angle in degrees.
	TiltDegrees SampleKind = "tilt_degrees"
)

// Config holds the detector tuning parameters. Fixed per instance.
type Config struct {
	Kind SampleKind

	// EMAAlpha is the smoothing factor in (0,1] for AccelerationZ mode.
	// filtered' = alpha*sample + (1-alpha)*filtered.
	EMAAlpha float64

	// EnterThreshold and ExitThreshold are the two hysteresis boundaries.
	// AccelerationZ: enter when filtered < EnterThreshold, exit when
	// filtered > ExitThreshold (EnterThreshold < ExitThreshold, both
	// negative by default). TiltDegrees: enter when abs(tilt) >
	// EnterThreshold, exit when abs(tilt) < ExitThreshold
	// (EnterThreshold > ExitThreshold).
	EnterThreshold float64
	ExitThreshold  float64

	// StableRequired is the number of consecutive qualifying samples needed
	// to confirm a transition.
	StableRequired int

	// SampleInterval is the requested sampling period for AccelerationZ
	// sources. A request to the sample source, not a guarantee.
	SampleInterval time.Duration
}

// DefaultAccelConfig returns the default tuning for accelerometer input.
func DefaultAccelConfig() Config {
	return Config{
		Kind:           AccelerationZ,
		EMAAlpha:       0.25,
		EnterThreshold: -0.6,
		ExitThreshold:  -0.2,
		StableRequired: 3,
		SampleInterval: 100 * time.Millisecond,
	}
}

// DefaultTiltConfig returns the default tuning for tilt-angle input.
func DefaultTiltConfig() Config {
	return Config{
		Kind:           TiltDegrees,
		EnterThreshold: 150,
		ExitThreshold:  30,
		StableRequired: 3,
	}
}

// Validate checks the configuration. Crossed thresholds and non-positive
// StableRequired are configuration errors and are rejected outright, never
// silently clamped.
func (c Config) Validate() error {
	switch c.Kind {
	case AccelerationZ:
		if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
			return fmt.Errorf("ema alpha must be in (0,1], got %v", c.EMAAlpha)
		}
		if c.EnterThreshold >= c.ExitThreshold {
			return fmt.Errorf("acceleration enter threshold (%v) must lie below exit threshold (%v)",
				c.EnterThreshold, c.ExitThreshold)
		}
	case TiltDegrees:
		if c.EnterThreshold <= c.ExitThreshold {
			return fmt.Errorf("tilt enter threshold (%v) must lie above exit threshold (%v)",
				c.EnterThreshold, c.ExitThreshold)
		}
	default:
		return fmt.Errorf("unknown sample kind %q", c.Kind)
	}
	if c.StableRequired < 1 {
		return fmt.Errorf("stable required must be at least 1, got %d", c.StableRequired)
	}
	return nil
}

// Observer receives confirmed flip-state transitions. Observers run
// synchronously on the sample-delivery goroutine; keep them non-blocking or
// hand off to a channel.
type Observer func(flipped bool)

type observerEntry struct {
	id string
	fn Observer
}

// Detector classifies a sample stream into a stable binary orientation state
// and notifies observers only on confirmed state changes.
type Detector struct {
	cfg Config

	source SampleSource
	subID  string
	done   chan struct{}

	mu           sync.Mutex
	ema          float64
	emaSeeded    bool
	flipStable   int
	unflipStable int
	flipped      bool
	observers    []observerEntry
	closed       bool
}

// NewDetector validates cfg and starts consuming samples from source. A nil
// source is not an error: the detector is constructed inert and never
// publishes, so a missing sensor degrades rather than fails.
func NewDetector(cfg Config, source SampleSource) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	d := &Detector{
		cfg:    cfg,
		source: source,
		done:   make(chan struct{}),
	}
	if source != nil {
		id, ch := source.Subscribe()
		d.subID = id
		go d.run(ch)
	}
	return d, nil
}

// randomID generates a random observer ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// AddObserver appends fn to the notification list and returns its
// registration ID. Observers are invoked in registration order.
func (d *Detector) AddObserver(fn Observer) string {
	id := randomID()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return id
	}
	d.observers = append(d.observers, observerEntry{id: id, fn: fn})
	return id
}

// RemoveObserver drops the observer registered under id. Removing an unknown
// ID is a silent no-op.
func (d *Detector) RemoveObserver(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, o := range d.observers {
		if o.id == id {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// IsFlipped returns the last published state without side effects.
func (d *Detector) IsFlipped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flipped
}

// Close tears the detector down: the sample subscription is released and the
// observer list cleared. Terminal; samples still in flight from a
// not-yet-unsubscribed source are ignored.
func (d *Detector) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.observers = nil
	d.mu.Unlock()

	close(d.done)
	if d.source != nil {
		d.source.Unsubscribe(d.subID)
	}
}

// run consumes the sample channel on a single goroutine so that
// classification is never reentrant: each sample, including observer
// notification, completes before the next is processed.
func (d *Detector) run(ch <-chan Sample) {
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			d.handleSample(s)
		case <-d.done:
			return
		}
	}
}

// handleSample runs one classification step. Invalid samples are dropped
// without touching any state: transient sensor gaps must not flip state.
func (d *Detector) handleSample(s Sample) {
	d.mu.Lock()
	if d.closed || !s.Valid {
		d.mu.Unlock()
		return
	}

	var enter, exit bool
	switch d.cfg.Kind {
	case AccelerationZ:
		if !d.emaSeeded {
			d.ema = s.Value
			d.emaSeeded = true
		} else {
			d.ema = d.cfg.EMAAlpha*s.Value + (1-d.cfg.EMAAlpha)*d.ema
		}
		enter = d.ema < d.cfg.EnterThreshold
		exit = d.ema > d.cfg.ExitThreshold
	case TiltDegrees:
		v := math.Abs(s.Value)
		enter = v > d.cfg.EnterThreshold
		exit = v < d.cfg.ExitThreshold
	}

	switch {
	case enter:
		d.flipStable++
		d.unflipStable = 0
	case exit:
		d.unflipStable++
		d.flipStable = 0
	default:
		// Dead zone between the thresholds: decay the counters by one
		// instead of resetting, so a brief dip near the boundary does not
		// erase accumulated evidence.
		if d.flipStable > 0 {
			d.flipStable--
		}
		if d.unflipStable > 0 {
			d.unflipStable--
		}
	}

	publish := false
	var next bool
	if d.flipStable >= d.cfg.StableRequired {
		publish, next = true, true
	} else if d.unflipStable >= d.cfg.StableRequired {
		publish, next = true, false
	}

	// Publishing the already-published state is a no-op: counters climbing
	// past the threshold must not re-fire observers.
	if !publish || next == d.flipped {
		d.mu.Unlock()
		return
	}
	d.flipped = next
	observers := make([]observerEntry, len(d.observers))
	copy(observers, d.observers)
	d.mu.Unlock()

	for _, o := range observers {
		o.fn(next)
	}
}
