package imu

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/AMEND09/Razr/internal/orientation"
	"github.com/AMEND09/Razr/internal/timeutil"
)

// SimSource replays a recorded sample sequence on a clock ticker, cycling
// once the sequence is exhausted. It stands in for real hardware in dev mode
// and tests; it implements orientation.SampleSource.
type SimSource struct {
	samples  []orientation.Sample
	interval timeutil.Ticker

	mu          sync.Mutex
	subscribers map[string]chan orientation.Sample
	next        int
}

// NewSimSource creates a SimSource replaying samples at the cadence given by
// clock and interval. Run must be called to start delivery.
func NewSimSource(samples []orientation.Sample, clock timeutil.Clock, interval time.Duration) *SimSource {
	return &SimSource{
		samples:     samples,
		interval:    clock.NewTicker(interval),
		subscribers: make(map[string]chan orientation.Sample),
	}
}

// Subscribe creates a sample channel; the ID identifies it when
// unsubscribing.
func (s *SimSource) Subscribe() (string, <-chan orientation.Sample) {
	b := make([]byte, 8)
	crand.Read(b)
	id := hex.EncodeToString(b)

	ch := make(chan orientation.Sample, 1)
	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are a
// no-op.
func (s *SimSource) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Run delivers one sample per tick to all subscribers until ctx is done.
// Slow subscribers miss ticks rather than stalling the feed, matching real
// sensor behaviour.
func (s *SimSource) Run(ctx context.Context) {
	defer s.interval.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for id, ch := range s.subscribers {
				close(ch)
				delete(s.subscribers, id)
			}
			s.mu.Unlock()
			return
		case <-s.interval.C():
			s.broadcast()
		}
	}
}

func (s *SimSource) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return
	}
	sample := s.samples[s.next%len(s.samples)]
	s.next++
	for _, ch := range s.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
}
