package imu

import (
	"sync"

	"github.com/AMEND09/Razr/internal/monitoring"
	"github.com/AMEND09/Razr/internal/orientation"
	"github.com/AMEND09/Razr/internal/sensormux"
)

// SerialSource turns the line stream of a sensormux into orientation samples
// of a single kind. It implements orientation.SampleSource.
type SerialSource struct {
	mux  sensormux.MuxInterface
	kind orientation.SampleKind

	mu    sync.Mutex
	stops map[string]chan struct{}
}

// NewSerialSource wraps mux, emitting the channel selected by kind.
func NewSerialSource(mux sensormux.MuxInterface, kind orientation.SampleKind) *SerialSource {
	return &SerialSource{
		mux:   mux,
		kind:  kind,
		stops: make(map[string]chan struct{}),
	}
}

// Subscribe registers with the underlying mux and converts its lines on a
// dedicated goroutine. Malformed lines are logged and skipped; they never
// reach the detector as values.
func (s *SerialSource) Subscribe() (string, <-chan orientation.Sample) {
	id, lines := s.mux.Subscribe()
	ch := make(chan orientation.Sample)
	stop := make(chan struct{})

	s.mu.Lock()
	s.stops[id] = stop
	s.mu.Unlock()

	go func() {
		defer close(ch)
		for line := range lines {
			reading, err := ParseReading(line)
			if err != nil {
				monitoring.Logf("imu: dropping unparseable reading: %v", err)
				continue
			}
			select {
			case ch <- reading.sampleFor(s.kind):
			case <-stop:
				return
			}
		}
	}()

	return id, ch
}

// Unsubscribe releases the underlying mux subscription and stops the
// conversion goroutine, closing the sample channel.
func (s *SerialSource) Unsubscribe(id string) {
	s.mu.Lock()
	if stop, ok := s.stops[id]; ok {
		close(stop)
		delete(s.stops, id)
	}
	s.mu.Unlock()

	s.mux.Unsubscribe(id)
}
