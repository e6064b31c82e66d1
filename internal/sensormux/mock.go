package sensormux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockPort implements SerialPorter for dev mode, replaying fixture readings.
type MockPort struct {
	reader *io.PipeReader

	mu       sync.Mutex
	commands bytes.Buffer
}

func (m *MockPort) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

// Write captures device commands so dev mode can ignore them safely.
func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands.Write(p)
}

func (m *MockPort) Close() error {
	return m.reader.Close()
}

// Commands returns everything written to the mock device so far.
func (m *MockPort) Commands() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands.String()
}

// NewMockMux creates a Mux backed by a mock port that replays the fixture
// bytes repeatedly at the given interval, simulating a streaming IMU.
func NewMockMux(fixture []byte, interval time.Duration) *Mux[*MockPort] {
	r, w := io.Pipe()

	mockPort := &MockPort{reader: r}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := w.Write(fixture); err != nil {
				return
			}
		}
	}()

	return NewMux(mockPort)
}

// TestablePort implements SerialPorter with configurable behaviour for unit
// tests: scripted reads, captured writes, and injectable errors.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// Closed indicates whether Close was called
	Closed bool

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	tp := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tp.readCond = sync.NewCond(&tp.mu)
	return tp
}

func (t *TestablePort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.Closed {
			return 0, errors.New("sensor port closed")
		}
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.ReadBuffer.Len() > 0 {
			return t.ReadBuffer.Read(p)
		}
		if !t.BlockReads {
			return 0, io.EOF
		}
		t.readCond.Wait()
	}
}

func (t *TestablePort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("sensor port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// AddReadData appends data for subsequent Read calls and wakes any blocked
// reader.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}
