package sensormux

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewMux(NewTestablePort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == id2 {
		t.Fatalf("duplicate subscription IDs: %q", id1)
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("Subscribe returned nil channel")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel not closed after Unsubscribe")
	}

	// Unsubscribing an unknown ID is a no-op.
	mux.Unsubscribe("missing")
	mux.Unsubscribe(id2)
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	if err := mux.SendCommand("R=100"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := port.WriteBuffer.String(); got != "R=100\n" {
		t.Errorf("wrote %q, want %q", got, "R=100\n")
	}
}

func TestInitializeSendsStartCommands(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	if err := mux.Initialize(100 * time.Millisecond); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	wrote := port.WriteBuffer.String()
	for _, want := range []string{"C=", "R=100", "AX", "OC", "OZ", "OT"} {
		if !strings.Contains(wrote, want) {
			t.Errorf("Initialize output %q missing command %q", wrote, want)
		}
	}
}

func TestMonitorDeliversLines(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mux.Monitor(ctx) }()

	_, ch := mux.Subscribe()

	// Park a receiver on the channel before feeding data: Monitor drops
	// lines for subscribers that are not ready.
	got := make(chan string, 1)
	go func() { got <- <-ch }()
	time.Sleep(50 * time.Millisecond)

	port.AddReadData([]byte("120,-9.65\n"))

	select {
	case line := <-got:
		if line != "120,-9.65" {
			t.Errorf("received %q, want %q", line, "120,-9.65")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line delivery")
	}

	cancel()
	select {
	case err := <-monitorDone:
		if err != context.Canceled {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop on context cancellation")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	port := NewTestablePort()
	mux := NewMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed on Close")
	}
	if !port.Closed {
		t.Error("underlying port not closed")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "defaults applied",
			opts: PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "parity spelled out",
			opts: PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name:    "invalid data bits",
			opts:    PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "invalid stop bits",
			opts:    PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "invalid parity",
			opts:    PortOptions{Parity: "M"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSerialModeConversion(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, Parity: "odd"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600", mode.BaudRate)
	}
	// the serial constants don't match the bit count: OneStopBit is 0
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("StopBits = %v, want serial.OneStopBit", mode.StopBits)
	}

	mode, err = PortOptions{StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want serial.TwoStopBits", mode.StopBits)
	}
}
