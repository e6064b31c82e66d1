package sensormux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a sensor port.
// This abstraction enables unit testing without real IMU hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
