package orientation

// Sample is a single scalar sensor reading: a gravity-axis acceleration in
// m/s² or a tilt angle in degrees, depending on the detector's SampleKind.
// Valid is false when the underlying reading was absent; invalid samples are
// dropped by the detector.
type Sample struct {
	Value float64
	Valid bool
}

// SampleSource supplies Sample values asynchronously at a source-defined
// cadence. It mirrors the serial multiplexer's subscription surface so that
// hardware-backed and simulated sources are interchangeable and the
// classification state machine stays identical across them.
type SampleSource interface {
	// Subscribe creates a channel of samples. The returned ID identifies
	// the subscription when unsubscribing.
	Subscribe() (string, <-chan Sample)
	// Unsubscribe releases a subscription and closes its channel.
	Unsubscribe(string)
}
