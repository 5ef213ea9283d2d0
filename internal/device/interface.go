package device

import (
	"codeberg.org/mutker/mccli/internal/logger"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"codeberg.org/mutker/mccli/internal/vesc"
	"github.com/benbjohnson/clock"
)

// Device is a motor controller on the bench. All I/O on one Device is
// serialized; successful writes append a CommandMarker to the Log.
type Device interface {
	// Open records the session start time and starts the sampler. It is
	// idempotent.
	Open() error
	// Close stops and joins the sampler, freezes the Log and releases the
	// underlying handle. Only the first call has any effect.
	Close() error

	// ReadState returns the current telemetry. ok is false when the
	// controller had nothing to report; that is not an error.
	ReadState() (sample telemetry.StateSample, ok bool, err error)
	WriteRPM(rpm int) error
	// WriteDuty clamps duty to [0, 1] before applying it.
	WriteDuty(duty float64) error
	Reboot() error

	Log() *telemetry.EventLog
	// Elapsed returns seconds since Open.
	Elapsed() float64
}

// Link is the protocol driver behind a Real device. GetMeasurements
// returns nil without an error when the controller did not answer.
type Link interface {
	GetMeasurements() (*vesc.Measurements, error)
	SetRPM(rpm int) error
	SetDutyCycle(duty float64) error
	Reboot() error
	Close() error
}

// Options tune a Device. Zero values select defaults.
type Options struct {
	// Rate is the sampler frequency in ticks per second.
	Rate   float64
	Clock  clock.Clock
	Logger logger.Logger
}
