package telemetry

// Entry is one record in an EventLog: either a StateSample or a
// CommandMarker.
type Entry interface {
	// Time returns seconds since session start.
	Time() float64
	entry()
}

// StateSample is one telemetry reading taken from the motor controller.
type StateSample struct {
	SampleTime   float64 // seconds since session start
	SysVoltage   float64 // V
	SysCurrent   float64 // A, drawn from the supply
	MotorCurrent float64 // A, delivered to the motor
	MotorRPM     float64
}

// CommandMarker records a command issued to the device.
type CommandMarker struct {
	At   float64 // seconds since session start
	Text string
}

func (s StateSample) Time() float64 { return s.SampleTime }
func (StateSample) entry()          {}

func (m CommandMarker) Time() float64 { return m.At }
func (CommandMarker) entry()          {}
