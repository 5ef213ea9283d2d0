package device

import (
	"time"

	"codeberg.org/mutker/mccli/internal/telemetry"
	"codeberg.org/mutker/mccli/internal/vesc"
)

// Real drives a physical controller through a Link.
type Real struct {
	sess *session
	link Link
}

func NewReal(link Link, opts Options) *Real {
	return &Real{
		sess: newSession(opts, "esc"),
		link: link,
	}
}

// OpenSerial connects to a VESC on the named serial port.
func OpenSerial(port string, baudRate int, readTimeout time.Duration, opts Options) (*Real, error) {
	conn, err := vesc.Open(port, baudRate, readTimeout)
	if err != nil {
		return nil, err
	}

	return NewReal(conn, opts), nil
}

func (d *Real) Open() error {
	return d.sess.open(d)
}

func (d *Real) Close() error {
	return d.sess.close(d.link.Close)
}

func (d *Real) ReadState() (telemetry.StateSample, bool, error) {
	var (
		sample telemetry.StateSample
		ok     bool
	)

	err := d.sess.do(func() error {
		m, err := d.link.GetMeasurements()
		if err != nil {
			return ioError("read_state", err)
		}
		if m == nil {
			return nil
		}

		sample = telemetry.StateSample{
			SampleTime:   d.sess.elapsed(),
			SysVoltage:   m.VIn,
			SysCurrent:   m.AvgInputCurrent,
			MotorCurrent: m.AvgMotorCurrent,
			MotorRPM:     m.RPM,
		}
		ok = true

		return nil
	})

	return sample, ok, err
}

func (d *Real) WriteRPM(rpm int) error {
	return d.sess.do(func() error {
		command := rpmCommand(rpm)
		if err := d.link.SetRPM(rpm); err != nil {
			return ioError(command, err)
		}
		d.sess.mark(command)
		return nil
	})
}

func (d *Real) WriteDuty(duty float64) error {
	duty = ClampDuty(duty)

	return d.sess.do(func() error {
		command := dutyCommand(duty)
		if err := d.link.SetDutyCycle(duty); err != nil {
			return ioError(command, err)
		}
		d.sess.mark(command)
		return nil
	})
}

func (d *Real) Reboot() error {
	return d.sess.do(func() error {
		if err := d.link.Reboot(); err != nil {
			return ioError("reboot", err)
		}
		d.sess.mark("reboot")
		return nil
	})
}

func (d *Real) Log() *telemetry.EventLog {
	return d.sess.log
}

func (d *Real) Elapsed() float64 {
	return d.sess.elapsed()
}

var _ Device = (*Real)(nil)
