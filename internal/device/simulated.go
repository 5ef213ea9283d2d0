package device

import (
	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/telemetry"
)

// Simulated stands in for a controller when no hardware is attached. It
// remembers the last setpoints, reports them back and never fails.
type Simulated struct {
	sess *session
	rpm  int
	duty float64
}

func NewSimulated(opts Options) *Simulated {
	return &Simulated{sess: newSession(opts, "simulated")}
}

func (d *Simulated) Open() error {
	d.sess.logger.Info().Msg("Simulated ESC start")
	return d.sess.open(d)
}

func (d *Simulated) Close() error {
	d.sess.logger.Info().Msg("Simulated ESC stop")
	return d.sess.close()
}

func (d *Simulated) ReadState() (telemetry.StateSample, bool, error) {
	var sample telemetry.StateSample

	err := d.sess.do(func() error {
		sample = telemetry.StateSample{
			SampleTime: d.sess.elapsed(),
			MotorRPM:   float64(d.rpm),
		}
		return nil
	})
	if err != nil {
		return telemetry.StateSample{}, false, err
	}

	d.sess.logger.Debug().Float64("time", sample.SampleTime).Float64("rpm", sample.MotorRPM).Msg("Simulated ESC read state")

	return sample, true, nil
}

func (d *Simulated) WriteRPM(rpm int) error {
	return d.sess.do(func() error {
		d.sess.logger.Debug().Int("rpm", rpm).Msg("Simulated ESC write rpm")
		d.rpm = rpm
		d.sess.mark(rpmCommand(rpm))
		return nil
	})
}

func (d *Simulated) WriteDuty(duty float64) error {
	duty = ClampDuty(duty)

	return d.sess.do(func() error {
		d.sess.logger.Debug().Float64("duty", duty).Msg("Simulated ESC write duty")
		d.duty = duty
		d.sess.mark(dutyCommand(duty))
		return nil
	})
}

func (d *Simulated) Reboot() error {
	return d.sess.do(func() error {
		return errors.New().WithMessage(errors.ErrDeviceNotSupported, "reboot is not supported by the simulated ESC")
	})
}

func (d *Simulated) Log() *telemetry.EventLog {
	return d.sess.log
}

func (d *Simulated) Elapsed() float64 {
	return d.sess.elapsed()
}

// RPM returns the last rpm setpoint.
func (d *Simulated) RPM() int {
	d.sess.io.Lock()
	defer d.sess.io.Unlock()
	return d.rpm
}

// Duty returns the last duty setpoint after clamping.
func (d *Simulated) Duty() float64 {
	d.sess.io.Lock()
	defer d.sess.io.Unlock()
	return d.duty
}

var _ Device = (*Simulated)(nil)
