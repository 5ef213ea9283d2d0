package dispatch

import (
	"context"
	"fmt"
	"io"
	"math"

	"codeberg.org/mutker/mccli/internal/device"
	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/sampler"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/benbjohnson/clock"
)

// DefaultSweepRate is the duty update rate of sweep_duty in Hz.
const DefaultSweepRate = 20.0

// DeviceCommands returns the commands bound to an open device.
func DeviceCommands(dev device.Device, clk clock.Clock, sweepRate float64) []Command {
	if clk == nil {
		clk = clock.New()
	}
	if !sampler.ValidRate(sweepRate) {
		sweepRate = DefaultSweepRate
	}

	return []Command{
		{
			Name:    "set_rpm",
			Summary: "Set motor speed setpoint",
			Args:    []Arg{IntArg("rpm")},
			Handler: func(_ context.Context, out io.Writer, args []any) (Outcome, error) {
				rpm := args[0].(int)
				if err := dev.WriteRPM(rpm); err != nil {
					return Continue, err
				}
				fmt.Fprintf(out, "set_rpm %d\n", rpm)
				return Continue, nil
			},
		},
		{
			Name:    "set_duty",
			Summary: "Set duty cycle, clamped to [0, 1]",
			Args:    []Arg{FloatArg("duty")},
			Handler: func(_ context.Context, out io.Writer, args []any) (Outcome, error) {
				duty := device.ClampDuty(args[0].(float64))
				if err := dev.WriteDuty(duty); err != nil {
					return Continue, err
				}
				fmt.Fprintf(out, "set_duty %s\n", telemetry.FormatFloat(duty))
				return Continue, nil
			},
		},
		{
			Name:    "print_state",
			Summary: "Read and print the current device state",
			Handler: func(_ context.Context, out io.Writer, _ []any) (Outcome, error) {
				sample, ok, err := dev.ReadState()
				if err != nil {
					return Continue, err
				}
				if !ok {
					fmt.Fprintln(out, "no data")
					return Continue, nil
				}
				printSample(out, sample)
				return Continue, nil
			},
		},
		{
			Name:    "sweep_duty",
			Summary: "Ramp duty cycle linearly from start to end over duration seconds",
			Args:    []Arg{FloatArg("start"), FloatArg("end"), FloatArg("duration")},
			Handler: func(ctx context.Context, out io.Writer, args []any) (Outcome, error) {
				s := sweep{
					start:    args[0].(float64),
					end:      args[1].(float64),
					duration: args[2].(float64),
					rate:     sweepRate,
				}
				return Continue, s.run(ctx, dev, clk, out)
			},
		},
		{
			Name:    "reboot",
			Summary: "Reboot the motor controller",
			Handler: func(_ context.Context, out io.Writer, _ []any) (Outcome, error) {
				if err := dev.Reboot(); err != nil {
					return Continue, err
				}
				fmt.Fprintln(out, "reboot")
				return Continue, nil
			},
		},
	}
}

type sweep struct {
	start    float64
	end      float64
	duration float64
	rate     float64
}

// maxSweepSteps bounds the intermediate writes of one sweep.
const maxSweepSteps = math.MaxInt32

// steps returns how many intermediate writes precede the final one.
func (s sweep) steps() float64 {
	return math.Floor(s.duration * s.rate)
}

func (s sweep) run(ctx context.Context, dev device.Device, clk clock.Clock, out io.Writer) error {
	if err := checkSeconds("duration", s.duration); err != nil {
		return err
	}
	if s.steps() > maxSweepSteps {
		return errors.New().WithMessage(errors.ErrInvalidArgument,
			fmt.Sprintf("duration %v is too long at %v Hz", s.duration, s.rate))
	}

	steps := int(s.steps())
	if steps > 0 {
		if err := s.ramp(ctx, dev, clk, out, steps); err != nil {
			return err
		}
	}

	end := device.ClampDuty(s.end)
	if err := dev.WriteDuty(end); err != nil {
		return err
	}
	fmt.Fprintf(out, "sweep done duty %s\n", telemetry.FormatFloat(end))

	return nil
}

// ramp performs the intermediate writes, one per tick.
func (s sweep) ramp(ctx context.Context, dev device.Device, clk clock.Clock, out io.Writer, steps int) error {
	ticker := clk.Ticker(secondsToDuration(1 / s.rate))
	defer ticker.Stop()

	for i := 0; i < steps; i++ {
		duty := device.ClampDuty(s.start + (s.end-s.start)*float64(i)/float64(steps))
		if err := dev.WriteDuty(duty); err != nil {
			return err
		}
		fmt.Fprintf(out, "sweep %d/%d duty %s\n", i+1, steps, telemetry.FormatFloat(duty))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
