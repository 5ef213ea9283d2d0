package dispatch

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/benbjohnson/clock"
)

// Builtins returns the commands available without a device.
func Builtins(clk clock.Clock) []Command {
	if clk == nil {
		clk = clock.New()
	}

	return []Command{
		{
			Name:    "wait",
			Summary: "Pause command input; sampling continues",
			Args:    []Arg{FloatArg("seconds")},
			Handler: func(ctx context.Context, out io.Writer, args []any) (Outcome, error) {
				seconds := args[0].(float64)
				if err := checkSeconds("seconds", seconds); err != nil {
					return Continue, err
				}
				if err := sleep(ctx, clk, seconds); err != nil {
					return Continue, err
				}
				fmt.Fprintf(out, "wait %s\n", telemetry.FormatFloat(seconds))
				return Continue, nil
			},
		},
		{
			Name:    "exit",
			Summary: "End the session and write the report",
			Handler: func(_ context.Context, out io.Writer, _ []any) (Outcome, error) {
				fmt.Fprintln(out, "exit")
				return Exit, nil
			},
		},
	}
}

func sleep(ctx context.Context, clk clock.Clock, seconds float64) error {
	select {
	case <-clk.After(secondsToDuration(seconds)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maxSeconds is the longest whole-second span a time.Duration holds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// checkSeconds rejects spans that are negative, non-finite or too long to
// convert to a time.Duration.
func checkSeconds(name string, seconds float64) error {
	if seconds < 0 || math.IsNaN(seconds) || seconds > maxSeconds {
		return errors.New().WithMessage(errors.ErrInvalidArgument,
			fmt.Sprintf("%s must be between 0 and %.0f, got %v", name, maxSeconds, seconds))
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func printSample(out io.Writer, s telemetry.StateSample) {
	fmt.Fprintf(out, "time %s s | %s V | %s A sys | %s A motor | %s rpm | %s W motor | %s W sys | %s rad/s\n",
		telemetry.FormatFloat(s.SampleTime),
		telemetry.FormatFloat(s.SysVoltage),
		telemetry.FormatFloat(s.SysCurrent),
		telemetry.FormatFloat(s.MotorCurrent),
		telemetry.FormatFloat(s.MotorRPM),
		telemetry.FormatFloat(s.MotorPower()),
		telemetry.FormatFloat(s.SysPower()),
		telemetry.FormatFloat(s.MotorAngVel()),
	)
}
