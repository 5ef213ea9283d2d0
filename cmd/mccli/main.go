package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/mccli/internal/config"
	"codeberg.org/mutker/mccli/internal/device"
	"codeberg.org/mutker/mccli/internal/dispatch"
	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/export"
	"codeberg.org/mutker/mccli/internal/logger"
	"codeberg.org/mutker/mccli/internal/pid"
	"go.uber.org/multierr"
)

const (
	exitOK          = 0
	exitDeviceError = 1
	exitConfigError = 2

	prompt = "> "
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "motor control command line interface")

	cfg, err := config.Load(args)
	if err != nil {
		if errors.HasCode(err, errors.ErrUsage) {
			config.Usage(stdout)
			return exitOK
		}
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitConfigError
	}

	level, err := logger.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitConfigError
	}
	logger.InitWithWriter(stderr, level)
	logger.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	exportOpts := export.Options{
		Fields:          cfg.Fields,
		IncludeCommands: cfg.IncludeCommands,
		MomentOfInertia: cfg.Inertia(),
	}
	if err := export.Validate(exportOpts); err != nil {
		fmt.Fprintf(stderr, "invalid report settings: %v\n", err)
		return exitConfigError
	}

	fmt.Fprintf(stdout, "\tesc endpoint: %s\n\tdyno endpoint: %s\n", cfg.ESCEndpoint, cfg.DynoEndpoint)

	if err := pid.Write(cfg.ESCEndpoint); err != nil {
		logError(err, "failed to lock ESC endpoint")
		return exitDeviceError
	}
	defer func() {
		if err := pid.Remove(cfg.ESCEndpoint); err != nil {
			logError(err, "failed to remove PID file")
		}
	}()

	dev, err := openDevice(cfg)
	if err != nil {
		logError(err, "failed to initialize ESC")
		return exitDeviceError
	}
	// Close is idempotent; this covers a panic in the session.
	defer dev.Close()

	logger.Info().Str("endpoint", cfg.DynoEndpoint).Msg("Dyno endpoint recorded; no dyno commands are available")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	session(ctx, dev, cfg, stdin, stdout)

	if err := dev.Close(); err != nil {
		logError(err, "failed to close ESC")
	}

	report(dev, cfg, exportOpts, stdout)

	logger.Info().Msg("Exiting...")

	return exitOK
}

func openDevice(cfg *config.Config) (device.Device, error) {
	opts := device.Options{Rate: cfg.Rate}

	var dev device.Device
	if cfg.Simulated() {
		dev = device.NewSimulated(opts)
	} else {
		hw, err := device.OpenSerial(cfg.ESCEndpoint, cfg.BaudRate, cfg.ReadTimeout, opts)
		if err != nil {
			return nil, err
		}
		dev = hw
	}

	if err := start(dev); err != nil {
		return nil, err
	}

	return dev, nil
}

// start opens dev. A device that fails to open is closed again so that
// its port is released.
func start(dev device.Device) error {
	if err := dev.Open(); err != nil {
		return multierr.Append(err, dev.Close())
	}
	return nil
}

func session(ctx context.Context, dev device.Device, cfg *config.Config, stdin io.Reader, stdout io.Writer) {
	cmds := append(dispatch.Builtins(nil), dispatch.DeviceCommands(dev, nil, cfg.SweepRate)...)

	registry, err := dispatch.NewRegistry(cmds...)
	if err != nil {
		logError(err, "failed to build command registry")
		return
	}

	d := dispatch.New(registry, stdout, nil)
	d.SetPrompt(prompt)

	if err := d.Run(ctx, stdin); err != nil {
		logError(err, "failed to read commands")
	}
}

func report(dev device.Device, cfg *config.Config, opts export.Options, stdout io.Writer) {
	content, err := export.Render(dev.Log().Entries(), opts)
	if err != nil {
		logError(err, "failed to render report")
		return
	}

	path, err := export.WriteReport(cfg.OutputDir, time.Now(), content)
	if err != nil {
		logError(err, "failed to write report")
		return
	}

	fmt.Fprintf(stdout, "report written to %s\n", path)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
