package device

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/logger"
	"codeberg.org/mutker/mccli/internal/sampler"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

const (
	stateNew int32 = iota
	stateOpen
	stateClosed
)

// session is the bookkeeping every Device variant shares: the I/O lock,
// start time, event log and sampler lifecycle.
type session struct {
	io sync.Mutex

	clock  clock.Clock
	log    *telemetry.EventLog
	logger logger.Logger
	rate   float64

	lifecycle sync.Mutex
	state     atomic.Int32
	start     time.Time
	sampler   *sampler.Sampler
}

func newSession(opts Options, component string) *session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.With(component)
	}
	if opts.Rate <= 0 {
		opts.Rate = sampler.DefaultRate
	}

	return &session{
		clock:  opts.Clock,
		log:    telemetry.NewEventLog(),
		logger: opts.Logger,
		rate:   opts.Rate,
	}
}

func (s *session) open(reader sampler.Reader) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.state.Load() {
	case stateOpen:
		return nil
	case stateClosed:
		return errors.New().WithMessage(errors.ErrDeviceNotOpen, "device already closed")
	}

	s.start = s.clock.Now()
	s.sampler = sampler.New(reader, s.log, s.clock, s.rate, logger.With("sampler"))
	s.state.Store(stateOpen)
	s.sampler.Start()

	s.logger.Info().Float64("rate", s.rate).Msg("Session opened")

	return nil
}

// close runs each release exactly once, after the sampler has exited.
func (s *session) close(releases ...func() error) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.state.Load() == stateClosed {
		return nil
	}

	if s.sampler != nil {
		s.sampler.Stop()
		stats := s.sampler.Stats()
		s.logger.Info().
			Int("ticks", stats.Ticks).
			Int("samples", stats.Samples).
			Int("no_data", stats.NoData).
			Int("errors", stats.Errors).
			Msg("Sampler stopped")
	}

	s.io.Lock()
	defer s.io.Unlock()

	s.state.Store(stateClosed)
	s.log.Close()

	var err error
	for _, release := range releases {
		err = multierr.Append(err, release())
	}
	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	s.logger.Info().Int("entries", s.log.Len()).Msg("Session closed")

	return nil
}

func (s *session) isOpen() bool {
	return s.state.Load() == stateOpen
}

func (s *session) elapsed() float64 {
	// start is written before the state leaves stateNew
	if s.state.Load() == stateNew {
		return 0
	}

	return s.clock.Since(s.start).Seconds()
}

// do runs fn under the I/O lock if the device is open.
func (s *session) do(fn func() error) error {
	s.io.Lock()
	defer s.io.Unlock()

	if !s.isOpen() {
		return errors.New().New(errors.ErrDeviceNotOpen)
	}

	return fn()
}

// mark appends a command marker. Callers hold the I/O lock so markers and
// samples land in the order the device saw them.
func (s *session) mark(text string) {
	m := telemetry.CommandMarker{At: s.elapsed(), Text: text}
	if err := s.log.AppendMarker(m); err != nil {
		s.logger.Debug().Err(err).Str("command", text).Msg("Marker dropped")
		return
	}
	s.logger.Debug().Float64("time", m.At).Str("command", text).Msg("Command recorded")
}

func ioError(command string, err error) error {
	return errors.New().Wrap(errors.ErrDeviceIO, err).WithMessage(fmt.Sprintf("%s failed", command))
}

// ClampDuty limits duty to [0, 1]. NaN maps to 0.
func ClampDuty(duty float64) float64 {
	if math.IsNaN(duty) {
		return 0
	}
	return min(max(duty, 0), 1)
}

func rpmCommand(rpm int) string {
	return fmt.Sprintf("set_rpm %d", rpm)
}

func dutyCommand(duty float64) string {
	return "set_duty " + telemetry.FormatFloat(duty)
}
