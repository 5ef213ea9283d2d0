package sampler

import (
	"sync"
	"time"

	"codeberg.org/mutker/mccli/internal/logger"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/benbjohnson/clock"
)

const (
	DefaultRate = 20.0
	// MaxRate gives a one nanosecond tick, the finest a ticker accepts.
	MaxRate = float64(time.Second)
)

// ValidRate reports whether rate is a finite positive rate no higher
// than MaxRate.
func ValidRate(rate float64) bool {
	return rate > 0 && rate <= MaxRate
}

// Reader yields one telemetry reading. ok is false when the device had no
// data this time; that is not an error.
type Reader interface {
	ReadState() (sample telemetry.StateSample, ok bool, err error)
}

// Appender receives successful readings.
type Appender interface {
	AppendSample(s telemetry.StateSample) error
}

// Stats counts what the sampler saw over its lifetime.
type Stats struct {
	Ticks    int
	Samples  int
	NoData   int
	Errors   int
	Rejected int
}

// Sampler polls a Reader at a fixed rate on its own goroutine and
// appends every successful reading to an Appender.
type Sampler struct {
	reader   Reader
	appender Appender
	clock    clock.Clock
	interval time.Duration
	logger   logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopChan  chan struct{}
	doneChan  chan struct{}

	mu    sync.Mutex
	stats Stats
}

// New returns a stopped Sampler ticking rate times per second. A rate
// outside (0, MaxRate] falls back to DefaultRate.
func New(r Reader, a Appender, clk clock.Clock, rate float64, log logger.Logger) *Sampler {
	if !ValidRate(rate) {
		rate = DefaultRate
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.With("sampler")
	}

	return &Sampler{
		reader:   r,
		appender: a,
		clock:    clk,
		interval: time.Duration(float64(time.Second) / rate),
		logger:   log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Interval returns the time between ticks.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Start launches the polling goroutine. The first reading is taken
// immediately. Calling Start more than once has no effect.
func (s *Sampler) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()

		ticker := s.clock.Ticker(s.interval)
		s.logger.Debug().Dur("interval", s.interval).Msg("Sampler started")

		go s.run(ticker)
	})
}

// Stop signals the polling goroutine and waits for it to exit. Once Stop
// returns no further appends are made. Stop is safe to call repeatedly
// and before Start.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.doneChan
	}
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sampler) run(ticker *clock.Ticker) {
	defer close(s.doneChan)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.tick()

		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
		}
	}
}

func (s *Sampler) tick() {
	sample, ok, err := s.reader.ReadState()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Ticks++

	switch {
	case err != nil:
		s.stats.Errors++
		s.logger.Warn().Err(err).Msg("Failed to read device state")
	case !ok:
		s.stats.NoData++
		s.logger.Debug().Msg("No data from device")
	default:
		if err := s.appender.AppendSample(sample); err != nil {
			s.stats.Rejected++
			s.logger.Debug().Err(err).Msg("Sample dropped")
			return
		}
		s.stats.Samples++
	}
}
