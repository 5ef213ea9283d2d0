package device_test

import (
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/mccli/internal/device"
	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"codeberg.org/mutker/mccli/internal/vesc"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeLink struct {
	mu           sync.Mutex
	measurements *vesc.Measurements
	readErr      error
	writeErr     error
	rpms         []int
	duties       []float64
	reboots      int
	closes       int
}

func (l *fakeLink) GetMeasurements() (*vesc.Measurements, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	if l.measurements == nil {
		return nil, nil
	}
	m := *l.measurements
	return &m, nil
}

func (l *fakeLink) SetRPM(rpm int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.rpms = append(l.rpms, rpm)
	return nil
}

func (l *fakeLink) SetDutyCycle(duty float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.duties = append(l.duties, duty)
	return nil
}

func (l *fakeLink) Reboot() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reboots++
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

// openWithMock opens d and closes it when the test ends. With a mock clock
// the sampler reads once at t=0 and then only when the test advances time.
func openWithMock(t *testing.T, d device.Device) {
	t.Helper()
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })
}

func TestWriteDutyClampsForwardedValue(t *testing.T) {
	link := &fakeLink{}
	d := device.NewReal(link, device.Options{Clock: clock.NewMock(), Rate: 1})
	openWithMock(t, d)

	require.NoError(t, d.WriteDuty(1.5))
	require.NoError(t, d.WriteDuty(-0.2))
	require.NoError(t, d.WriteDuty(0.5))
	require.NoError(t, d.WriteDuty(math.NaN()))
	require.NoError(t, d.WriteDuty(math.Inf(1)))

	assert.Equal(t, []float64{1.0, 0.0, 0.5, 0.0, 1.0}, link.duties)

	var texts []string
	for _, m := range d.Log().Markers() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"set_duty 1.0", "set_duty 0.0", "set_duty 0.5", "set_duty 0.0", "set_duty 1.0"}, texts)
}

func TestSimulatedWriteDutyClamps(t *testing.T) {
	d := device.NewSimulated(device.Options{Clock: clock.NewMock(), Rate: 1})
	openWithMock(t, d)

	require.NoError(t, d.WriteDuty(1.5))
	assert.Equal(t, 1.0, d.Duty())

	require.NoError(t, d.WriteDuty(-0.2))
	assert.Equal(t, 0.0, d.Duty())

	require.NoError(t, d.WriteDuty(0.7))
	require.NoError(t, d.WriteDuty(math.NaN()))
	assert.Equal(t, 0.0, d.Duty(), "NaN is treated as zero duty")
}

func TestClampDuty(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.25, 0.25},
		{1.5, 1},
		{-0.2, 0},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, device.ClampDuty(tt.in), "ClampDuty(%v)", tt.in)
	}
}

func TestRealReadState(t *testing.T) {
	mock := clock.NewMock()
	link := &fakeLink{}
	d := device.NewReal(link, device.Options{Clock: mock, Rate: 1})
	openWithMock(t, d)

	_, ok, err := d.ReadState()
	require.NoError(t, err)
	assert.False(t, ok, "missing measurements are no-data")

	link.mu.Lock()
	link.measurements = &vesc.Measurements{VIn: 24, AvgInputCurrent: 2, AvgMotorCurrent: 3, RPM: 1200}
	link.mu.Unlock()
	mock.Add(1500 * time.Millisecond)

	sample, ok, err := d.ReadState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, telemetry.StateSample{
		SampleTime:   1.5,
		SysVoltage:   24,
		SysCurrent:   2,
		MotorCurrent: 3,
		MotorRPM:     1200,
	}, sample)
}

func TestRealDeviceErrors(t *testing.T) {
	link := &fakeLink{readErr: io.ErrUnexpectedEOF, writeErr: io.ErrClosedPipe}
	d := device.NewReal(link, device.Options{Clock: clock.NewMock(), Rate: 1})
	openWithMock(t, d)

	_, ok, err := d.ReadState()
	assert.False(t, ok)
	assert.True(t, errors.HasCode(err, errors.ErrDeviceIO))

	before := d.Log().Len()
	err = d.WriteRPM(100)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrDeviceIO))
	assert.Contains(t, err.Error(), "set_rpm 100")
	assert.Equal(t, before, d.Log().Len(), "failed writes are not recorded")
}

func TestReboot(t *testing.T) {
	sim := device.NewSimulated(device.Options{Clock: clock.NewMock(), Rate: 1})
	openWithMock(t, sim)

	err := sim.Reboot()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrDeviceNotSupported))

	link := &fakeLink{}
	hw := device.NewReal(link, device.Options{Clock: clock.NewMock(), Rate: 1})
	openWithMock(t, hw)

	require.NoError(t, hw.Reboot())
	assert.Equal(t, 1, link.reboots)
	markers := hw.Log().Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "reboot", markers[0].Text)
}

func TestSamplerFeedsLogOnDeviceClock(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	d := device.NewSimulated(device.Options{Clock: mock, Rate: 1})
	require.NoError(t, d.Open())

	require.Eventually(t, func() bool { return len(d.Log().Samples()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.WriteRPM(600))
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return len(d.Log().Samples()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, d.Close())

	entries := d.Log().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, telemetry.StateSample{SampleTime: 0, MotorRPM: 0}, entries[0])
	assert.Equal(t, telemetry.CommandMarker{At: 0, Text: "set_rpm 600"}, entries[1])
	assert.Equal(t, telemetry.StateSample{SampleTime: 1, MotorRPM: 600}, entries[2])

	samples := d.Log().Samples()
	assert.InDelta(t, 62.83, samples[1].MotorAngAccelFrom(samples[0]), 0.01)
}

func TestCloseStopsSamplingUnderLoad(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := device.NewSimulated(device.Options{Rate: 1000})
	require.NoError(t, d.Open())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for rpm := 0; ; rpm += 10 {
			select {
			case <-stop:
				return
			default:
			}
			if err := d.WriteRPM(rpm); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return len(d.Log().Samples()) >= 10 }, 2*time.Second, time.Millisecond)
	close(stop)
	wg.Wait()

	require.NoError(t, d.Close())
	n := d.Log().Len()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, d.Log().Len())
	assert.Zero(t, d.Log().Rejected())

	samples := d.Log().Samples()
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].SampleTime, samples[i-1].SampleTime)
	}
}

func TestLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	link := &fakeLink{}
	d := device.NewReal(link, device.Options{Clock: clock.NewMock(), Rate: 1})

	err := d.WriteRPM(1)
	assert.True(t, errors.HasCode(err, errors.ErrDeviceNotOpen), "writes before Open fail")
	assert.Equal(t, 0.0, d.Elapsed())

	require.NoError(t, d.Open())
	require.NoError(t, d.Open(), "Open is idempotent")

	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close is idempotent")
	assert.Equal(t, 1, link.closes)
	assert.True(t, d.Log().Closed())

	err = d.WriteDuty(0.1)
	assert.True(t, errors.HasCode(err, errors.ErrDeviceNotOpen))
	assert.Error(t, d.Open(), "a closed device cannot be reopened")
}
