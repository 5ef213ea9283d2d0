package telemetry_test

import (
	"math"
	"sync"
	"testing"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedQuantities(t *testing.T) {
	s := telemetry.StateSample{
		SampleTime:   2,
		SysVoltage:   24,
		SysCurrent:   4,
		MotorCurrent: 3,
		MotorRPM:     60,
	}

	assert.InDelta(t, 72.0, s.MotorPower(), 1e-12)
	assert.InDelta(t, 96.0, s.SysPower(), 1e-12)
	assert.InDelta(t, 0.75, s.SysEfficiency(), 1e-12)
	assert.InDelta(t, 2*math.Pi, s.MotorAngVel(), 1e-12)
}

func TestSysEfficiencyWithoutSupplyCurrent(t *testing.T) {
	for _, motorCurrent := range []float64{0, 1.5, -3, 1e6} {
		s := telemetry.StateSample{SysVoltage: 12, MotorCurrent: motorCurrent}
		assert.Equal(t, 0.0, s.SysEfficiency(), "motor current %v", motorCurrent)
	}
}

func TestPairwiseDerivatives(t *testing.T) {
	first := telemetry.StateSample{SampleTime: 0, MotorRPM: 0}
	second := telemetry.StateSample{SampleTime: 1, MotorRPM: 600}

	assert.InDelta(t, 62.83, second.MotorAngVel(), 0.01)
	assert.InDelta(t, 62.83, second.MotorAngAccelFrom(first), 0.01)
	assert.InDelta(t, 62.83*0.5, second.MotorTorqueFrom(first, 0.5), 0.01)

	decel := telemetry.StateSample{SampleTime: 3, MotorRPM: 0}
	assert.InDelta(t, -600*2*math.Pi/60/2, decel.MotorAngAccelFrom(second), 1e-9)
}

func TestAngAccelWithoutElapsedTime(t *testing.T) {
	a := telemetry.StateSample{SampleTime: 1, MotorRPM: 100}
	b := telemetry.StateSample{SampleTime: 1, MotorRPM: 900}

	assert.Equal(t, 0.0, b.MotorAngAccelFrom(a))
	assert.Equal(t, 0.0, b.MotorTorqueFrom(a, 2))
}

func TestEventLogKeepsInsertionOrder(t *testing.T) {
	log := telemetry.NewEventLog()

	require.NoError(t, log.AppendSample(telemetry.StateSample{SampleTime: 0.05}))
	require.NoError(t, log.AppendMarker(telemetry.CommandMarker{At: 0.07, Text: "set_rpm 100"}))
	require.NoError(t, log.AppendSample(telemetry.StateSample{SampleTime: 0.10}))

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.IsType(t, telemetry.StateSample{}, entries[0])
	assert.IsType(t, telemetry.CommandMarker{}, entries[1])
	assert.Equal(t, 0.10, entries[2].Time())

	assert.Len(t, log.Samples(), 2)
	assert.Equal(t, []telemetry.CommandMarker{{At: 0.07, Text: "set_rpm 100"}}, log.Markers())
}

func TestEventLogRejectsAppendsAfterClose(t *testing.T) {
	log := telemetry.NewEventLog()
	require.NoError(t, log.AppendSample(telemetry.StateSample{}))

	log.Close()

	err := log.AppendSample(telemetry.StateSample{SampleTime: 1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrLogClosed))
	assert.Error(t, log.AppendMarker(telemetry.CommandMarker{Text: "late"}))

	assert.True(t, log.Closed())
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, 2, log.Rejected())
}

func TestEventLogConcurrentAppend(t *testing.T) {
	log := telemetry.NewEventLog()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if w%2 == 0 {
					_ = log.AppendSample(telemetry.StateSample{SampleTime: float64(i)})
				} else {
					_ = log.AppendMarker(telemetry.CommandMarker{At: float64(i)})
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, log.Len())
	assert.Len(t, log.Samples(), 400)
	assert.Len(t, log.Markers(), 400)
}

func TestEntriesReturnsCopy(t *testing.T) {
	log := telemetry.NewEventLog()
	require.NoError(t, log.AppendSample(telemetry.StateSample{SampleTime: 1}))

	entries := log.Entries()
	entries[0] = telemetry.CommandMarker{Text: "mutated"}

	assert.IsType(t, telemetry.StateSample{}, log.Entries()[0])
}
