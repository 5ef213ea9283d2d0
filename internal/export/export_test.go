package export_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/export"
	"codeberg.org/mutker/mccli/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interleaved() []telemetry.Entry {
	return []telemetry.Entry{
		telemetry.StateSample{SampleTime: 0, SysVoltage: 24, MotorCurrent: 1, MotorRPM: 0},
		telemetry.CommandMarker{At: 0.5, Text: "set_rpm 600"},
		telemetry.StateSample{SampleTime: 1, SysVoltage: 24, MotorCurrent: 2, MotorRPM: 600},
		telemetry.CommandMarker{At: 1.5, Text: "set_duty 0.5"},
		telemetry.StateSample{SampleTime: 2, SysVoltage: 24, MotorCurrent: 2, MotorRPM: 600},
	}
}

func parseRow(t *testing.T, line string) []float64 {
	t.Helper()

	var row []float64
	for _, field := range strings.Split(line, ",") {
		v, err := strconv.ParseFloat(field, 64)
		require.NoError(t, err)
		row = append(row, v)
	}

	return row
}

func TestRenderExcludesMarkers(t *testing.T) {
	out, err := export.Render(interleaved(), export.Options{
		Fields: []string{"sample_time", "motor_angvel", "motor_power"},
	})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4, "header plus one row per sample")
	assert.Equal(t, "sample_time,motor_angvel,motor_power", lines[0])
	assert.Equal(t, "0.0,0.0,24.0", lines[1])
	row := parseRow(t, lines[2])
	assert.Equal(t, 1.0, row[0])
	assert.InDelta(t, 62.83, row[1], 0.01)
	assert.Equal(t, 48.0, row[2])
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestRenderIncludesMarkers(t *testing.T) {
	out, err := export.Render(interleaved(), export.Options{
		Fields:          []string{"sample_time"},
		IncludeCommands: true,
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"sample_time",
		"0.0",
		`# (0.5) "set_rpm 600"`,
		"1.0",
		`# (1.5) "set_duty 0.5"`,
		"2.0",
	}, "\n"), out)
}

func TestRenderPairwiseSkipsMarkers(t *testing.T) {
	moi := 0.5
	out, err := export.Render(interleaved(), export.Options{
		Fields:          []string{"motor_angaccel", "motor_torque"},
		IncludeCommands: true,
		MomentOfInertia: &moi,
	})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "0.0,0.0", lines[1], "first sample has no predecessor")
	row := parseRow(t, lines[3])
	assert.InDelta(t, 62.83, row[0], 0.01, "reference is the previous sample, not the marker")
	assert.InDelta(t, 31.42, row[1], 0.01)
	assert.Equal(t, "0.0,0.0", lines[5])
}

func TestRenderFieldErrors(t *testing.T) {
	_, err := export.Render(interleaved(), export.Options{Fields: []string{"sample_time", "torque"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrExportInvalidField))
	assert.Contains(t, err.Error(), "torque")

	_, err = export.Render(interleaved(), export.Options{Fields: []string{"motor_torque"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrExportMissingParameter))

	assert.NoError(t, export.Validate(export.Options{Fields: export.DefaultFields()}))
}

func TestRenderEmptyLog(t *testing.T) {
	out, err := export.Render(nil, export.Options{Fields: []string{"sample_time", "sys_efficiency"}})
	require.NoError(t, err)
	assert.Equal(t, "sample_time,sys_efficiency", out)
}

func TestRenderAllFields(t *testing.T) {
	moi := 1.0
	out, err := export.Render([]telemetry.Entry{
		telemetry.StateSample{SampleTime: 0, SysVoltage: 10, SysCurrent: 0, MotorCurrent: 1, MotorRPM: 0},
	}, export.Options{Fields: export.Fields(), MomentOfInertia: &moi})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(export.Fields(), ","), lines[0])
	assert.Equal(t, "0.0,10.0,0.0,1.0,0.0,10.0,0.0,0.0,0.0,0.0,0.0", lines[1])
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	now := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local)

	path, err := export.WriteReport(dir, now, "sample_time\n0.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mccli_03_07_2024_09:05:03.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample_time\n0.0", string(data))

	_, err = export.WriteReport(dir, now, "other")
	require.Error(t, err, "reports are never overwritten")
	assert.True(t, errors.HasCode(err, errors.ErrExportWrite))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample_time\n0.0", string(data))
}
