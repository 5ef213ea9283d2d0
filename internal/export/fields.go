package export

import (
	"strings"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/telemetry"
)

// column computes one CSV value from the current sample and, for pairwise
// fields, the preceding one. hasPrev is false on the first sample.
type column func(cur, prev telemetry.StateSample, hasPrev bool) float64

const (
	FieldSampleTime    = "sample_time"
	FieldSysVoltage    = "sys_voltage"
	FieldSysCurrent    = "sys_current"
	FieldMotorCurrent  = "motor_current"
	FieldMotorRPM      = "motor_rpm"
	FieldMotorPower    = "motor_power"
	FieldSysPower      = "sys_power"
	FieldSysEfficiency = "sys_efficiency"
	FieldMotorAngVel   = "motor_angvel"
	FieldMotorAngAccel = "motor_angaccel"
	FieldMotorTorque   = "motor_torque"
)

var staticColumns = map[string]func(telemetry.StateSample) float64{
	FieldSampleTime:    func(s telemetry.StateSample) float64 { return s.SampleTime },
	FieldSysVoltage:    func(s telemetry.StateSample) float64 { return s.SysVoltage },
	FieldSysCurrent:    func(s telemetry.StateSample) float64 { return s.SysCurrent },
	FieldMotorCurrent:  func(s telemetry.StateSample) float64 { return s.MotorCurrent },
	FieldMotorRPM:      func(s telemetry.StateSample) float64 { return s.MotorRPM },
	FieldMotorPower:    telemetry.StateSample.MotorPower,
	FieldSysPower:      telemetry.StateSample.SysPower,
	FieldSysEfficiency: telemetry.StateSample.SysEfficiency,
	FieldMotorAngVel:   telemetry.StateSample.MotorAngVel,
}

// Fields lists every field name Render accepts, in canonical order.
func Fields() []string {
	return []string{
		FieldSampleTime,
		FieldSysVoltage,
		FieldSysCurrent,
		FieldMotorCurrent,
		FieldMotorRPM,
		FieldMotorPower,
		FieldSysPower,
		FieldSysEfficiency,
		FieldMotorAngVel,
		FieldMotorAngAccel,
		FieldMotorTorque,
	}
}

// DefaultFields is the column set written when none is configured.
func DefaultFields() []string {
	return []string{
		FieldSampleTime,
		FieldSysVoltage,
		FieldSysCurrent,
		FieldMotorCurrent,
		FieldMotorRPM,
		FieldMotorPower,
		FieldSysPower,
		FieldMotorAngVel,
		FieldMotorAngAccel,
	}
}

func resolve(opts Options) ([]column, error) {
	errFactory := errors.New()

	columns := make([]column, 0, len(opts.Fields))
	for _, name := range opts.Fields {
		name = strings.TrimSpace(name)

		if static, ok := staticColumns[name]; ok {
			columns = append(columns, func(cur, _ telemetry.StateSample, _ bool) float64 {
				return static(cur)
			})
			continue
		}

		switch name {
		case FieldMotorAngAccel:
			columns = append(columns, func(cur, prev telemetry.StateSample, hasPrev bool) float64 {
				if !hasPrev {
					return 0
				}
				return cur.MotorAngAccelFrom(prev)
			})
		case FieldMotorTorque:
			if opts.MomentOfInertia == nil {
				return nil, errFactory.WithMessage(errors.ErrExportMissingParameter,
					"motor_torque requires a moment of inertia")
			}
			moi := *opts.MomentOfInertia
			columns = append(columns, func(cur, prev telemetry.StateSample, hasPrev bool) float64 {
				if !hasPrev {
					return 0
				}
				return cur.MotorTorqueFrom(prev, moi)
			})
		default:
			return nil, errFactory.WithData(errors.ErrExportInvalidField, name)
		}
	}

	return columns, nil
}

// Validate reports whether Render would accept opts, without rendering.
func Validate(opts Options) error {
	_, err := resolve(opts)
	return err
}
