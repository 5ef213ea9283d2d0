package telemetry

import "math"

const rpmToRadPerSec = 2 * math.Pi / 60

// MotorPower returns the electrical power delivered to the motor in watts.
func (s StateSample) MotorPower() float64 {
	return s.SysVoltage * s.MotorCurrent
}

// SysPower returns the power drawn from the supply in watts.
func (s StateSample) SysPower() float64 {
	return s.SysVoltage * s.SysCurrent
}

// SysEfficiency returns MotorCurrent/SysCurrent, or 0 when no supply
// current flows.
func (s StateSample) SysEfficiency() float64 {
	if s.SysCurrent == 0 {
		return 0
	}

	return s.MotorCurrent / s.SysCurrent
}

// MotorAngVel returns the motor speed in rad/s.
func (s StateSample) MotorAngVel() float64 {
	return s.MotorRPM * rpmToRadPerSec
}

// MotorAngAccelFrom returns the finite-difference angular acceleration in
// rad/s² between prev and s. Samples with no time between them yield 0.
func (s StateSample) MotorAngAccelFrom(prev StateSample) float64 {
	dt := s.SampleTime - prev.SampleTime
	if dt <= 0 {
		return 0
	}

	return (s.MotorAngVel() - prev.MotorAngVel()) / dt
}

// MotorTorqueFrom estimates shaft torque in N·m from the angular
// acceleration since prev and the rotor's moment of inertia in kg·m².
func (s StateSample) MotorTorqueFrom(prev StateSample, momentOfInertia float64) float64 {
	return s.MotorAngAccelFrom(prev) * momentOfInertia
}
