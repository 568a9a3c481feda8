// Package session defines the run configuration shared by the acquisition
// engine, the exporters, and the archive.
package session

import (
	"fmt"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
)

// Mode selects which quantity the supply regulates.
type Mode string

const (
	ConstantVoltage Mode = "constant_voltage"
	ConstantCurrent Mode = "constant_current"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ConstantVoltage, ConstantCurrent:
		return Mode(s), nil
	}

	errFactory := errors.New()

	return "", errFactory.WithMessage(errors.ErrConfig, "unknown control mode").WithData(s)
}

// Direction selects which side of the threshold ends the run.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// ParseDirection converts a configuration string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Below, Above:
		return Direction(s), nil
	}

	errFactory := errors.New()

	return "", errFactory.WithMessage(errors.ErrConfig, "unknown cutoff direction").WithData(s)
}

// Cell describes the specimen under test. Purely descriptive; it travels
// into export metadata and the archive untouched.
type Cell struct {
	Anode       string
	Cathode     string
	Electrolyte string
	Molarity    float64
}

const (
	MinInterval = 10 * time.Millisecond
	MinWindow   = 10
)

// Config is a complete description of one acquisition run.
type Config struct {
	// Voltage and Current are the supply set points in volts and amps.
	Voltage float64
	Current float64

	// Mode picks the regulated quantity; the cutoff watches the other one.
	Mode Mode

	// Threshold and Direction define the automatic cutoff.
	Threshold float64
	Direction Direction

	// Interval is the sampling period, Window the live buffer depth.
	Interval time.Duration
	Window   int

	// Address is the instrument's host:port. Ignored when Simulate is set.
	Address  string
	Simulate bool

	Cell  Cell
	Notes string
}

// Default returns the baseline configuration. It is not valid on its own:
// a run still needs an instrument address or simulation enabled.
func Default() Config {
	return Config{
		Voltage:   4.0,
		Current:   0.5,
		Mode:      ConstantVoltage,
		Threshold: 0.062,
		Direction: Below,
		Interval:  200 * time.Millisecond,
		Window:    1000,
	}
}

// Validate reports the first problem that would make the run unsafe or
// meaningless.
func (c *Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Voltage <= 0:
		return errFactory.WithMessage(errors.ErrConfig, "voltage set point must be positive").WithData(c.Voltage)
	case c.Current <= 0:
		return errFactory.WithMessage(errors.ErrConfig, "current limit must be positive").WithData(c.Current)
	case c.Mode != ConstantVoltage && c.Mode != ConstantCurrent:
		return errFactory.WithMessage(errors.ErrConfig, "unknown control mode").WithData(string(c.Mode))
	// Zero is a valid threshold: with direction below it never trips and the
	// run ends only on zero-output collapse or a manual stop.
	case c.Threshold < 0:
		return errFactory.WithMessage(errors.ErrConfig, "cutoff threshold must not be negative").WithData(c.Threshold)
	case c.Direction != Below && c.Direction != Above:
		return errFactory.WithMessage(errors.ErrConfig, "unknown cutoff direction").WithData(string(c.Direction))
	case c.Interval < MinInterval:
		return errFactory.WithMessage(errors.ErrConfig,
			fmt.Sprintf("sampling interval must be at least %s", MinInterval)).WithData(c.Interval.String())
	case c.Window < MinWindow:
		return errFactory.WithMessage(errors.ErrConfig,
			fmt.Sprintf("sample window must hold at least %d samples", MinWindow)).WithData(c.Window)
	case !c.Simulate && c.Address == "":
		return errFactory.WithMessage(errors.ErrConfig, "instrument address required unless simulation is enabled")
	}

	return nil
}
