// Package instrument talks to the programmable power supply.
//
// Exactly one implementation is selected when a session starts: the SCPI
// device over TCP, or the offline simulator. The acquisition loop drives the
// Device interface and never branches on which one it holds. Raw protocol
// and socket faults stay inside this package; everything crossing the
// boundary is classified as a connection or communication error.
package instrument

import (
	"context"

	"codeberg.org/voltaic/psuctl/internal/session"
)

// Reading is one raw voltage/current measurement pair.
type Reading struct {
	Voltage float64
	Current float64
}

// Settings is everything the supply needs before output can be enabled.
type Settings struct {
	Voltage          float64
	Current          float64
	ConstantCurrent  bool
	OverVoltageLimit float64
}

// SettingsFor maps a run configuration onto instrument settings. Under
// constant current the cutoff threshold doubles as the hardware
// over-voltage protection limit.
func SettingsFor(cfg session.Config) Settings {
	s := Settings{
		Voltage: cfg.Voltage,
		Current: cfg.Current,
	}

	if cfg.Mode == session.ConstantCurrent {
		s.ConstantCurrent = true
		s.OverVoltageLimit = cfg.Threshold
	}

	return s
}

// Device is the capability surface the acquisition loop drives.
type Device interface {
	// Configure applies settings and enables output. Rejected parameters
	// or a dead handle surface as a connection error.
	Configure(ctx context.Context, s Settings) error

	// Read takes one measurement. Timeouts and malformed replies surface
	// as communication errors.
	Read(ctx context.Context) (Reading, error)

	// SetOutput switches the output stage on or off.
	SetOutput(ctx context.Context, on bool) error

	// Identity names the connected hardware. Empty for the simulator.
	Identity() string

	// Close turns the output off, then releases the device. Calling it
	// again is a no-op.
	Close() error
}

// Open hands back the device described by cfg: the simulator when
// simulation is requested, otherwise a live SCPI connection.
func Open(ctx context.Context, cfg session.Config) (Device, error) {
	if cfg.Simulate {
		return NewSimulator(), nil
	}

	return Dial(ctx, cfg.Address)
}
