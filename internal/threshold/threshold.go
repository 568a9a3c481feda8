// Package threshold implements the automatic safety cutoff decision.
//
// The decision is a pure function of one sample and the run configuration.
// There is deliberately no hysteresis or debounce: a single strict crossing
// trips the cutoff, equality never does.
package threshold

import (
	"fmt"
	"math"

	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/session"
)

// Decision is the outcome of evaluating one sample against the cutoff.
type Decision struct {
	Tripped   bool
	Quantity  string
	Value     float64
	Limit     float64
	Direction session.Direction
}

// Evaluate checks one sample against the configured cutoff. The monitored
// quantity is the one the supply does not regulate: the current magnitude
// under constant voltage, the raw voltage under constant current.
func Evaluate(s sample.Sample, cfg session.Config) Decision {
	d := Decision{
		Quantity:  "current",
		Value:     math.Abs(s.Current),
		Limit:     cfg.Threshold,
		Direction: cfg.Direction,
	}

	if cfg.Mode == session.ConstantCurrent {
		d.Quantity = "voltage"
		d.Value = s.Voltage
	}

	switch cfg.Direction {
	case session.Below:
		d.Tripped = d.Value < d.Limit
	case session.Above:
		d.Tripped = d.Value > d.Limit
	}

	return d
}

// String renders the comparison, e.g. "current 0.0500 < 0.0900".
func (d Decision) String() string {
	op := "<"
	if d.Direction == session.Above {
		op = ">"
	}

	return fmt.Sprintf("%s %.4f %s %.4f", d.Quantity, d.Value, op, d.Limit)
}
