package sample

import (
	"math"
	"time"
)

// currentEpsilon is the cutoff below which a current reading is treated as
// zero for the resistance division.
const currentEpsilon = 1e-9

// Sample is one acquired measurement. Immutable once taken; power and
// resistance are derived, never stored.
type Sample struct {
	Timestamp time.Time
	Elapsed   time.Duration
	Voltage   float64
	Current   float64
}

// Power returns the dissipated power in watts.
func (s Sample) Power() float64 {
	return s.Voltage * s.Current
}

// Resistance returns the momentary resistance in ohms. The second return is
// false when the current is effectively zero and the quotient is undefined.
func (s Sample) Resistance() (float64, bool) {
	if math.Abs(s.Current) <= currentEpsilon {
		return 0, false
	}

	return s.Voltage / s.Current, true
}
