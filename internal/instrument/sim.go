package instrument

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
)

const (
	// A charging cell's current tapers off; the simulator approximates it
	// as a linear decay with a little measurement noise on top.
	simDecayPerSecond = 0.05
	simNoiseSigma     = 0.005

	// Fixed seed so simulated runs are reproducible.
	simSeed = 0x705C71
)

// Simulator stands in for real hardware. Voltage holds at the set point;
// current starts at the configured limit and decays over time, which is
// enough to exercise the threshold cutoff end to end without a supply on
// the bench.
type Simulator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	now        func() time.Time
	settings   Settings
	started    time.Time
	configured bool
	on         bool
}

func NewSimulator() *Simulator {
	return &Simulator{
		rng: rand.New(rand.NewSource(simSeed)),
		now: time.Now,
	}
}

func (s *Simulator) Configure(_ context.Context, set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = set
	s.started = s.now()
	s.configured = true
	s.on = true

	return nil
}

func (s *Simulator) Read(_ context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		errFactory := errors.New()

		return Reading{}, errFactory.WithMessage(errors.ErrCommunication, "simulator not configured")
	}

	if !s.on {
		return Reading{}, nil
	}

	elapsed := s.now().Sub(s.started).Seconds()

	current := s.settings.Current - simDecayPerSecond*elapsed + s.rng.NormFloat64()*simNoiseSigma
	if current < 0 {
		current = 0
	}

	return Reading{Voltage: s.settings.Voltage, Current: current}, nil
}

func (s *Simulator) SetOutput(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		errFactory := errors.New()

		return errFactory.WithMessage(errors.ErrCommunication, "simulator not configured")
	}

	s.on = on

	return nil
}

func (s *Simulator) Identity() string {
	return ""
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.on = false

	return nil
}

// OutputOn reports whether the simulated output stage is enabled.
func (s *Simulator) OutputOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.on
}
