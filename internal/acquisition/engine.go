// Package acquisition drives the sampling loop: it owns the instrument for
// the duration of a session, feeds the live window and the full-history
// log, and ends the session on threshold trip, user stop, or the first
// error. Errors are never retried; with an energized supply on the bench,
// failing fast beats guessing.
package acquisition

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/instrument"
	"codeberg.org/voltaic/psuctl/internal/logger"
	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/session"
	"codeberg.org/voltaic/psuctl/internal/status"
	"codeberg.org/voltaic/psuctl/internal/threshold"
)

const (
	// Cutoff checks are suppressed while the supply settles after power-on,
	// so inrush noise cannot end the session on sample one.
	settleTime = time.Second

	// Readings collapsed to zero after settling mean the output died or the
	// leads came off. The session stops instead of logging a dead cell.
	zeroVolts = 0.001
	zeroAmps  = 0.001

	progressEvery = 5 * time.Second
)

// OpenFunc opens the instrument for one run. The default is instrument.Open.
type OpenFunc func(ctx context.Context, cfg session.Config) (instrument.Device, error)

// Result is everything a finished run leaves behind: identity and timing,
// the stop cause, and the frozen full-history log.
type Result struct {
	ID       uuid.UUID
	Config   session.Config
	Identity string

	// Started marks the beginning of sampling; every sample's Elapsed is
	// relative to it. Zero when the run failed before reaching Running.
	Started time.Time
	Ended   time.Time

	Cause   status.Cause
	Samples []sample.Sample
}

// Engine runs at most one acquisition session at a time.
type Engine struct {
	open   OpenFunc
	ring   *sample.Ring
	bus    *status.Bus
	settle time.Duration

	mu    sync.Mutex
	state State
	stop  chan struct{}
}

func NewEngine(open OpenFunc, ring *sample.Ring, bus *status.Bus) *Engine {
	if open == nil {
		open = instrument.Open
	}

	return &Engine{
		open:   open,
		ring:   ring,
		bus:    bus,
		settle: settleTime,
		state:  Idle,
	}
}

// State returns the engine's current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	logger.Debug().Str("state", string(s)).Msg("Engine state changed")
}

// Stop requests a user stop of the running session. It never blocks and is
// a no-op when nothing is running. The loop observes the request within one
// sampling interval; an in-flight read completes first and its sample is
// kept.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop == nil {
		return
	}

	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Run executes one session and blocks until it is over. The returned Result
// carries the full-history log even when err is non-nil, so a run cut short
// by an error still exports whatever was collected. On every exit path the
// instrument output is commanded off and the device released before the
// engine returns to Idle.
func (e *Engine) Run(ctx context.Context, cfg session.Config) (res Result, err error) {
	errFactory := errors.New()

	if verr := cfg.Validate(); verr != nil {
		return Result{}, verr
	}

	stop := make(chan struct{})

	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()

		return Result{}, errFactory.New(errors.ErrAlreadyRunning)
	}
	e.state = Connecting
	e.stop = stop
	e.mu.Unlock()

	logger.Debug().Str("state", string(Connecting)).Msg("Engine state changed")

	res = Result{
		ID:     uuid.New(),
		Config: cfg,
	}

	defer func() {
		res.Ended = time.Now()

		e.mu.Lock()
		e.state = Idle
		e.stop = nil
		e.mu.Unlock()

		logger.Debug().Str("state", string(Idle)).Msg("Engine state changed")
	}()

	dev, oerr := e.open(ctx, cfg)
	if oerr != nil {
		e.setState(StoppingByError)
		res.Cause = status.CauseError
		e.bus.End(status.CauseError, status.Error, "connect failed: %v", oerr)

		return res, oerr
	}
	res.Identity = dev.Identity()

	defer func() {
		if cerr := dev.Close(); cerr != nil {
			e.bus.Errorf("instrument release failed: %v", cerr)
		}
	}()

	// shutdown commands the output off and publishes the terminal event.
	// A fresh context keeps the off command alive after cancellation.
	shutdown := func(st State, cause status.Cause, kind status.Kind, format string, args ...any) {
		e.setState(st)
		res.Cause = cause

		if offErr := dev.SetOutput(context.Background(), false); offErr != nil {
			e.bus.Errorf("output off failed: %v", offErr)
		}

		e.bus.End(cause, kind, format, args...)
	}

	if cerr := dev.Configure(ctx, instrument.SettingsFor(cfg)); cerr != nil {
		shutdown(StoppingByError, status.CauseError, status.Error, "configure failed: %v", cerr)

		return res, cerr
	}

	e.ring.Resize(cfg.Window)

	// The session clock starts here: Elapsed and the settle gate count from
	// the Running transition, not from dial time.
	res.Started = time.Now()
	e.setState(Running)

	if cfg.Simulate {
		e.bus.Successf("simulated supply: output on")
	} else {
		e.bus.Successf("connected: %s", res.Identity)
	}

	stopRequested := func() bool {
		select {
		case <-ctx.Done():
			return true
		case <-stop:
			return true
		default:
			return false
		}
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	lastProgress := res.Started

	for {
		if stopRequested() {
			shutdown(StoppingByUser, status.CauseUser, status.Info, "stopped by user")

			return res, nil
		}

		reading, rerr := dev.Read(ctx)
		if rerr != nil {
			shutdown(StoppingByError, status.CauseError, status.Error, "measurement failed: %v", rerr)

			return res, rerr
		}

		now := time.Now()
		s := sample.Sample{
			Timestamp: now,
			Elapsed:   now.Sub(res.Started),
			Voltage:   reading.Voltage,
			Current:   reading.Current,
		}

		res.Samples = append(res.Samples, s)
		e.ring.Push(s)
		e.bus.DataPoint(s)

		if s.Elapsed >= e.settle {
			if d := threshold.Evaluate(s, cfg); d.Tripped {
				shutdown(StoppingByThreshold, status.CauseThreshold, status.Warning, "cutoff: %s", d)

				return res, nil
			}

			if math.Abs(s.Voltage) < zeroVolts && math.Abs(s.Current) < zeroAmps {
				shutdown(StoppingByThreshold, status.CauseThreshold, status.Warning,
					"output collapsed to zero after %d samples", len(res.Samples))

				return res, nil
			}
		}

		if now.Sub(lastProgress) >= progressEvery {
			lastProgress = now
			e.bus.Infof("%d samples, %.3f V / %.3f A", len(res.Samples), s.Voltage, s.Current)
		}

		select {
		case <-ctx.Done():
		case <-stop:
		case <-ticker.C:
		}
	}
}
