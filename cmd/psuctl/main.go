package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"codeberg.org/voltaic/psuctl/internal/acquisition"
	"codeberg.org/voltaic/psuctl/internal/archive"
	"codeberg.org/voltaic/psuctl/internal/config"
	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/export"
	"codeberg.org/voltaic/psuctl/internal/logger"
	"codeberg.org/voltaic/psuctl/internal/pid"
	"codeberg.org/voltaic/psuctl/internal/presets"
	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/status"
)

// busSize buffers enough events to ride out a stalled terminal without
// stalling the sampling loop.
const busSize = 256

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			os.Exit(0)
		}

		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	os.Exit(run())
}

func run() int {
	store := presets.NewStore(cfg.PresetsFile)
	if err := store.Load(); err != nil {
		logger.Error().Err(err).Msg("failed to load presets")

		return 1
	}

	if cfg.ListPresets {
		for _, name := range store.Names() {
			fmt.Println(name)
		}

		return 0
	}

	if cfg.DeletePreset != "" {
		return deletePreset(store, cfg.DeletePreset)
	}

	if cfg.ListSessions > 0 {
		return listSessions(cfg.ListSessions)
	}

	runCfg := cfg.Session()

	if cfg.Preset != "" {
		p, ok := store.Get(cfg.Preset)
		if !ok {
			logger.Error().Str("preset", cfg.Preset).Msg("no such preset")

			return 1
		}

		runCfg = p.Apply(runCfg)
		logger.Debug().Str("preset", cfg.Preset).Msg("Preset applied")
	}

	if cfg.SavePreset != "" {
		return savePreset(store, cfg.SavePreset, presets.FromConfig(runCfg))
	}

	if err := runCfg.Validate(); err != nil {
		logger.ErrorWithCode(err).Msg("invalid configuration")

		return 1
	}

	if err := pid.Acquire(); err != nil {
		logger.Error().Err(err).Msg("another psuctl is running")

		return 1
	}
	defer func() {
		if err := pid.Release(); err != nil {
			logger.Error().Err(err).Msg("failed to remove pid file")
		}
	}()

	arch, err := archive.NewService(cfg.ArchiveConfig())
	if err != nil {
		logger.ErrorWithCode(err).Msg("failed to open session archive")

		return 1
	}
	defer func() {
		if err := arch.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close session archive")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	ring := sample.NewRing(runCfg.Window)
	bus := status.NewBus(busSize)
	engine := acquisition.NewEngine(nil, ring, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(bus)
	}()

	res, runErr := engine.Run(ctx, runCfg)

	bus.Close()
	wg.Wait()

	if runErr != nil {
		logger.ErrorWithCode(runErr).Msg("session ended with error")
	}

	exportFailed := false
	if len(res.Samples) > 0 {
		exportFailed = !exportSession(res)

		// The signal context is likely already cancelled here; archiving
		// still has to finish.
		if err := arch.Record(context.Background(), archiveSession(res)); err != nil {
			logger.Error().Err(err).Msg("failed to archive session")
		}
	}

	if runErr != nil || res.Cause == status.CauseError || exportFailed {
		return 1
	}

	return 0
}

func deletePreset(store *presets.Store, name string) int {
	if err := store.Delete(name); err != nil {
		logger.Error().Err(err).Msg("failed to delete preset")

		return 1
	}

	if err := store.Save(); err != nil {
		logger.Error().Err(err).Msg("failed to save presets")

		return 1
	}

	logger.Info().Str("preset", name).Msg("Preset deleted")

	return 0
}

func savePreset(store *presets.Store, name string, p presets.Preset) int {
	if err := store.Set(name, p); err != nil {
		logger.Error().Err(err).Msg("failed to store preset")

		return 1
	}

	if err := store.Save(); err != nil {
		logger.Error().Err(err).Msg("failed to save presets")

		return 1
	}

	logger.Info().Str("preset", name).Msg("Preset saved")

	return 0
}

func listSessions(n int) int {
	if !cfg.Archive {
		logger.Error().Msg("session archive is disabled")

		return 1
	}

	arch, err := archive.NewService(cfg.ArchiveConfig())
	if err != nil {
		logger.Error().Err(err).Msg("failed to open session archive")

		return 1
	}
	defer arch.Close()

	entries, err := arch.Recent(context.Background(), n)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list sessions")

		return 1
	}

	for _, e := range entries {
		fmt.Printf("%s  %s  %-9s V=%g A=%g  %6d samples  %s\n",
			e.ID,
			e.Started.Format("2006-01-02 15:04:05"),
			e.StoppedBy,
			e.Voltage,
			e.Current,
			e.SampleCount,
			e.Notes,
		)
	}

	return 0
}

// exportSession writes the collected samples and reports whether every
// requested format succeeded.
func exportSession(res acquisition.Result) bool {
	paths, err := export.Export(export.Request{
		Dir:       cfg.SaveDir,
		Formats:   cfg.Formats(),
		Samples:   res.Samples,
		Config:    res.Config,
		SessionID: res.ID.String(),
		Identity:  res.Identity,
		Started:   res.Started,
		StoppedBy: res.Cause,
	})

	for _, p := range paths {
		logger.Info().Str("path", p).Msg("Session exported")
	}

	if err != nil {
		logger.ErrorWithCode(err).Msg("export failed")

		return false
	}

	return true
}

func archiveSession(res acquisition.Result) archive.Session {
	return archive.Session{
		ID:        res.ID.String(),
		Config:    res.Config,
		Identity:  res.Identity,
		StoppedBy: string(res.Cause),
		Started:   res.Started,
		Ended:     res.Ended,
		Samples:   res.Samples,
	}
}

// consume renders bus events. Data points stay at debug level so a normal
// run prints only the milestones; a threshold cutoff rings the bell.
func consume(bus *status.Bus) {
	for e := range bus.Events() {
		switch e.Kind {
		case status.Data:
			logger.Debug().
				Float64("voltage", e.Sample.Voltage).
				Float64("current", e.Sample.Current).
				Float64("power", e.Sample.Power()).
				Dur("elapsed", e.Sample.Elapsed).
				Msg("")
		case status.Error:
			logger.Error().Msg(e.Message)
		case status.Warning:
			if e.Cause == status.CauseThreshold {
				fmt.Print("\a")
			}

			logger.Warn().Msg(e.Message)
		default:
			logger.Info().Msg(e.Message)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
