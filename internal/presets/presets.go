// Package presets stores named electrical parameter sets in a YAML file, so
// a recurring cell chemistry is one flag instead of six.
package presets

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/session"
)

const (
	ErrLoadFailed  = errors.ErrorCode("presets_load_failed")
	ErrSaveFailed  = errors.ErrorCode("presets_save_failed")
	ErrNotFound    = errors.ErrorCode("presets_not_found")
	ErrInvalidName = errors.ErrorCode("presets_invalid_name")
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Preset holds the electrical settings worth naming. Descriptive metadata
// (cell, notes) stays in the config file; it changes per run, not per
// chemistry.
type Preset struct {
	Voltage    float64           `yaml:"voltage"`
	Current    float64           `yaml:"current"`
	Mode       session.Mode      `yaml:"mode"`
	Threshold  float64           `yaml:"threshold"`
	Direction  session.Direction `yaml:"stop_condition"`
	IntervalMS int64             `yaml:"interval_ms"`
}

// FromConfig extracts the preset-worthy fields of a run configuration.
func FromConfig(cfg session.Config) Preset {
	return Preset{
		Voltage:    cfg.Voltage,
		Current:    cfg.Current,
		Mode:       cfg.Mode,
		Threshold:  cfg.Threshold,
		Direction:  cfg.Direction,
		IntervalMS: cfg.Interval.Milliseconds(),
	}
}

// Apply overlays the preset onto cfg. The result still goes through
// session.Config.Validate like any other configuration.
func (p Preset) Apply(cfg session.Config) session.Config {
	cfg.Voltage = p.Voltage
	cfg.Current = p.Current
	cfg.Mode = p.Mode
	cfg.Threshold = p.Threshold
	cfg.Direction = p.Direction
	cfg.Interval = time.Duration(p.IntervalMS) * time.Millisecond

	return cfg
}

// Store reads and writes one preset file. The file is the unit of
// persistence: every mutation rewrites it whole.
type Store struct {
	path    string
	presets map[string]Preset
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		presets: make(map[string]Preset),
	}
}

// Load reads the file. A missing file is an empty store, not an error.
func (s *Store) Load() error {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errFactory.Wrap(ErrLoadFailed, err).WithData(s.path)
	}

	presets := make(map[string]Preset)
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return errFactory.Wrap(ErrLoadFailed, err).WithData(s.path)
	}

	s.presets = presets

	return nil
}

// Save writes the whole store back to its file, creating the directory on
// first use.
func (s *Store) Save() error {
	errFactory := errors.New()

	data, err := yaml.Marshal(s.presets)
	if err != nil {
		return errFactory.Wrap(ErrSaveFailed, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return errFactory.Wrap(ErrSaveFailed, err).WithData(s.path)
	}

	if err := os.WriteFile(s.path, data, filePerm); err != nil {
		return errFactory.Wrap(ErrSaveFailed, err).WithData(s.path)
	}

	return nil
}

func (s *Store) Get(name string) (Preset, bool) {
	p, ok := s.presets[name]

	return p, ok
}

func (s *Store) Set(name string, p Preset) error {
	if name == "" {
		errFactory := errors.New()

		return errFactory.New(ErrInvalidName)
	}

	s.presets[name] = p

	return nil
}

func (s *Store) Delete(name string) error {
	if _, ok := s.presets[name]; !ok {
		errFactory := errors.New()

		return errFactory.WithMessage(ErrNotFound, "no preset named "+name)
	}

	delete(s.presets, name)

	return nil
}

// Names returns the stored preset names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
