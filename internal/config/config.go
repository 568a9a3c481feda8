// Package config resolves the run configuration from defaults, a TOML
// file, PSUCTL_* environment variables, and command-line flags, in rising
// precedence. It only checks that enumeration fields parse; range rules
// live with session.Config.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/voltaic/psuctl/internal/archive"
	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/export"
	"codeberg.org/voltaic/psuctl/internal/session"
)

// ErrHelp is returned by Load when the user asked for --help.
var ErrHelp = pflag.ErrHelp

type Config struct {
	Voltage       float64 `mapstructure:"voltage"`
	Current       float64 `mapstructure:"current"`
	Threshold     float64 `mapstructure:"threshold"`
	StopCondition string  `mapstructure:"stop_condition"`
	Mode          string  `mapstructure:"mode"`
	IntervalMS    int     `mapstructure:"interval_ms"`
	WindowPoints  int     `mapstructure:"window_points"`
	Simulate      bool    `mapstructure:"simulate"`
	Address       string  `mapstructure:"address"`

	Notes       string  `mapstructure:"notes"`
	Anode       string  `mapstructure:"anode"`
	Cathode     string  `mapstructure:"cathode"`
	Electrolyte string  `mapstructure:"electrolyte"`
	Molarity    float64 `mapstructure:"molarity"`

	SaveDir string `mapstructure:"save_dir"`
	Format  string `mapstructure:"format"`

	Archive   bool   `mapstructure:"archive"`
	ArchiveDB string `mapstructure:"archive_db"`

	PresetsFile  string `mapstructure:"presets_file"`
	Preset       string `mapstructure:"preset"`
	SavePreset   string `mapstructure:"save_preset"`
	DeletePreset string `mapstructure:"delete_preset"`
	ListPresets  bool   `mapstructure:"list_presets"`
	ListSessions int    `mapstructure:"list_sessions"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	return load(os.Args[1:])
}

// load exists so tests can inject arguments.
func load(args []string) (*Config, error) {
	errFactory := errors.New()

	def := session.Default()

	v := viper.New()

	// Defaults keep a bare invocation usable end to end (with --simulate).
	v.SetDefault("voltage", def.Voltage)
	v.SetDefault("current", def.Current)
	v.SetDefault("threshold", def.Threshold)
	v.SetDefault("stop_condition", string(def.Direction))
	v.SetDefault("mode", string(def.Mode))
	v.SetDefault("interval_ms", int(def.Interval.Milliseconds()))
	v.SetDefault("window_points", def.Window)
	v.SetDefault("save_dir", ".")
	v.SetDefault("format", string(export.CSV))
	v.SetDefault("archive_db", defaultArchiveDB())
	v.SetDefault("presets_file", defaultPresetsFile())

	fs := pflag.NewFlagSet("psuctl", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	// Flag names are the snake_case viper keys, so BindPFlags lines up with
	// the config file; normalization lets kebab-case spellings work too.
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
	})

	fs.Float64("voltage", def.Voltage, "Target voltage in volts")
	fs.Float64("current", def.Current, "Target current in amps")
	fs.Float64("threshold", def.Threshold, "Cutoff threshold for the monitored quantity")
	fs.String("stop_condition", string(def.Direction), "Cutoff direction: below or above")
	fs.String("mode", string(def.Mode), "Control mode: constant_voltage or constant_current")
	fs.Int("interval_ms", int(def.Interval.Milliseconds()), "Sampling interval in milliseconds")
	fs.Int("window_points", def.Window, "Live window depth in samples")
	fs.Bool("simulate", false, "Use the built-in simulator instead of hardware")
	fs.String("address", "", "Instrument address (host:port)")
	fs.String("notes", "", "Free-form session notes")
	fs.String("anode", "", "Cell anode material")
	fs.String("cathode", "", "Cell cathode material")
	fs.String("electrolyte", "", "Cell electrolyte")
	fs.Float64("molarity", 0, "Electrolyte molarity")
	fs.String("save_dir", ".", "Directory for exported session files")
	fs.String("format", string(export.CSV), "Export format: csv, xlsx, json, or all")
	fs.Bool("archive", false, "Record finished sessions in the local archive")
	fs.String("archive_db", defaultArchiveDB(), "Archive database path")
	fs.String("presets_file", defaultPresetsFile(), "Preset file path")
	fs.String("preset", "", "Apply a stored preset before the run")
	fs.String("save_preset", "", "Store the resolved electrical settings under this name and exit")
	fs.String("delete_preset", "", "Delete a stored preset and exit")
	fs.Bool("list_presets", false, "List stored preset names and exit")
	fs.Int("list_sessions", 0, "List the N most recent archived sessions and exit")
	fs.Bool("debug", false, "Enable debugging output")
	fs.Bool("verbose", false, "Enable verbose output")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}

		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix("PSUCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("psuctl")
	v.SetConfigType("toml")

	if path := os.Getenv("PSUCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("/etc/psuctl")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "psuctl"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks the enumeration fields; everything numeric is left to
// session.Config.Validate so file, env, and flag values fail identically.
func (c *Config) validate() error {
	if _, err := session.ParseMode(c.Mode); err != nil {
		return err
	}

	if _, err := session.ParseDirection(c.StopCondition); err != nil {
		return err
	}

	if _, err := export.ParseFormat(c.Format); err != nil {
		return err
	}

	return nil
}

// Session maps the resolved fields onto a run configuration.
func (c *Config) Session() session.Config {
	return session.Config{
		Voltage:   c.Voltage,
		Current:   c.Current,
		Mode:      session.Mode(c.Mode),
		Threshold: c.Threshold,
		Direction: session.Direction(c.StopCondition),
		Interval:  time.Duration(c.IntervalMS) * time.Millisecond,
		Window:    c.WindowPoints,
		Address:   c.Address,
		Simulate:  c.Simulate,
		Cell: session.Cell{
			Anode:       c.Anode,
			Cathode:     c.Cathode,
			Electrolyte: c.Electrolyte,
			Molarity:    c.Molarity,
		},
		Notes: c.Notes,
	}
}

// ArchiveConfig maps the archive fields.
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Enabled: c.Archive,
		DBPath:  c.ArchiveDB,
	}
}

// Formats resolves the configured export format list.
func (c *Config) Formats() []export.Format {
	f, err := export.ParseFormat(c.Format)
	if err != nil {
		return nil
	}

	return []export.Format{f}
}

func defaultArchiveDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "psuctl_sessions.db"
	}

	return filepath.Join(dir, "psuctl", "sessions.db")
}

func defaultPresetsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "psuctl_presets.yaml"
	}

	return filepath.Join(dir, "psuctl", "presets.yaml")
}
