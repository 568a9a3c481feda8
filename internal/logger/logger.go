package logger

import (
	"os"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger. Output goes to stderr so preset and
// session listings on stdout stay pipeable. Session milestones log at
// info; verbose adds the live readings, debug adds caller locations.
func Init(debug, verbose, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}

	if isService {
		// journald and cron stamp captured lines themselves.
		output.NoColor = true
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(InfoLevel) // Default log level

	switch {
	case debug:
		log = log.With().Caller().Logger()
		SetLogLevel(DebugLevel)
	case verbose:
		SetLogLevel(DebugLevel)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService reports whether log output is being captured rather than
// read on a terminal, as under systemd or cron.
func IsService() bool {
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}

	fi, err := os.Stderr.Stat()
	if err != nil {
		return true
	}

	return fi.Mode()&os.ModeCharDevice == 0
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error together with its classification code when
// it carries one
func ErrorWithCode(err error) *LogEvent {
	e := log.Error().Err(err)
	if code := errors.CodeOf(err); code != "" {
		e = e.Str("code", string(code))
	}

	return &LogEvent{e}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with its classification code and
// exits the program
func FatalWithCode(err error) *LogEvent {
	e := log.Fatal().Err(err)
	if code := errors.CodeOf(err); code != "" {
		e = e.Str("code", string(code))
	}

	return &LogEvent{e}
}
