// Package export writes a finished session to disk.
//
// Formats fail independently: a bad xlsx write never blocks the csv next to
// it. Every produced file is self-describing, embedding the run settings and
// cell metadata alongside the samples.
package export

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/session"
	"codeberg.org/voltaic/psuctl/internal/status"
)

// Format names one on-disk representation.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	JSON Format = "json"
	All  Format = "all"
)

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case CSV, XLSX, JSON, All:
		return f, nil
	}

	errFactory := errors.New()

	return "", errFactory.WithMessage(errors.ErrConfig, "unknown export format").WithData(s)
}

// Request carries one finished session to the writers.
type Request struct {
	Dir       string
	Formats   []Format
	Samples   []sample.Sample
	Config    session.Config
	SessionID string
	Identity  string
	Started   time.Time
	StoppedBy status.Cause
}

var dataHeader = []string{"Elapsed (s)", "Voltage (V)", "Current (A)", "Power (W)", "Resistance (Ohm)"}

// Export writes the session once per requested format and returns the paths
// that were produced. Formats are attempted independently; the returned
// error joins the per-format failures and is nil only when every format
// succeeded.
func Export(req Request) ([]string, error) {
	errFactory := errors.New()

	if len(req.Samples) == 0 {
		return nil, errFactory.WithMessage(errors.ErrExport, "no samples to export")
	}

	base := BaseFilename(req.Config, req.Started)

	var (
		paths []string
		errs  []error
	)

	for _, f := range expand(req.Formats) {
		path := filepath.Join(req.Dir, base+"."+string(f))

		var err error
		switch f {
		case CSV:
			err = writeCSV(path, req)
		case XLSX:
			err = writeXLSX(path, req)
		case JSON:
			err = writeJSON(path, req)
		default:
			err = errFactory.WithMessage(errors.ErrExport, "unknown export format").WithData(string(f))
		}

		if err != nil {
			errs = append(errs, errFactory.Wrap(errors.ErrExport, err).WithData(path))

			continue
		}

		paths = append(paths, path)
	}

	return paths, errors.Join(errs...)
}

// expand resolves All and deduplicates while preserving order.
func expand(formats []Format) []Format {
	out := make([]Format, 0, 3)
	seen := make(map[Format]bool, 3)

	add := func(f Format) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	for _, f := range formats {
		if f == All {
			add(CSV)
			add(XLSX)
			add(JSON)

			continue
		}

		add(f)
	}

	return out
}

// BaseFilename is deterministic for a session: the configured set points and
// the start time, with dots in the numbers swapped for underscores. For
// example power_log_V4_A0_5_20240131_154500.
func BaseFilename(cfg session.Config, started time.Time) string {
	return "power_log" +
		"_V" + filenameNum(cfg.Voltage) +
		"_A" + filenameNum(cfg.Current) +
		"_" + started.Format("20060102_150405")
}

func filenameNum(v float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", "_")
}

// fnum renders a float with the shortest representation that survives a
// round trip through ParseFloat.
func fnum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// metadataPairs renders the settings block shared by the csv comment header
// and the xlsx Settings sheet. Optional text fields are skipped when empty.
func metadataPairs(req Request) [][2]string {
	cfg := req.Config

	pairs := make([][2]string, 0, 16)
	add := func(k, v string) {
		pairs = append(pairs, [2]string{k, v})
	}
	addText := func(k, v string) {
		if v != "" {
			add(k, v)
		}
	}

	add("session_id", req.SessionID)
	addText("instrument", req.Identity)
	add("started", req.Started.Format(time.RFC3339))
	add("stopped_by", string(req.StoppedBy))
	add("voltage", fnum(cfg.Voltage))
	add("current", fnum(cfg.Current))
	add("mode", string(cfg.Mode))
	add("threshold", fnum(cfg.Threshold))
	add("stop_condition", string(cfg.Direction))
	add("interval", cfg.Interval.String())
	addText("anode", cfg.Cell.Anode)
	addText("cathode", cfg.Cell.Cathode)
	addText("electrolyte", cfg.Cell.Electrolyte)

	if cfg.Cell.Molarity != 0 {
		add("molarity", fnum(cfg.Cell.Molarity))
	}

	addText("notes", cfg.Notes)

	return pairs
}
