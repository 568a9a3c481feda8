package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/export"
	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/session"
	"codeberg.org/voltaic/psuctl/internal/status"
)

var testStarted = time.Date(2024, 1, 31, 15, 45, 0, 0, time.UTC)

func testRequest(t *testing.T, formats ...export.Format) export.Request {
	t.Helper()

	cfg := session.Default()
	cfg.Simulate = true
	cfg.Cell = session.Cell{Anode: "Zn", Cathode: "MnO2", Electrolyte: "KOH", Molarity: 6}
	cfg.Notes = "first formation cycle"

	samples := []sample.Sample{
		{Timestamp: testStarted.Add(200 * time.Millisecond), Elapsed: 200 * time.Millisecond, Voltage: 4.0, Current: 0.5},
		{Timestamp: testStarted.Add(400 * time.Millisecond), Elapsed: 400 * time.Millisecond, Voltage: 3.99, Current: 0.45},
		{Timestamp: testStarted.Add(600 * time.Millisecond), Elapsed: 600 * time.Millisecond, Voltage: 3.98, Current: 0},
	}

	return export.Request{
		Dir:       t.TempDir(),
		Formats:   formats,
		Samples:   samples,
		Config:    cfg,
		SessionID: "d1f3a0fc-4c1e-4d8a-9a31-3a7f5b1c9e02",
		Identity:  "VOLTAIC,PSU-3005,SN01234,1.0.4",
		Started:   testStarted,
		StoppedBy: status.CauseUser,
	}
}

// csvMetadata pulls the commented key/value header back out of a csv export.
func csvMetadata(t *testing.T, data []byte) map[string]string {
	t.Helper()

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "# ") {
			continue
		}

		kv := strings.SplitN(strings.TrimPrefix(line, "# "), ": ", 2)
		require.Lenf(t, kv, 2, "Malformed metadata line %q", line)
		meta[kv[0]] = kv[1]
	}

	return meta
}

func parseFloat(t *testing.T, s string) float64 {
	t.Helper()

	v, err := strconv.ParseFloat(s, 64)
	require.NoErrorf(t, err, "Expected %q to parse as a float", s)

	return v
}

func TestBaseFilename(t *testing.T) {
	cfg := session.Default()
	assert.Equal(t, "power_log_V4_A0_5_20240131_154500", export.BaseFilename(cfg, testStarted),
		"Expected dots in the set points to become underscores")

	cfg.Voltage = 3.3
	cfg.Current = 1.25
	assert.Equal(t, "power_log_V3_3_A1_25_20240131_154500", export.BaseFilename(cfg, testStarted))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]export.Format{
		"csv":  export.CSV,
		"CSV":  export.CSV,
		"xlsx": export.XLSX,
		"json": export.JSON,
		"all":  export.All,
		"All":  export.All,
	} {
		got, err := export.ParseFormat(in)
		require.NoErrorf(t, err, "Expected %q to parse", in)
		assert.Equal(t, want, got)
	}

	_, err := export.ParseFormat("pdf")
	require.Error(t, err, "Expected an unknown format to be rejected")
	assert.True(t, errors.HasCode(err, errors.ErrConfig))
}

func TestExportRefusesEmptySession(t *testing.T) {
	req := testRequest(t, export.CSV)
	req.Samples = nil

	paths, err := export.Export(req)
	require.Error(t, err, "Expected an empty session to be refused")
	assert.True(t, errors.HasCode(err, errors.ErrExport))
	assert.Contains(t, err.Error(), "no samples")
	assert.Empty(t, paths)
}

func TestExportCSV(t *testing.T) {
	req := testRequest(t, export.CSV)

	paths, err := export.Export(req)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(req.Dir, export.BaseFilename(req.Config, req.Started)+".csv"), paths[0])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	meta := csvMetadata(t, data)
	assert.Equal(t, req.SessionID, meta["session_id"])
	assert.Equal(t, req.Identity, meta["instrument"])
	assert.Equal(t, "2024-01-31T15:45:00Z", meta["started"])
	assert.Equal(t, "user", meta["stopped_by"])
	assert.Equal(t, "4", meta["voltage"])
	assert.Equal(t, "0.5", meta["current"])
	assert.Equal(t, "constant_voltage", meta["mode"])
	assert.Equal(t, "0.062", meta["threshold"])
	assert.Equal(t, "below", meta["stop_condition"])
	assert.Equal(t, "200ms", meta["interval"])
	assert.Equal(t, "Zn", meta["anode"])
	assert.Equal(t, "MnO2", meta["cathode"])
	assert.Equal(t, "KOH", meta["electrolyte"])
	assert.Equal(t, "6", meta["molarity"])
	assert.Equal(t, "first formation cycle", meta["notes"])

	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "Expected a header row plus one row per sample")

	assert.Equal(t, []string{"Elapsed (s)", "Voltage (V)", "Current (A)", "Power (W)", "Resistance (Ohm)"}, rows[0])

	first := rows[1]
	assert.Equal(t, 0.2, parseFloat(t, first[0]), "Expected elapsed in seconds")
	assert.Equal(t, 4.0, parseFloat(t, first[1]))
	assert.Equal(t, 0.5, parseFloat(t, first[2]))
	assert.Equal(t, 2.0, parseFloat(t, first[3]), "Expected power to be derived")
	assert.Equal(t, 8.0, parseFloat(t, first[4]), "Expected resistance to be derived")

	zero := rows[3]
	assert.Equal(t, "0", zero[2], "Expected the zero-current reading to survive")
	assert.Empty(t, zero[4], "Expected undefined resistance to be an empty cell")
}

func TestExportCSVRoundTripsAwkwardFloats(t *testing.T) {
	req := testRequest(t, export.CSV)
	req.Samples = []sample.Sample{{
		Timestamp: testStarted,
		Elapsed:   333 * time.Millisecond,
		Voltage:   3.141592653589793,
		Current:   0.1,
	}}

	paths, err := export.Export(req)
	require.NoError(t, err)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, 0.333, parseFloat(t, row[0]), "Expected elapsed to round trip exactly")
	assert.Equal(t, 3.141592653589793, parseFloat(t, row[1]), "Expected voltage to round trip exactly")
	assert.Equal(t, 0.1, parseFloat(t, row[2]), "Expected current to round trip exactly")
	assert.Equal(t, 3.141592653589793*0.1, parseFloat(t, row[3]))
	assert.Equal(t, 3.141592653589793/0.1, parseFloat(t, row[4]))
}

func TestExportXLSX(t *testing.T) {
	req := testRequest(t, export.XLSX)

	paths, err := export.Export(req)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err, "Expected a readable workbook")
	defer f.Close()

	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.Len(t, rows, 4, "Expected a header row plus one row per sample")
	assert.Equal(t, []string{"Elapsed (s)", "Voltage (V)", "Current (A)", "Power (W)", "Resistance (Ohm)"}, rows[0])

	first := rows[1]
	require.GreaterOrEqual(t, len(first), 5)
	assert.Equal(t, 0.2, parseFloat(t, first[0]))
	assert.Equal(t, 4.0, parseFloat(t, first[1]))
	assert.Equal(t, 0.5, parseFloat(t, first[2]))
	assert.Equal(t, 2.0, parseFloat(t, first[3]))
	assert.Equal(t, 8.0, parseFloat(t, first[4]))

	zero := rows[3]
	if len(zero) >= 5 {
		assert.Empty(t, zero[4], "Expected undefined resistance to leave the cell empty")
	}

	settings, err := f.GetRows("Settings")
	require.NoError(t, err)
	require.NotEmpty(t, settings)

	kv := make(map[string]string, len(settings))
	for _, row := range settings {
		require.GreaterOrEqual(t, len(row), 2, "Expected key/value rows on the Settings sheet")
		kv[row[0]] = row[1]
	}
	assert.Equal(t, req.SessionID, kv["session_id"])
	assert.Equal(t, "4", kv["voltage"])
	assert.Equal(t, "user", kv["stopped_by"])
	assert.Equal(t, "below", kv["stop_condition"])

	note, err := f.GetCellValue("Notes", "A1")
	require.NoError(t, err)
	assert.Equal(t, "first formation cycle", note)
}

func TestExportJSON(t *testing.T) {
	req := testRequest(t, export.JSON)

	paths, err := export.Export(req)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var doc struct {
		Metadata struct {
			SessionID     string    `json:"session_id"`
			Instrument    string    `json:"instrument"`
			Started       time.Time `json:"started"`
			StoppedBy     string    `json:"stopped_by"`
			Voltage       float64   `json:"voltage"`
			Current       float64   `json:"current"`
			Mode          string    `json:"mode"`
			Threshold     float64   `json:"threshold"`
			StopCondition string    `json:"stop_condition"`
			IntervalMS    int64     `json:"interval_ms"`
			Anode         string    `json:"anode"`
			Molarity      float64   `json:"molarity"`
			Notes         string    `json:"notes"`
		} `json:"metadata"`
		Samples []struct {
			Timestamp  time.Time `json:"timestamp"`
			Elapsed    float64   `json:"elapsed_s"`
			Voltage    float64   `json:"voltage"`
			Current    float64   `json:"current"`
			Power      float64   `json:"power"`
			Resistance *float64  `json:"resistance"`
		} `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	m := doc.Metadata
	assert.Equal(t, req.SessionID, m.SessionID)
	assert.Equal(t, req.Identity, m.Instrument)
	assert.True(t, m.Started.Equal(testStarted), "Expected the start time to round trip")
	assert.Equal(t, "user", m.StoppedBy)
	assert.Equal(t, 4.0, m.Voltage)
	assert.Equal(t, 0.5, m.Current)
	assert.Equal(t, "constant_voltage", m.Mode)
	assert.Equal(t, 0.062, m.Threshold, "Expected the threshold to round trip exactly")
	assert.Equal(t, "below", m.StopCondition)
	assert.Equal(t, int64(200), m.IntervalMS)
	assert.Equal(t, "Zn", m.Anode)
	assert.Equal(t, 6.0, m.Molarity)
	assert.Equal(t, "first formation cycle", m.Notes)

	require.Len(t, doc.Samples, 3)

	first := doc.Samples[0]
	assert.True(t, first.Timestamp.Equal(testStarted.Add(200*time.Millisecond)),
		"Expected per-sample timestamps in the json export")
	assert.Equal(t, 0.2, first.Elapsed)
	assert.Equal(t, 4.0, first.Voltage)
	assert.Equal(t, 0.5, first.Current)
	assert.Equal(t, 2.0, first.Power)
	require.NotNil(t, first.Resistance)
	assert.Equal(t, 8.0, *first.Resistance)

	assert.Nil(t, doc.Samples[2].Resistance, "Expected undefined resistance to be omitted")
}

func TestExportAllWritesEveryFormat(t *testing.T) {
	req := testRequest(t, export.All)

	paths, err := export.Export(req)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	base := filepath.Join(req.Dir, export.BaseFilename(req.Config, req.Started))
	assert.Equal(t, []string{base + ".csv", base + ".xlsx", base + ".json"}, paths)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoErrorf(t, err, "Expected %s to exist", p)
		assert.Positive(t, info.Size())
	}
}

func TestExportDeduplicatesFormats(t *testing.T) {
	req := testRequest(t, export.CSV, export.All, export.CSV)

	paths, err := export.Export(req)
	require.NoError(t, err)
	assert.Len(t, paths, 3, "Expected each format to be written once")
}

func TestExportFormatsFailIndependently(t *testing.T) {
	req := testRequest(t, export.All)

	// A directory squatting on the csv path makes that one format fail.
	csvPath := filepath.Join(req.Dir, export.BaseFilename(req.Config, req.Started)+".csv")
	require.NoError(t, os.MkdirAll(csvPath, 0o755))

	paths, err := export.Export(req)
	require.Error(t, err, "Expected the csv failure to be reported")
	assert.True(t, errors.HasCode(err, errors.ErrExport))
	assert.Contains(t, err.Error(), csvPath, "Expected the failing path in the error")

	require.Len(t, paths, 2, "Expected the other formats to be written anyway")
	for _, p := range paths {
		_, serr := os.Stat(p)
		assert.NoErrorf(t, serr, "Expected %s to exist", p)
	}
}
