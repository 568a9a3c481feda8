package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"

	"codeberg.org/voltaic/psuctl/internal/sample"
)

func writeCSV(path string, req Request) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	for _, kv := range metadataPairs(req) {
		if _, err := fmt.Fprintf(w, "# %s: %s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)

	if err := cw.Write(dataHeader); err != nil {
		return err
	}

	for _, s := range req.Samples {
		if err := cw.Write(dataRow(s)); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return err
	}

	return f.Close()
}

// dataRow renders one sample; undefined resistance becomes an empty cell.
func dataRow(s sample.Sample) []string {
	row := []string{
		fnum(s.Elapsed.Seconds()),
		fnum(s.Voltage),
		fnum(s.Current),
		fnum(s.Power()),
		"",
	}

	if r, ok := s.Resistance(); ok {
		row[4] = fnum(r)
	}

	return row
}
