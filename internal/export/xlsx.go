package export

import (
	"github.com/xuri/excelize/v2"
)

const (
	sheetData     = "Data"
	sheetSettings = "Settings"
	sheetNotes    = "Notes"
)

func writeXLSX(path string, req Request) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetData); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetSettings); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetNotes); err != nil {
		return err
	}

	w := xlsxWriter{f: f}

	for col, h := range dataHeader {
		w.set(sheetData, col+1, 1, h)
	}

	for i, s := range req.Samples {
		row := i + 2

		w.setFloat(sheetData, 1, row, s.Elapsed.Seconds())
		w.setFloat(sheetData, 2, row, s.Voltage)
		w.setFloat(sheetData, 3, row, s.Current)
		w.setFloat(sheetData, 4, row, s.Power())

		if r, ok := s.Resistance(); ok {
			w.setFloat(sheetData, 5, row, r)
		}
	}

	for i, kv := range metadataPairs(req) {
		w.set(sheetSettings, 1, i+1, kv[0])
		w.set(sheetSettings, 2, i+1, kv[1])
	}

	w.set(sheetNotes, 1, 1, req.Config.Notes)

	if w.err != nil {
		return w.err
	}

	return f.SaveAs(path)
}

// xlsxWriter holds the first cell-write failure so the writer body is not
// wall-to-wall error checks.
type xlsxWriter struct {
	f   *excelize.File
	err error
}

func (w *xlsxWriter) set(sheet string, col, row int, v any) {
	if w.err != nil {
		return
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err

		return
	}

	w.err = w.f.SetCellValue(sheet, cell, v)
}

func (w *xlsxWriter) setFloat(sheet string, col, row int, v float64) {
	if w.err != nil {
		return
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err

		return
	}

	w.err = w.f.SetCellFloat(sheet, cell, v, -1, 64)
}
