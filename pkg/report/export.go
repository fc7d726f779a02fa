package report

import (
	"encoding/json"
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return pkgerrors.Wrap(enc.Encode(v), "failed to encode JSON")
}

const (
	sheetRuns    = "Runs"
	sheetResults = "Q0"
	sheetCurves  = "Calibration"
)

// XLSX writes the runs, Q0 results and calibration curves of sessions into
// a workbook with one sheet each.
func XLSX(w io.Writer, sessions []*types.SessionResponse) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRuns); err != nil {
		return pkgerrors.Wrap(err, "failed to rename sheet")
	}
	for _, name := range []string{sheetResults, sheetCurves} {
		if _, err := f.NewSheet(name); err != nil {
			return pkgerrors.Wrapf(err, "failed to create sheet %s", name)
		}
	}

	runs := [][]interface{}{{
		"Session", "Run", "Kind", "Raw start", "Start", "End", "Heat setpoint (W)",
		"Electric heat load (W)", "dLL/dt (%/s)", "Intercept (%)", "R²", "Cutoff (s)", "Duration (s)",
	}}
	results := [][]interface{}{{
		"Session", "Run", "Total heat load (W)", "RF heat load (W)", "Q0", "Average pressure (torr)",
		"RMS gradient (MV/m)", "Gradient fallbacks", "Invalid pressure samples", "Valid", "Reason",
	}}
	curves := [][]interface{}{{
		"Session", "Slope (%/s/W)", "Intercept (%/s)", "Origin adjustment (W)", "R²", "Heater runs",
	}}

	for _, s := range sessions {
		for _, r := range s.Runs {
			runs = append(runs, []interface{}{
				s.Name, r.Number(), string(r.Kind), r.RawStart, r.Start, r.End, r.HeatSetpoint,
				r.ElecHeatLoad, r.Slope, r.Intercept, r.RSquared, r.CutoffSeconds, r.DurationSeconds,
			})
		}
		for _, res := range s.Results {
			results = append(results, []interface{}{
				s.Name, res.RunIndex + 1, res.TotalHeatLoad, res.RFHeatLoad, res.Q0, res.AvgPressure,
				res.RMSGradient, res.FallbackGradientSamples, res.InvalidPressureSamples, res.Valid, res.InvalidReason,
			})
		}
		if s.Curve != nil && s.Kind == q0.KindCalibration {
			c := s.Curve
			curves = append(curves, []interface{}{
				s.Name, c.Slope, c.Intercept, c.OriginAdjustment, c.RSquared, len(c.Points),
			})
		}
	}

	for sheet, rows := range map[string][][]interface{}{
		sheetRuns:    runs,
		sheetResults: results,
		sheetCurves:  curves,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	return pkgerrors.Wrap(f.Write(w), "failed to write workbook")
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open sheet %s", sheet)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := sw.SetRow(cell, row); err != nil {
			return pkgerrors.Wrapf(err, "failed to write row %d of sheet %s", i+1, sheet)
		}
	}
	return pkgerrors.Wrapf(sw.Flush(), "failed to flush sheet %s", sheet)
}
