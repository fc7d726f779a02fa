package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
)

func calibrationResponse() *types.SessionResponse {
	return &types.SessionResponse{
		ID:   "cal",
		Name: "CM12 calibration",
		Kind: q0.KindCalibration,
		Runs: []q0.Run{
			{Index: 0, Kind: q0.RunHeater, ElecHeatLoad: 0, Slope: -0.001, RSquared: 0.99},
			{Index: 1, Kind: q0.RunHeater, ElecHeatLoad: 2, Slope: -0.003, RSquared: 0.98},
		},
		Curve: &q0.Curve{Slope: -0.001, Intercept: -0.001, OriginAdjustment: -1, Points: make([]q0.CurvePoint, 2)},
	}
}

func measurementResponse() *types.SessionResponse {
	return &types.SessionResponse{
		ID:   "meas",
		Name: "CM12 cavity 3",
		Kind: q0.KindMeasurement,
		Runs: []q0.Run{
			{Index: 0, Kind: q0.RunRF, Slope: -0.006},
			{Index: 1, Kind: q0.RunRF, Slope: 0.001},
		},
		Results: []q0.RFResult{
			{RunIndex: 0, RFHeatLoad: 6, Q0: 2.7e10, Valid: true, FallbackGradientSamples: 4},
			{RunIndex: 1, RFHeatLoad: -1, Q0: -1, Valid: false, InvalidReason: "non-positive RF heat load -1.000 W"},
		},
		Curve: &q0.Curve{Slope: -0.001},
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		resp     *types.SessionResponse
		verbose  bool
		contains []string
	}{
		{
			name:     "calibration",
			resp:     calibrationResponse(),
			contains: []string{"CM12 calibration", "Run 2 (Heater)", "2.00 W", "Calibration curve", "+ 1.00 W"},
		},
		{
			name:     "calibration verbose",
			resp:     calibrationResponse(),
			verbose:  true,
			contains: []string{"R² 0.9900", "2 heater runs"},
		},
		{
			name:     "measurement",
			resp:     measurementResponse(),
			contains: []string{"Run 1 (RF)", "2.700e+10", "4 samples used the reference gradient", "non-positive RF heat load"},
		},
		{
			name:     "no runs",
			resp:     &types.SessionResponse{Name: "empty", NoRuns: true},
			contains: []string{"No steady-state runs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Text(&buf, tt.resp, tt.verbose)
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Fatalf("expected output to contain %q, got:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, measurementResponse()); err != nil {
		t.Fatalf("JSON returned error: %v", err)
	}
	var decoded types.SessionResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Results) != 2 || decoded.Results[1].Valid {
		t.Fatalf("unexpected decoded results %+v", decoded.Results)
	}
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := XLSX(&buf, []*types.SessionResponse{calibrationResponse(), measurementResponse()}); err != nil {
		t.Fatalf("XLSX returned error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	tests := []struct {
		sheet string
		rows  int
	}{
		{sheetRuns, 5},
		{sheetResults, 3},
		{sheetCurves, 2},
	}
	for _, tt := range tests {
		rows, err := f.GetRows(tt.sheet)
		if err != nil {
			t.Fatalf("failed to read sheet %s: %v", tt.sheet, err)
		}
		if len(rows) != tt.rows {
			t.Fatalf("sheet %s: expected %d rows, got %d", tt.sheet, tt.rows, len(rows))
		}
	}

	rows, _ := f.GetRows(sheetResults)
	if rows[1][0] != "CM12 cavity 3" {
		t.Fatalf("unexpected first result row %v", rows[1])
	}
}
