package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
)

func Bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func Bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// Text writes a human readable report of a processed session. verbose adds
// fit diagnostics for every run.
func Text(w io.Writer, s *types.SessionResponse, verbose bool) {
	fmt.Fprintf(w, "\n---------- %s ----------\n\n", Bold("%s", s.Name))

	if s.NoRuns {
		fmt.Fprintln(w, "  No steady-state runs found.")
		return
	}

	results := map[int]q0.RFResult{}
	for _, r := range s.Results {
		results[r.RunIndex] = r
	}

	for _, run := range s.Runs {
		switch run.Kind {
		case q0.RunHeater:
			fmt.Fprintf(w, "  Run %d (%s): electric heat load %s, dLL/dt %s\n",
				run.Number(), run.Kind, Bold("%.2f W", run.ElecHeatLoad), Bold("%.3e %%/s", run.Slope))
		case q0.RunRF:
			res, ok := results[run.Index]
			if !ok {
				fmt.Fprintf(w, "  Run %d (%s): dLL/dt %s\n", run.Number(), run.Kind, Bold("%.3e %%/s", run.Slope))
				break
			}
			fmt.Fprintf(w, "  Run %d (%s): RF heat load %s, Q0 %s %s\n",
				run.Number(), run.Kind, Bold("%.2f W", res.RFHeatLoad), Bold("%.3e", res.Q0), Bool2Text(res.Valid))
			if !res.Valid {
				fmt.Fprintf(w, "    %s\n", res.InvalidReason)
			}
			if verbose {
				fmt.Fprintf(w, "    total heat load %.2f W, average pressure %.2f torr, RMS gradient %.2f MV/m\n",
					res.TotalHeatLoad, res.AvgPressure, res.RMSGradient)
			}
			if res.FallbackGradientSamples > 0 {
				fmt.Fprintf(w, "    %d samples used the reference gradient\n", res.FallbackGradientSamples)
			}
			if res.InvalidPressureSamples > 0 {
				fmt.Fprintf(w, "    %d samples skipped for lack of pressure\n", res.InvalidPressureSamples)
			}
		}
		if verbose {
			fmt.Fprintf(w, "    R² %.4f, settle cutoff %d s, fitted %s (samples %d-%d of %d-%d)\n",
				run.RSquared, run.CutoffSeconds, formatSeconds(run.DurationSeconds),
				run.Start, run.End, run.RawStart, run.End)
		}
	}

	if s.Curve != nil {
		fmt.Fprintln(w)
		if s.Kind == q0.KindCalibration {
			fmt.Fprintf(w, "  Calibration curve: dLL/dt = %s × (heat load %s)\n",
				Bold("%.4e %%/s/W", s.Curve.Slope), signed(-s.Curve.OriginAdjustment))
			if verbose {
				fmt.Fprintf(w, "    raw intercept %.4e %%/s, R² %.4f, %d heater runs\n",
					s.Curve.Intercept, s.Curve.RSquared, len(s.Curve.Points))
			}
		} else if s.HeatAdjustment != 0 {
			fmt.Fprintf(w, "  Heater run adjustment: %s\n", Bold("%.2f W", s.HeatAdjustment))
		}
	}
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("- %.2f W", -v)
	}
	return fmt.Sprintf("+ %.2f W", v)
}

func formatSeconds(s float64) string {
	if s < 60 {
		return fmt.Sprintf("%.0f s", s)
	}
	return fmt.Sprintf("%.1f min", s/60)
}
