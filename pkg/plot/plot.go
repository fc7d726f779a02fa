package plot

import (
	"fmt"
	"io"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/charlie0129/q0/pkg/q0"
)

const (
	width  = 1200
	height = 700
	// level samples drawn per chart
	maxPoints = 2000
)

// pointStyle renders points only (no connecting line)
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    5,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 2,
		StrokeColor: col,
	}
}

func newChart(title, xName, yName string, series []chart.Series) chart.Chart {
	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: xName},
		YAxis:      chart.YAxis{Name: yName},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch
}

// LiquidLevel renders the downstream liquid level of a processed session
// with the fitted line of every run as PNG.
func LiquidLevel(w io.Writer, s *q0.Session) error {
	b := s.Buffer()
	times := b.Times()
	unix := b.Unix()
	level := b.Column(q0.SignalDSLevel)

	step := 1
	if len(times) > maxPoints {
		step = len(times) / maxPoints
	}
	var xs []time.Time
	var ys []float64
	for i := 0; i < len(times); i += step {
		if !q0.IsValid(level[i]) {
			continue
		}
		xs = append(xs, times[i])
		ys = append(ys, level[i])
	}
	if len(xs) < 2 {
		return pkgerrors.Wrap(q0.ErrInputData, "not enough liquid level readings to plot")
	}

	series := []chart.Series{
		chart.TimeSeries{Name: "Downstream level", XValues: xs, YValues: ys, Style: lineStyle(chart.ColorAlternateGray)},
	}
	for _, r := range s.Runs() {
		if r.Start >= r.End {
			continue
		}
		fit := r.Fit()
		col := chart.ColorBlue
		if r.Kind == q0.RunRF {
			col = chart.ColorGreen
		}
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("Run %d (%s)", r.Number(), r.Kind),
			XValues: []time.Time{times[r.Start], times[r.End]},
			YValues: []float64{fit.At(unix[r.Start]), fit.At(unix[r.End])},
			Style:   lineStyle(col),
		})
	}

	ch := newChart(s.Name(), "Time", "Liquid level (%)", series)
	ch.XAxis.ValueFormatter = chart.TimeMinuteValueFormatter
	return pkgerrors.Wrap(ch.Render(chart.PNG, w), "failed to render liquid level chart")
}

// Calibration renders the heater runs of a calibration on the adjusted heat
// load axis together with the fitted line as PNG. RF runs of measurements,
// if any, are projected onto the line.
func Calibration(w io.Writer, title string, curve *q0.Curve, rf []q0.Run) error {
	if curve == nil || len(curve.Points) == 0 {
		return pkgerrors.Wrap(q0.ErrInputData, "no calibration curve to plot")
	}

	lo, hi := 0.0, 0.0
	var hx, hy []float64
	for _, p := range curve.Points {
		x := curve.AdjustHeatLoad(p.HeatLoad)
		hx = append(hx, x)
		hy = append(hy, p.Slope)
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	var rx, ry []float64
	for _, r := range rf {
		x := curve.HeatLoad(r.Slope)
		rx = append(rx, x)
		ry = append(ry, r.Slope)
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if hi == lo {
		hi = lo + 1
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "Calibration",
			XValues: []float64{lo, hi},
			YValues: []float64{curve.SlopeAt(lo), curve.SlopeAt(hi)},
			Style:   lineStyle(chart.ColorAlternateGray),
		},
		chart.ContinuousSeries{Name: "Heater runs", XValues: hx, YValues: hy, Style: pointStyle(chart.ColorBlue)},
	}
	if len(rx) > 0 {
		series = append(series, chart.ContinuousSeries{Name: "RF runs", XValues: rx, YValues: ry, Style: pointStyle(chart.ColorGreen)})
	}

	ch := newChart(title, "Adjusted heat load (W)", "dLL/dt (%/s)", series)
	return pkgerrors.Wrap(ch.Render(chart.PNG, w), "failed to render calibration chart")
}
