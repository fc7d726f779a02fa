package q0

import (
	pkgerrors "github.com/pkg/errors"
)

// Line is an ordinary least squares fit y = Slope*x + Intercept.
type Line struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
	N         int     `json:"n"`
}

// At evaluates the line at x.
func (l Line) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// FitLine fits ys against xs, skipping pairs where either value is invalid.
// It needs at least two valid pairs with distinct x. R² is 0 when ys is
// constant.
func FitLine(xs, ys []float64) (Line, error) {
	if len(xs) != len(ys) {
		return Line{}, pkgerrors.Wrapf(ErrInputData, "length mismatch: %d x values, %d y values", len(xs), len(ys))
	}

	var n int
	var sumX, sumY float64
	for i := range xs {
		if !IsValid(xs[i]) || !IsValid(ys[i]) {
			continue
		}
		n++
		sumX += xs[i]
		sumY += ys[i]
	}
	if n < 2 {
		return Line{}, pkgerrors.Wrapf(ErrInputData, "need at least 2 valid points to fit a line, got %d", n)
	}

	// Centered sums. Unix timestamps are large enough to lose all precision
	// in the raw sum of squares.
	meanX, meanY := sumX/float64(n), sumY/float64(n)
	var sxx, sxy, syy float64
	for i := range xs {
		if !IsValid(xs[i]) || !IsValid(ys[i]) {
			continue
		}
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return Line{}, pkgerrors.Wrapf(ErrInputData, "all %d points share the same x value", n)
	}

	slope := sxy / sxx
	line := Line{
		Slope:     slope,
		Intercept: meanY - slope*meanX,
		N:         n,
	}
	if syy > 0 {
		line.RSquared = (sxy * sxy) / (sxx * syy)
	}
	return line, nil
}

// FitRun fits the downstream liquid level against time over the trimmed
// span of r and stores slope (%/s), intercept, R² and duration in r.
func FitRun(b *Buffer, r *Run) error {
	if r.Start > r.End || r.End >= b.Len() {
		return pkgerrors.Wrapf(ErrInputData, "run %d has no samples left after settle trim (start %d, end %d)", r.Number(), r.Start, r.End)
	}

	unix := b.Unix()
	level := b.Column(SignalDSLevel)
	line, err := FitLine(unix[r.Start:r.End+1], level[r.Start:r.End+1])
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to fit run %d", r.Number())
	}

	r.Slope = line.Slope
	r.Intercept = line.Intercept
	r.RSquared = line.RSquared
	r.DurationSeconds = unix[r.End] - unix[r.Start]
	return nil
}
