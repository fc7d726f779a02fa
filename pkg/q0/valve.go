package q0

import (
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EstimateRefValvePos derives the JT valve position that holds the liquid
// level steady from a window of data taken at the reference heat load. With
// checkFlat set, a level drifting faster than p.MaxFlatLevelSlope is
// rejected with ErrLevelNotFlat. The result is rounded to 0.1 %.
func EstimateRefValvePos(b *Buffer, p Params, checkFlat bool) (float64, error) {
	if err := b.Require(SignalDSLevel, SignalValvePos); err != nil {
		return 0, err
	}

	if checkFlat {
		line, err := FitLine(b.Unix(), b.Column(SignalDSLevel))
		if err != nil {
			return 0, pkgerrors.Wrap(err, "failed to fit liquid level")
		}
		logrus.WithFields(logrus.Fields{
			"slope":    line.Slope,
			"maxSlope": p.MaxFlatLevelSlope,
		}).Debug("liquid level drift")
		if math.Abs(line.Slope) > p.MaxFlatLevelSlope {
			return 0, pkgerrors.Wrapf(ErrLevelNotFlat, "level drifts %.2e %%/s, limit is %.2e %%/s", line.Slope, p.MaxFlatLevelSlope)
		}
	}

	var sum float64
	var n int
	for _, v := range b.Column(SignalValvePos) {
		if !IsValid(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, pkgerrors.Wrap(ErrInputData, "no valid valve readings")
	}

	return math.Round(sum/float64(n)*10) / 10, nil
}
