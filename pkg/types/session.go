package types

import (
	"github.com/charlie0129/q0/pkg/q0"
)

// SessionRequest is the body of POST /calibrations and POST /measurements.
type SessionRequest struct {
	Name       string        `json:"name"`
	Window     q0.Window     `json:"window"`
	References q0.References `json:"references"`
	// Params overrides the daemon configuration when set.
	Params  *q0.Params  `json:"params,omitempty"`
	Signals []q0.Signal `json:"signals"`
	Samples []q0.Sample `json:"samples"`
	// CalibrationID selects the curve of a measurement.
	CalibrationID string `json:"calibrationID,omitempty"`
}

// Buffer builds the sample buffer of the request.
func (r *SessionRequest) Buffer() (*q0.Buffer, error) {
	return q0.NewBufferFromSamples(r.Signals, r.Samples)
}

// NewSessionRequest packs a session buffer into a request.
func NewSessionRequest(name string, w q0.Window, refs q0.References, b *q0.Buffer) *SessionRequest {
	return &SessionRequest{
		Name:       name,
		Window:     w,
		References: refs,
		Signals:    b.Signals(),
		Samples:    b.Samples(),
	}
}

// SessionResponse is the processed state of a session.
type SessionResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Kind           q0.SessionKind `json:"kind"`
	Window         q0.Window      `json:"window"`
	References     q0.References  `json:"references"`
	Runs           []q0.Run       `json:"runs"`
	Curve          *q0.Curve      `json:"curve,omitempty"`
	Results        []q0.RFResult  `json:"results,omitempty"`
	HeatAdjustment float64        `json:"heatAdjustment"`
	NoRuns         bool           `json:"noRuns"`
}

// NewSessionResponse summarises a processed session.
func NewSessionResponse(s *q0.Session) *SessionResponse {
	return &SessionResponse{
		ID:             s.ID(),
		Name:           s.Name(),
		Kind:           s.Kind(),
		Window:         s.Window(),
		References:     s.References(),
		Runs:           s.Runs(),
		Curve:          s.Curve(),
		Results:        s.Results(),
		HeatAdjustment: s.HeatAdjustment(),
		NoRuns:         s.NoRuns(),
	}
}
