package q0

import "errors"

var (
	// ErrInputData is returned when a session cannot be processed because its
	// data is missing a signal, too short, or otherwise degenerate. It only
	// aborts the session it was returned for.
	ErrInputData = errors.New("invalid input data")

	// ErrAlreadyProcessed is returned when Process is called twice on the
	// same session.
	ErrAlreadyProcessed = errors.New("session already processed")

	// ErrLevelNotFlat is returned by EstimateRefValvePos when the liquid level
	// drifts too much to derive a reference valve position.
	ErrLevelNotFlat = errors.New("liquid level is not flat")
)
