// Package q0 computes the intrinsic quality factor of superconducting RF
// cavities from liquid helium boil-off data. It contains:
//
//   - Buffer: the aligned time series of one acquisition window
//   - Segment, TrimSettle, FitRun: extraction of steady-state runs and their
//     liquid level drain rate (dLL/dt)
//   - Curve: the heater calibration line of a cryomodule
//   - CalcQ0, EstimateRun: conversion of RF heat load into a pressure
//     corrected Q0
//   - Session: a calibration or measurement session driving all of the above
//
// Nothing in this package talks to the control system, the archiver or the
// file system. Callers hand in a Buffer and References and get back runs, a
// calibration curve or per-run Q0 results. Given the same inputs the results
// are always identical.
package q0
