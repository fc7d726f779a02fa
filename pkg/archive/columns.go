package archive

import (
	"sort"

	"github.com/charlie0129/q0/pkg/q0"
)

// Names of the summed heater columns in collapsed files.
const (
	ColElecHeatDes = "Electric Heat Load Setpoint"
	ColElecHeatAct = "Electric Heat Load Readback"
)

// Columns maps archive columns onto buffer signals. Heater columns are
// summed into SignalElecHeatDes and SignalElecHeatAct.
type Columns struct {
	Signals   map[string]q0.Signal
	HeaterDes []string
	HeaterAct []string
}

// PVs returns every PV to request from the archiver, in a stable order.
func (c Columns) PVs() []string {
	pvs := make([]string, 0, len(c.Signals)+len(c.HeaterDes)+len(c.HeaterAct))
	for pv := range c.Signals {
		pvs = append(pvs, pv)
	}
	sort.Strings(pvs)
	pvs = append(pvs, c.HeaterDes...)
	pvs = append(pvs, c.HeaterAct...)
	return pvs
}

// BufferSignals returns the signals a buffer read with these columns
// carries.
func (c Columns) BufferSignals() []q0.Signal {
	var signals []q0.Signal
	for _, pv := range c.PVs() {
		if s, ok := c.Signals[pv]; ok {
			signals = append(signals, s)
		}
	}
	return append(signals, q0.SignalElecHeatDes, q0.SignalElecHeatAct)
}

// columnOf returns the column name a signal is written under.
func (c Columns) columnOf(s q0.Signal) string {
	switch s {
	case q0.SignalElecHeatDes:
		return ColElecHeatDes
	case q0.SignalElecHeatAct:
		return ColElecHeatAct
	}
	for pv, sig := range c.Signals {
		if sig == s {
			return pv
		}
	}
	return string(s)
}
