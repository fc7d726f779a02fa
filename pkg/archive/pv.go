package archive

import (
	"fmt"

	"github.com/charlie0129/q0/pkg/q0"
)

// CavitiesPerCryomodule is the number of cavities (and heaters) in one
// cryomodule.
const CavitiesPerCryomodule = 8

// Cryomodule identifies a cryomodule. Control system names use the JLab
// number, reports use the SLAC number.
type Cryomodule struct {
	SLAC int `json:"slac" yaml:"slac"`
	JLab int `json:"jlab" yaml:"jlab"`
}

func (c Cryomodule) Name() string {
	return fmt.Sprintf("CM%02d", c.SLAC)
}

func (c Cryomodule) ValvePV() string {
	return fmt.Sprintf("CPID:CM0%d:3001:JT:CV_VALUE", c.JLab)
}

func (c Cryomodule) DSLevelPV() string {
	return fmt.Sprintf("CLL:CM0%d:2301:DS:LVL", c.JLab)
}

func (c Cryomodule) USLevelPV() string {
	return fmt.Sprintf("CLL:CM0%d:2601:US:LVL", c.JLab)
}

func (c Cryomodule) DSPressurePV() string {
	return fmt.Sprintf("CPT:CM0%d:2302:DS:PRESS", c.JLab)
}

// HeaterDesPVs returns the heater power setpoints of all cavities.
func (c Cryomodule) HeaterDesPVs() []string {
	return c.heaterPVs("POWER_SETPT")
}

// HeaterActPVs returns the heater power readbacks of all cavities.
func (c Cryomodule) HeaterActPVs() []string {
	return c.heaterPVs("POWER")
}

func (c Cryomodule) heaterPVs(suffix string) []string {
	pvs := make([]string, 0, CavitiesPerCryomodule)
	for cav := 1; cav <= CavitiesPerCryomodule; cav++ {
		pvs = append(pvs, fmt.Sprintf("CHTR:CM0%d:1%d55:HV:%s", c.JLab, cav, suffix))
	}
	return pvs
}

// GradientPV returns the gradient readback of cavity cav (1-8).
func (c Cryomodule) GradientPV(cav int) string {
	return fmt.Sprintf("ACCL:L1B:0%d%d0:GACT", c.JLab, cav)
}

// Columns returns the archive columns of a session on this cryomodule.
// cavity is 0 for a cryomodule calibration, 1-8 for a cavity measurement.
func (c Cryomodule) Columns(cavity int) Columns {
	cols := Columns{
		Signals: map[string]q0.Signal{
			c.ValvePV():      q0.SignalValvePos,
			c.DSLevelPV():    q0.SignalDSLevel,
			c.USLevelPV():    q0.SignalUSLevel,
			c.DSPressurePV(): q0.SignalDSPressure,
		},
		HeaterDes: c.HeaterDesPVs(),
		HeaterAct: c.HeaterActPVs(),
	}
	if cavity > 0 {
		cols.Signals[c.GradientPV(cavity)] = q0.SignalGradient
	}
	return cols
}
