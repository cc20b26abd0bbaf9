package core

// ThermalState is a per-device snapshot (spec.md §3). Within a single
// control tick this must be a consistent snapshot and must not be
// mutated in place. The registry does not produce one (it returns
// Device values with a LiveState), and no package in this module
// builds one.
type ThermalState struct {
	TemperatureC    float64
	InertiaCPerSec  float64 // thermal inertia, °C/s
	PredictedDeltaC float64 // predicted ΔT if the pending job were admitted
	PowerWatts      float64
	PowerLimitWatts float64
	ThrottlePct     float64 // 0-100
	Running         bool
}

// Band classifies the state's current temperature into one of the
// four fixed bands from spec.md §4.4.
func (t ThermalState) Band(cfg ThermalBandConfig) ThermalBand {
	switch {
	case t.TemperatureC > cfg.EmergencyC:
		return BandEmergency
	case t.TemperatureC > cfg.CriticalC:
		return BandCritical
	case t.TemperatureC > cfg.WarningC:
		return BandWarning
	default:
		return BandOptimal
	}
}

// ThermalBandConfig holds the threshold boundaries from spec.md §4.4's
// band table. WarningC/CriticalC/EmergencyC are the lower bounds of the
// Warning/Critical/Emergency bands respectively (open intervals).
type ThermalBandConfig struct {
	WarningC   float64 // > this enters Warning (default 75)
	CriticalC  float64 // > this enters Critical (default 85)
	EmergencyC float64 // > this enters Emergency (default 90)
}

// DefaultThermalBandConfig returns the fixed thresholds from spec.md's
// band table.
func DefaultThermalBandConfig() ThermalBandConfig {
	return ThermalBandConfig{WarningC: 75, CriticalC: 85, EmergencyC: 90}
}
