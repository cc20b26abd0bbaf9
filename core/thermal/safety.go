package thermal

import (
	"fmt"

	"github.com/thermasched/thermasched/core"
)

// Action describes a proposed thermal/cooling action to be gated by
// SafetyCheck (spec.md §4.4's safety_check): a CRAC/control setpoint
// move, or an admission decision that would raise a device's predicted
// temperature.
type Action struct {
	SetpointC       float64 // proposed CRAC/control setpoint, if any
	PredictedInletC float64 // predicted inlet temperature after the action
	AirflowCFM      float64 // predicted airflow after the action
}

// SafetyCheck mirrors sim/admission.go's AdmissionPolicy.Admit(req,
// state) (bool, string) gate shape, generalized from "admit a request"
// to "allow a thermal/control action": returns ok iff (a) no setpoint
// moves outside [min, max], (b) predicted inlet temperature does not
// exceed safety.max_temp_c, (c) the airflow floor is respected.
func SafetyCheck(device core.Device, action Action, safety core.SafetyConfig) (ok bool, reason string) {
	if action.SetpointC < device.Limits.MinSupplyTempC || action.SetpointC > device.Limits.MaxSupplyTempC {
		return false, fmt.Sprintf("setpoint %.1f°C outside device range [%.1f, %.1f]",
			action.SetpointC, device.Limits.MinSupplyTempC, device.Limits.MaxSupplyTempC)
	}
	if action.PredictedInletC > safety.MaxTempC {
		return false, fmt.Sprintf("predicted inlet %.1f°C exceeds safety max %.1f°C", action.PredictedInletC, safety.MaxTempC)
	}
	if action.AirflowCFM < safety.MinAirflowCFM {
		return false, fmt.Sprintf("predicted airflow %.1f CFM below floor %.1f CFM", action.AirflowCFM, safety.MinAirflowCFM)
	}
	return true, ""
}

// ApplyThrottle reduces device's effective power limit proportionally
// to percent (spec.md §4.4's apply_throttle); percent=0 clears any
// throttle. Returns the new effective power limit in watts.
func ApplyThrottle(device core.Device, percent float64) float64 {
	if percent <= 0 {
		return device.Limits.MaxPowerWatts
	}
	if percent > 100 {
		percent = 100
	}
	return device.Limits.MaxPowerWatts * (1 - percent/100)
}
