package thermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thermasched/thermasched/core"
)

func testDevice() core.Device {
	return core.Device{
		Handle: "d0",
		Type:   core.DeviceGPU,
		Capacity: core.Capacity{
			PeakOpsPerSec:   1000.0,
			MemoryBandwidth: 100.0,
		},
		Limits: core.Limits{
			MinSupplyTempC: 10,
			MaxSupplyTempC: 30,
			MaxPowerWatts:  400,
		},
		Live: core.LiveState{TemperatureC: 40},
	}
}

func TestPredictRise_LinearModel(t *testing.T) {
	m := NewModel(map[core.DeviceType]Coefficients{
		core.DeviceGPU: {KCompute: 10.0, KMemory: 4.0, CoolingRate: 1.0},
	}, core.DefaultThermalBandConfig())

	rise := m.PredictRise(testDevice(), core.WorkloadProfile{ComputeOps: 500, BandwidthNeed: 50})
	// 10*(500/1000) + 4*(50/100) = 5 + 2 = 7
	assert.InDelta(t, 7.0, rise, 1e-9)
}

func TestPredictRise_ZeroCapacity_Saturates(t *testing.T) {
	m := NewModel(nil, core.DefaultThermalBandConfig())
	dev := testDevice()
	dev.Capacity.PeakOpsPerSec = 0
	rise := m.PredictRise(dev, core.WorkloadProfile{ComputeOps: 1})
	assert.True(t, rise > 1e300)
}

func TestCoolingTime_Formula(t *testing.T) {
	m := NewModel(map[core.DeviceType]Coefficients{
		core.DeviceGPU: {KCompute: 1, KMemory: 1, CoolingRate: 2.0},
	}, core.DefaultThermalBandConfig())
	d := m.CoolingTime(testDevice(), 90, 70)
	assert.InDelta(t, 10.0, d, 1e-9) // (90-70)/2.0
}

func TestCoolingTime_AlreadyAtTarget(t *testing.T) {
	m := NewModel(nil, core.DefaultThermalBandConfig())
	assert.Equal(t, 0.0, m.CoolingTime(testDevice(), 40, 50))
}

func TestBand_Classification(t *testing.T) {
	m := NewModel(nil, core.DefaultThermalBandConfig())
	assert.Equal(t, core.BandOptimal, m.Band(45))
	assert.Equal(t, core.BandOptimal, m.Band(60))
	assert.Equal(t, core.BandWarning, m.Band(80))
	assert.Equal(t, core.BandCritical, m.Band(86))
	assert.Equal(t, core.BandEmergency, m.Band(91))
}

func TestThrottlePct_RampsLinearlyInWarningBand(t *testing.T) {
	m := NewModel(nil, core.DefaultThermalBandConfig())
	assert.Equal(t, 0.0, m.ThrottlePct(60))
	assert.InDelta(t, 37.5, m.ThrottlePct(80), 1e-9) // midpoint of (75,85]
	assert.Equal(t, 75.0, m.ThrottlePct(86))
	assert.Equal(t, 100.0, m.ThrottlePct(95))
}

func TestSafetyCheck_RejectsSetpointOutsideRange(t *testing.T) {
	dev := testDevice()
	ok, reason := SafetyCheck(dev, Action{SetpointC: 50, PredictedInletC: 20, AirflowCFM: 200}, core.SafetyConfig{MaxTempC: 90, MinAirflowCFM: 60})
	assert.False(t, ok)
	assert.Contains(t, reason, "setpoint")
}

func TestSafetyCheck_RejectsOverInletTemp(t *testing.T) {
	dev := testDevice()
	ok, reason := SafetyCheck(dev, Action{SetpointC: 20, PredictedInletC: 95, AirflowCFM: 200}, core.SafetyConfig{MaxTempC: 90, MinAirflowCFM: 60})
	assert.False(t, ok)
	assert.Contains(t, reason, "inlet")
}

func TestSafetyCheck_RejectsAirflowBelowFloor(t *testing.T) {
	dev := testDevice()
	ok, reason := SafetyCheck(dev, Action{SetpointC: 20, PredictedInletC: 50, AirflowCFM: 10}, core.SafetyConfig{MaxTempC: 90, MinAirflowCFM: 60})
	assert.False(t, ok)
	assert.Contains(t, reason, "airflow")
}

func TestSafetyCheck_PassesWithinBounds(t *testing.T) {
	dev := testDevice()
	ok, reason := SafetyCheck(dev, Action{SetpointC: 20, PredictedInletC: 50, AirflowCFM: 200}, core.SafetyConfig{MaxTempC: 90, MinAirflowCFM: 60})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestApplyThrottle_ClearsAtZero(t *testing.T) {
	dev := testDevice()
	assert.Equal(t, 400.0, ApplyThrottle(dev, 0))
	assert.InDelta(t, 100.0, ApplyThrottle(dev, 75), 1e-9)
}

func TestShouldPrecool_CrossesFromOptimalToWarning(t *testing.T) {
	m := NewModel(map[core.DeviceType]Coefficients{
		core.DeviceGPU: {KCompute: 40.0, KMemory: 0, CoolingRate: 1.0},
	}, core.DefaultThermalBandConfig())
	dev := testDevice()
	dev.Live.TemperatureC = 40 // Optimal

	// rise of 40*(1000/1000)=40 pushes 40 -> 80, crossing into Warning.
	assert.True(t, m.ShouldPrecool(dev, core.WorkloadProfile{ComputeOps: 1000}))
}

func TestShouldPrecool_FalseWhenAlreadyNotOptimal(t *testing.T) {
	m := NewModel(nil, core.DefaultThermalBandConfig())
	dev := testDevice()
	dev.Live.TemperatureC = 80 // Warning already
	assert.False(t, m.ShouldPrecool(dev, core.WorkloadProfile{ComputeOps: 1000}))
}

func TestPrecoolRequest_Done(t *testing.T) {
	now := time.Now()
	req := NewPrecoolRequest("d0", 70, 10*time.Millisecond, now)
	assert.False(t, req.Done(now))
	assert.True(t, req.Done(now.Add(20*time.Millisecond)))
}
