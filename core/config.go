package core

import (
	"fmt"
	"time"
)

// ObjectiveWeights is the balanced-objective mix (spec.md §6). Must sum
// to 1.0 when Objective == ObjectiveBalanced.
type ObjectiveWeights struct {
	Alpha float64 `yaml:"alpha"` // latency weight
	Beta  float64 `yaml:"beta"`  // power weight
	Gamma float64 `yaml:"gamma"` // cost weight
}

// SafetyConfig groups the hard safety floors from spec.md §6.
type SafetyConfig struct {
	MaxTempC       float64 `yaml:"max_temp_c"`
	MaxHumidity    float64 `yaml:"max_humidity"`
	MinAirflowCFM  float64 `yaml:"min_airflow_cfm"`
}

// LoadBalanceConfig groups the migration-triggering load-balance
// parameters from spec.md §6.
type LoadBalanceConfig struct {
	ThresholdStdev float64 `yaml:"threshold"` // max acceptable utilization stdev before migration
}

// Config is the immutable struct passed at init (spec.md §6), grouping
// every recognized configuration option the same way sim/config.go
// groups KVCacheConfig/BatchConfig/PolicyConfig/WorkloadConfig.
type Config struct {
	Objective           Objective          `yaml:"objective"`
	Weights             ObjectiveWeights   `yaml:"weights"`
	Algorithm           Algorithm          `yaml:"algorithm"`
	EvictionPolicy      EvictionPolicyName `yaml:"eviction_policy"`
	Coherency           CoherencyMode      `yaml:"coherency"`
	ReplicationFactor   int                `yaml:"replication_factor"`
	CacheHitValue       float64            `yaml:"cache_hit_value"`
	Safety              SafetyConfig       `yaml:"safety"`
	Bands               ThermalBandConfig  `yaml:"thermal_bands"`
	ControlInterval     time.Duration      `yaml:"control_interval"`
	MaxRetries          int                `yaml:"max_retries"`
	LoadBalance         LoadBalanceConfig  `yaml:"load_balance"`

	MaxDevices    int `yaml:"max_devices"`
	MaxTasks      int `yaml:"max_tasks"`
	PrecoolThresholdC float64 `yaml:"precool_threshold_c"`
	PrecoolDuration   time.Duration `yaml:"precool_duration"`
}

// DefaultConfig returns a Config with the defaults named throughout
// spec.md (control_interval default 60s, thermal bands, etc.), mirroring
// the teacher's NewXConfig constructors (sim/config.go) that return a
// fully-populated struct from named defaults.
func DefaultConfig() Config {
	return Config{
		Objective:         ObjectiveBalanced,
		Weights:           ObjectiveWeights{Alpha: 0.34, Beta: 0.33, Gamma: 0.33},
		Algorithm:         AlgorithmDijkstra,
		EvictionPolicy:    EvictionCostAware,
		Coherency:         CoherencyMESI,
		ReplicationFactor: 1,
		CacheHitValue:     1000,
		Safety:            SafetyConfig{MaxTempC: 90, MaxHumidity: 60, MinAirflowCFM: 100},
		Bands:             DefaultThermalBandConfig(),
		ControlInterval:   60 * time.Second,
		MaxRetries:        3,
		LoadBalance:       LoadBalanceConfig{ThresholdStdev: 0.2},
		MaxDevices:        256,
		MaxTasks:          1024,
		PrecoolThresholdC: 70,
		PrecoolDuration:   10 * time.Second,
	}
}

// Validate checks the configuration for internal consistency. Unlike
// the teacher's NewRoutingPolicy/NewScheduler factories (which panic on
// a bad name, since those are CLI-flag defaults resolved once at
// startup), Config.Validate returns an error: this is a library entry
// point and a caller-supplied Config must never crash the process.
func (c Config) Validate() error {
	if !IsValidObjective(c.Objective) {
		return fmt.Errorf("config: unknown objective %q", c.Objective)
	}
	if !IsValidAlgorithm(c.Algorithm) {
		return fmt.Errorf("config: unknown algorithm %q", c.Algorithm)
	}
	if !IsValidEvictionPolicy(c.EvictionPolicy) {
		return fmt.Errorf("config: unknown eviction_policy %q", c.EvictionPolicy)
	}
	if !IsValidCoherencyMode(c.Coherency) {
		return fmt.Errorf("config: unknown coherency %q", c.Coherency)
	}
	if c.Objective == ObjectiveBalanced {
		sum := c.Weights.Alpha + c.Weights.Beta + c.Weights.Gamma
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("config: balanced weights must sum to 1.0, got %.4f", sum)
		}
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("config: replication_factor must be >= 1, got %d", c.ReplicationFactor)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MaxDevices <= 0 {
		return fmt.Errorf("config: max_devices must be > 0, got %d", c.MaxDevices)
	}
	if c.MaxTasks <= 0 {
		return fmt.Errorf("config: max_tasks must be > 0, got %d", c.MaxTasks)
	}
	return nil
}
