package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thermasched/thermasched/core"
)

// LinkSpec is the YAML shape of a core.Link, keyed by the owning
// device's outgoing edge list. Grounded on cmd/default_config.go's
// nested yaml-tagged struct style (strict decoding via KnownFields).
type LinkSpec struct {
	To               string  `yaml:"to"`
	LatencyUs        float64 `yaml:"latency_us"`
	BandwidthGbps    float64 `yaml:"bandwidth_gbps"`
	CostPerSecond    float64 `yaml:"cost_per_second"`
	CongestionFactor float64 `yaml:"congestion_factor"`
}

// DeviceSpec is the YAML shape of one device entry in a cluster
// topology file.
type DeviceSpec struct {
	Handle          string     `yaml:"handle"`
	Type            string     `yaml:"type"`
	PeakOpsPerSec   float64    `yaml:"peak_ops_per_sec"`
	MemoryBytes     int64      `yaml:"memory_bytes"`
	MemoryBandwidth float64    `yaml:"memory_bandwidth"`
	PowerWatts      float64    `yaml:"power_watts"`
	TemperatureC    float64    `yaml:"temperature_c"`
	MinSupplyTempC  float64    `yaml:"min_supply_temp_c"`
	MaxSupplyTempC  float64    `yaml:"max_supply_temp_c"`
	MaxPowerWatts   float64    `yaml:"max_power_watts"`
	CostPerHour     float64    `yaml:"cost_per_hour"`
	Links           []LinkSpec `yaml:"links"`
}

// ClusterSpec is the top-level YAML structure for a cluster topology
// file, passed to run/snapshot via --cluster.
type ClusterSpec struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// JobSpec is the YAML shape of one job in a workload file, passed to
// run/submit via --jobs.
type JobSpec struct {
	ComputeOps        float64 `yaml:"compute_ops"`
	MemoryBytes       int64   `yaml:"memory_bytes"`
	BandwidthNeed     float64 `yaml:"bandwidth_need"`
	Batch             int     `yaml:"batch"`
	PrecisionFlag     string  `yaml:"precision"`
	DeadlineUs        int64   `yaml:"deadline_us"`
	MaxPowerWatts     float64 `yaml:"max_power_watts"`
	HasPrefix         bool    `yaml:"has_prefix"`
	CacheHolderDevice string  `yaml:"cache_holder_device"`
	CacheBytes        int64   `yaml:"cache_bytes"`
	Priority          float64 `yaml:"priority"`
}

// WorkloadSpec is the top-level YAML structure for a job workload
// file.
type WorkloadSpec struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// loadYAML decodes path into out using strict (KnownFields) parsing,
// the same defensive-against-typos discipline as
// cmd/default_config.go's GetDefaultSpecs.
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// toDevice converts a DeviceSpec into a core.Device.
func (s DeviceSpec) toDevice() core.Device {
	links := make([]core.Link, len(s.Links))
	for i, l := range s.Links {
		links[i] = core.Link{
			To:               core.DeviceHandle(l.To),
			LatencyUs:        l.LatencyUs,
			BandwidthGbps:    l.BandwidthGbps,
			CostPerSecond:    l.CostPerSecond,
			CongestionFactor: l.CongestionFactor,
		}
	}
	return core.Device{
		Handle: core.DeviceHandle(s.Handle),
		Type:   core.DeviceType(s.Type),
		Capacity: core.Capacity{
			PeakOpsPerSec:   s.PeakOpsPerSec,
			MemoryBytes:     s.MemoryBytes,
			MemoryBandwidth: s.MemoryBandwidth,
		},
		Live: core.LiveState{
			PowerWatts:   s.PowerWatts,
			TemperatureC: s.TemperatureC,
		},
		Limits: core.Limits{
			MinSupplyTempC: s.MinSupplyTempC,
			MaxSupplyTempC: s.MaxSupplyTempC,
			MaxPowerWatts:  s.MaxPowerWatts,
		},
		CostPerHour: s.CostPerHour,
		Links:       links,
	}
}

// toDescriptor converts a JobSpec into a core.JobDescriptor.
func (s JobSpec) toDescriptor() core.JobDescriptor {
	return core.JobDescriptor{
		Workload: core.WorkloadProfile{
			ComputeOps:    s.ComputeOps,
			MemoryBytes:   s.MemoryBytes,
			BandwidthNeed: s.BandwidthNeed,
			Batch:         s.Batch,
			PrecisionFlag: s.PrecisionFlag,
		},
		Constraints: core.Constraints{
			DeadlineUs:    s.DeadlineUs,
			MaxPowerWatts: s.MaxPowerWatts,
		},
		Cache: core.CacheDescriptor{
			HasPrefix:         s.HasPrefix,
			CacheHolderDevice: core.DeviceHandle(s.CacheHolderDevice),
			CacheBytes:        s.CacheBytes,
		},
		Priority: s.Priority,
	}
}
