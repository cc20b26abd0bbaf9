package cmd

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thermasched/thermasched/core"
)

var (
	snapshotClusterPath string
	snapshotConfigPath  string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Register a cluster, run one control tick, and print the resulting telemetry snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(snapshotConfigPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}
		var topo ClusterSpec
		if err := loadYAML(snapshotClusterPath, &topo); err != nil {
			logrus.Fatalf("loading cluster: %v", err)
		}
		clu, err := buildCluster(cfg, topo)
		if err != nil {
			logrus.Fatalf("building cluster: %v", err)
		}
		clu.loop.Tick()
		printSnapshot(clu.loop.LastSnapshot())
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotClusterPath, "cluster", "", "Path to a cluster topology YAML file (required)")
	snapshotCmd.Flags().StringVar(&snapshotConfigPath, "config", "", "Path to a config YAML file overriding the defaults (optional)")
	snapshotCmd.MarkFlagRequired("cluster")
}

// printSnapshot renders a core.Snapshot as YAML to stdout, sorting
// device handles for deterministic output. Used by run and snapshot.
func printSnapshot(snap core.Snapshot) {
	handles := make([]string, 0, len(snap.Devices))
	for h := range snap.Devices {
		handles = append(handles, string(h))
	}
	sort.Strings(handles)

	out := struct {
		Devices        map[string]core.LiveState `yaml:"devices"`
		Aggregates     core.Aggregates           `yaml:"aggregates"`
		SchedulerStats core.SchedulerStats       `yaml:"scheduler_stats"`
		CacheStats     core.CacheStats           `yaml:"cache_stats"`
		TakenAtUs      int64                     `yaml:"taken_at_us"`
	}{
		Devices:        make(map[string]core.LiveState, len(handles)),
		Aggregates:     snap.Aggregates,
		SchedulerStats: snap.SchedulerStats,
		CacheStats:     snap.CacheStats,
		TakenAtUs:      snap.TakenAtUs,
	}
	for _, h := range handles {
		out.Devices[h] = snap.Devices[core.DeviceHandle(h)]
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		logrus.Errorf("marshaling snapshot: %v", err)
		return
	}
	fmt.Print(string(data))
}
