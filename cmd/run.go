package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thermasched/thermasched/core"
)

var (
	runClusterPath string
	runJobsPath    string
	runConfigPath  string
	runTicks       int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register a cluster, submit a workload, and drive the control loop",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(runConfigPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}

		var topo ClusterSpec
		if err := loadYAML(runClusterPath, &topo); err != nil {
			logrus.Fatalf("loading cluster: %v", err)
		}

		clu, err := buildCluster(cfg, topo)
		if err != nil {
			logrus.Fatalf("building cluster: %v", err)
		}
		logrus.Infof("registered %d devices", len(topo.Devices))

		if runJobsPath != "" {
			var jobs WorkloadSpec
			if err := loadYAML(runJobsPath, &jobs); err != nil {
				logrus.Fatalf("loading jobs: %v", err)
			}
			ids, err := clu.submitAll(jobs)
			if err != nil {
				logrus.Fatalf("submitting jobs: %v", err)
			}
			logrus.Infof("submitted and drained %d jobs", len(ids))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if runTicks > 0 {
			for i := 0; i < runTicks; i++ {
				clu.loop.Tick()
			}
		} else {
			logrus.Info("starting control loop, ctrl-C to stop")
			clu.loop.Run(ctx)
		}

		printSnapshot(clu.loop.LastSnapshot())
	},
}

func init() {
	runCmd.Flags().StringVar(&runClusterPath, "cluster", "", "Path to a cluster topology YAML file (required)")
	runCmd.Flags().StringVar(&runJobsPath, "jobs", "", "Path to a job workload YAML file (optional)")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config YAML file overriding the defaults (optional)")
	runCmd.Flags().IntVar(&runTicks, "ticks", 1, "Number of control-loop ticks to run synchronously, then exit (0 = run until interrupted)")
	runCmd.MarkFlagRequired("cluster")
}

// loadConfig returns core.DefaultConfig() overridden by path's contents,
// if provided. Follows cmd/default_config.go's strict-decode discipline:
// unknown keys fail fast rather than being silently ignored.
func loadConfig(path string) (core.Config, error) {
	cfg := core.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if err := loadYAML(path, &cfg); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}
