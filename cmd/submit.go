package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	submitClusterPath string
	submitJobPath     string
	submitConfigPath  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single job descriptor against a cluster topology and report its placement",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(submitConfigPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}

		var topo ClusterSpec
		if err := loadYAML(submitClusterPath, &topo); err != nil {
			logrus.Fatalf("loading cluster: %v", err)
		}
		clu, err := buildCluster(cfg, topo)
		if err != nil {
			logrus.Fatalf("building cluster: %v", err)
		}

		var job JobSpec
		if err := loadYAML(submitJobPath, &job); err != nil {
			logrus.Fatalf("loading job: %v", err)
		}

		id, cerr := clu.sched.Submit(job.toDescriptor())
		if cerr != nil {
			logrus.Fatalf("submit rejected: %v", cerr)
		}
		if !clu.sched.Step() {
			logrus.Fatalf("job %s never reached a feasible device", id)
		}

		stats := clu.sched.SnapshotStats()
		logrus.Infof("job %s submitted: scheduled=%d failed=%d safety_rejections=%d",
			id, stats.Scheduled, stats.Failed, stats.SafetyRejections)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitClusterPath, "cluster", "", "Path to a cluster topology YAML file (required)")
	submitCmd.Flags().StringVar(&submitJobPath, "job", "", "Path to a single job descriptor YAML file (required)")
	submitCmd.Flags().StringVar(&submitConfigPath, "config", "", "Path to a config YAML file overriding the defaults (optional)")
	submitCmd.MarkFlagRequired("cluster")
	submitCmd.MarkFlagRequired("job")
}
